package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"threat-radar/config"
	"threat-radar/llm"
	"threat-radar/models"
	"threat-radar/providers"
	"threat-radar/providers/arxiv"
	"threat-radar/providers/rss"
	"threat-radar/services"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	itemsIngestedCounter   prometheus.Counter
	itemsClassifiedCounter prometheus.Counter
	threatUpdatesCounter   prometheus.Counter
)

func init() {
	itemsIngestedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "items_ingested_total",
		Help: "Total number of new items added to the database.",
	})
	itemsClassifiedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "items_classified_total",
		Help: "Total number of items successfully classified.",
	})
	threatUpdatesCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "threat_updates_total",
		Help: "Total number of accepted threat assessment revisions.",
	})
	prometheus.MustRegister(itemsIngestedCounter, itemsClassifiedCounter, threatUpdatesCounter)
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	db, err := openDatabase(cfg)
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to database", zap.String("driver", cfg.DBDriver))

	logging.Info("Running database auto-migration...")
	if err := db.AutoMigrate(&models.Threat{}, &models.DataSource{}, &models.Item{}, &models.ThreatUpdate{}); err != nil {
		logging.Fatal("Auto-migration failed", zap.Error(err))
	}

	// Setup Services
	llmClient := llm.NewClient(cfg, logging)
	enabledProviders := []providers.Provider{
		rss.NewFetcher(cfg, logging),
		arxiv.NewFetcher(cfg, logging),
	}
	ingestService := services.NewIngestionService(db, logging, enabledProviders)
	classifier := services.NewClassifier(db, llmClient, logging)
	tracker := services.NewTrackerService(db, llmClient, logging)

	// Setup Router
	router := gin.Default()
	router.Use(gin.Recovery())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Setup Routes
	setupThreatRoutes(router, db, tracker, logging)
	setupSourceRoutes(router, db, logging)
	setupIngestRoutes(router, ingestService, logging)
	setupClassifyRoutes(router, db, cfg, classifier, logging)
	setupItemRoutes(router, db, logging)
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "app": "threat-radar"})
	})

	// Setup Cron: kompletter Zyklus Ingest -> Klassifikation -> Neubewertung
	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.CronSchedule, func() {
		logging.Info("Running scheduled pipeline cycle...")
		runPipelineCycle(context.Background(), cfg, ingestService, classifier, tracker, logging)
	})
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		// Batch-Endpunkte warten synchron auf Modellaufrufe
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

// openDatabase öffnet den konfigurierten Store (sqlite oder postgres).
func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	if cfg.DBDriver == "postgres" {
		return gorm.Open(postgres.Open(cfg.PostgresDSN()), gormCfg)
	}
	return gorm.Open(sqlite.Open(cfg.SQLitePath), gormCfg)
}

// runPipelineCycle führt einen vollen Durchlauf aus: Quellen abrufen,
// neue Items klassifizieren, alle Threats neu bewerten.
func runPipelineCycle(ctx context.Context, cfg *config.Config, ingest *services.IngestionService, classifier *services.Classifier, tracker *services.TrackerService, log *zap.Logger) {
	report := ingest.RunAll(ctx)
	itemsIngestedCounter.Add(float64(report.Fetched))

	outcomes := classifier.ClassifyBatch(ctx, cfg.ClassifyBatchLimit)
	classified := 0
	for _, o := range outcomes {
		if o.Error == "" {
			classified++
		}
	}
	itemsClassifiedCounter.Add(float64(classified))

	assessed := tracker.AssessAll(ctx)
	updated := 0
	for _, o := range assessed {
		if o.Result != nil && o.Result.Updated {
			updated++
		}
	}
	threatUpdatesCounter.Add(float64(updated))

	log.Info("Pipeline cycle completed",
		zap.Int("fetched", report.Fetched),
		zap.Int("classified", classified),
		zap.Int("threats_updated", updated),
		zap.Int("ingest_errors", len(report.Errors)))
}

// errorStatus bildet die Fehler-Taxonomie der Services auf HTTP-Status ab.
func errorStatus(err error) int {
	var transportErr *llm.TransportError
	var decodeErr *llm.DecodeError
	var enumErr *models.InvalidEnumError
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrNoTaxonomy):
		return http.StatusBadRequest
	case errors.As(err, &transportErr), errors.As(err, &decodeErr), errors.As(err, &enumErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func setupThreatRoutes(router *gin.Engine, db *gorm.DB, tracker *services.TrackerService, log *zap.Logger) {
	rg := router.Group("/api/threats")

	rg.GET("", func(c *gin.Context) {
		statuses, err := tracker.Dashboard()
		if err != nil {
			log.Error("Dashboard query failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, statuses)
	})

	rg.POST("", func(c *gin.Context) {
		var req struct {
			Name                 string   `json:"name" binding:"required"`
			Category             string   `json:"category" binding:"required"`
			Description          string   `json:"description"`
			EnablingCapabilities []string `json:"enabling_capabilities"`
			TimelineEstimate     string   `json:"timeline_estimate"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		caps, _ := json.Marshal(req.EnablingCapabilities)
		threat := models.Threat{
			Name:                 req.Name,
			Category:             req.Category,
			Description:          req.Description,
			EnablingCapabilities: caps,
			TimelineEstimate:     req.TimelineEstimate,
			FeasibilityScore:     1.0,
			ThreatLevel:          models.ThreatLevelLow,
			Trend:                models.TrendStable,
			Confidence:           0.5,
			LastUpdated:          time.Now().UTC(),
		}
		if err := db.Create(&threat).Error; err != nil {
			log.Error("Failed to create threat", zap.String("name", req.Name), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create threat"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": threat.ID, "name": threat.Name})
	})

	rg.GET("/:id", func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid threat id"})
			return
		}

		var threat models.Threat
		if err := db.First(&threat, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "threat not found"})
				return
			}
			log.Error("DB error fetching threat", zap.Uint64("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}

		// Relevante verknüpfte Items, sortiert nach Relevanz absteigend
		var related []models.Item
		err = db.
			Joins("JOIN item_threat_links ON item_threat_links.item_id = items.id").
			Where("item_threat_links.threat_id = ?", threat.ID).
			Where("items.is_relevant = ?", true).
			Order("items.relevance_score desc").
			Find(&related).Error
		if err != nil {
			log.Error("DB error fetching related items", zap.Uint64("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}

		caps := json.RawMessage("[]")
		if len(threat.EnablingCapabilities) > 0 {
			caps = json.RawMessage(threat.EnablingCapabilities)
		}
		c.JSON(http.StatusOK, gin.H{
			"id":                    threat.ID,
			"name":                  threat.Name,
			"category":              threat.Category,
			"description":           threat.Description,
			"feasibility_score":     threat.FeasibilityScore,
			"threat_level":          threat.ThreatLevel,
			"trend":                 threat.Trend,
			"timeline_estimate":     threat.TimelineEstimate,
			"confidence":            threat.Confidence,
			"enabling_capabilities": caps,
			"related_items":         related,
			"related_items_count":   len(related),
		})
	})

	rg.POST("/:id/update", func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid threat id"})
			return
		}
		outcome, err := tracker.Assess(c.Request.Context(), uint(id))
		if err != nil {
			log.Error("Threat assessment failed", zap.Uint64("id", id), zap.Error(err))
			c.JSON(errorStatus(err), gin.H{"error": err.Error()})
			return
		}
		if outcome.Updated {
			threatUpdatesCounter.Inc()
		}
		c.JSON(http.StatusOK, outcome)
	})

	rg.POST("/update-all", func(c *gin.Context) {
		outcomes := tracker.AssessAll(c.Request.Context())
		for _, o := range outcomes {
			if o.Result != nil && o.Result.Updated {
				threatUpdatesCounter.Inc()
			}
		}
		c.JSON(http.StatusOK, outcomes)
	})
}

func setupSourceRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/api/sources")

	rg.POST("", func(c *gin.Context) {
		var req struct {
			Name       string `json:"name" binding:"required"`
			SourceType string `json:"source_type" binding:"required"`
			URL        string `json:"url"`
			Category   string `json:"category"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		source := models.DataSource{
			Name:       req.Name,
			SourceType: req.SourceType,
			URL:        req.URL,
			Category:   req.Category,
			IsActive:   true,
		}
		if err := db.Create(&source).Error; err != nil {
			log.Error("Failed to create source", zap.String("name", req.Name), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create source"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": source.ID, "name": source.Name})
	})

	rg.GET("", func(c *gin.Context) {
		var sources []models.DataSource
		if err := db.Order("id asc").Find(&sources).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, sources)
	})
}

func setupIngestRoutes(router *gin.Engine, ingest *services.IngestionService, log *zap.Logger) {
	rg := router.Group("/api/ingest")

	rg.POST("", func(c *gin.Context) {
		report := ingest.RunAll(c.Request.Context())
		itemsIngestedCounter.Add(float64(report.Fetched))
		c.JSON(http.StatusOK, report)
	})

	rg.POST("/manual", func(c *gin.Context) {
		var req struct {
			Title   string `json:"title" binding:"required"`
			Content string `json:"content" binding:"required"`
			URL     string `json:"url"`
			Authors string `json:"authors"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		item, err := ingest.AddManual(c.Request.Context(), req.Title, req.Content, req.URL, req.Authors)
		if err != nil {
			log.Error("Failed to add manual item", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to add item"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": item.ID, "uid": item.UID, "title": item.Title})
	})
}

func setupClassifyRoutes(router *gin.Engine, db *gorm.DB, cfg *config.Config, classifier *services.Classifier, log *zap.Logger) {
	rg := router.Group("/api/classify")

	rg.POST("/:id", func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
			return
		}
		var item models.Item
		if err := db.First(&item, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		result, err := classifier.Classify(c.Request.Context(), &item)
		if err != nil {
			log.Error("Classification failed", zap.Uint64("item_id", id), zap.Error(err))
			c.JSON(errorStatus(err), gin.H{"error": err.Error()})
			return
		}
		itemsClassifiedCounter.Inc()
		c.JSON(http.StatusOK, result)
	})

	rg.POST("", func(c *gin.Context) {
		var req struct {
			Limit int `json:"limit"`
		}
		// Leerer Body ist erlaubt; dann gilt das konfigurierte Limit.
		if err := c.ShouldBindJSON(&req); err != nil {
			req.Limit = 0
		}
		if req.Limit <= 0 {
			req.Limit = cfg.ClassifyBatchLimit
		}
		outcomes := classifier.ClassifyBatch(c.Request.Context(), req.Limit)
		for _, o := range outcomes {
			if o.Error == "" {
				itemsClassifiedCounter.Inc()
			}
		}
		c.JSON(http.StatusOK, outcomes)
	})
}

func setupItemRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/api/items")

	rg.GET("", func(c *gin.Context) {
		limit := 50
		if v, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil && v > 0 {
			limit = v
		}

		query := db.Model(&models.Item{})
		if c.Query("relevant_only") == "true" {
			query = query.Where("is_relevant = ?", true)
		}
		if c.Query("unclassified_only") == "true" {
			query = query.Where("classified_at IS NULL")
		}

		var items []models.Item
		if err := query.Order("fetched_at desc").Limit(limit).Find(&items).Error; err != nil {
			log.Error("Database query for items failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, items)
	})
}
