package main

import (
	"encoding/json"
	"log"
	"time"

	"threat-radar/config"
	"threat-radar/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type seedThreat struct {
	Name             string
	Category         string
	Description      string
	TimelineEstimate string
	Capabilities     []string
}

type seedSource struct {
	Name       string
	SourceType string
	URL        string
	Category   string
}

// Start-Taxonomie und Standardquellen. Bereits vorhandene Einträge
// (nach Name) werden übersprungen, der Befehl ist wiederholbar.
var seedThreats = []seedThreat{
	{
		Name:             "AI-Augmented Dual-Use Biotechnology Misuse",
		Category:         "dual_use",
		Description:      "Use of AI models to repurpose legitimate biotechnology research for harmful applications, lowering the expertise barrier for misuse.",
		TimelineEstimate: "2-5 years",
		Capabilities:     []string{"literature synthesis", "protocol generation", "knowledge uplift"},
	},
	{
		Name:             "AI-Enabled Pathogen Creation and Optimization",
		Category:         "pathogen_design",
		Description:      "AI-assisted design or enhancement of pathogens, including protein design tools applied to virulence factors or transmissibility.",
		TimelineEstimate: "3-7 years",
		Capabilities:     []string{"protein structure prediction", "generative sequence design", "in-silico screening"},
	},
	{
		Name:             "Democratization of Bioengineering and Biothreats",
		Category:         "access",
		Description:      "Broad availability of AI tools and cloud labs reducing the skill and cost required to carry out advanced bioengineering.",
		TimelineEstimate: "1-3 years",
		Capabilities:     []string{"automated lab protocols", "cloud laboratory access", "AI tutoring"},
	},
	{
		Name:             "AI-Enabled Evasion of Biosecurity Screening",
		Category:         "screening_evasion",
		Description:      "Use of AI to design sequences that evade DNA synthesis screening while retaining function.",
		TimelineEstimate: "2-5 years",
		Capabilities:     []string{"sequence obfuscation", "homology reduction", "functional prediction"},
	},
	{
		Name:             "Adversarial Manipulation of AI Biosystems",
		Category:         "adversarial",
		Description:      "Attacks against AI systems embedded in biological research or biosurveillance, causing them to produce harmful or misleading outputs.",
		TimelineEstimate: "3-7 years",
		Capabilities:     []string{"model poisoning", "prompt injection", "data manipulation"},
	},
	{
		Name:             "Automated Laboratory Malware Risks",
		Category:         "infrastructure",
		Description:      "Malware targeting automated laboratory equipment to alter experiments or synthesize dangerous materials without operator knowledge.",
		TimelineEstimate: "5-10 years",
		Capabilities:     []string{"lab automation control", "firmware compromise"},
	},
}

var seedSources = []seedSource{
	{
		Name:       "arXiv AI-Bio Search",
		SourceType: models.SourceTypeArxiv,
		URL:        "artificial intelligence biosecurity",
		Category:   "preprints",
	},
	{
		Name:       "bioRxiv Synthetic Biology",
		SourceType: models.SourceTypeRSS,
		URL:        "https://connect.biorxiv.org/biorxiv_xml.php?subject=synthetic_biology",
		Category:   "preprints",
	},
	{
		Name:       "Nature Biotechnology",
		SourceType: models.SourceTypeRSS,
		URL:        "https://www.nature.com/nbt.rss",
		Category:   "journals",
	},
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

	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	var db *gorm.DB
	if cfg.DBDriver == "postgres" {
		db, err = gorm.Open(postgres.Open(cfg.PostgresDSN()), gormCfg)
	} else {
		db, err = gorm.Open(sqlite.Open(cfg.SQLitePath), gormCfg)
	}
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}

	if err := db.AutoMigrate(&models.Threat{}, &models.DataSource{}, &models.Item{}, &models.ThreatUpdate{}); err != nil {
		logging.Fatal("Auto-migration failed", zap.Error(err))
	}

	createdThreats := 0
	for _, st := range seedThreats {
		var count int64
		if err := db.Model(&models.Threat{}).Where("name = ?", st.Name).Count(&count).Error; err != nil {
			logging.Fatal("DB error checking threat", zap.String("name", st.Name), zap.Error(err))
		}
		if count > 0 {
			logging.Info("Threat already exists, skipping", zap.String("name", st.Name))
			continue
		}
		caps, _ := json.Marshal(st.Capabilities)
		threat := models.Threat{
			Name:                 st.Name,
			Category:             st.Category,
			Description:          st.Description,
			TimelineEstimate:     st.TimelineEstimate,
			EnablingCapabilities: caps,
			FeasibilityScore:     1.0,
			ThreatLevel:          models.ThreatLevelLow,
			Trend:                models.TrendStable,
			Confidence:           0.5,
			LastUpdated:          time.Now().UTC(),
		}
		if err := db.Create(&threat).Error; err != nil {
			logging.Fatal("Failed to create threat", zap.String("name", st.Name), zap.Error(err))
		}
		createdThreats++
	}

	createdSources := 0
	for _, ss := range seedSources {
		var count int64
		if err := db.Model(&models.DataSource{}).Where("name = ? AND source_type = ?", ss.Name, ss.SourceType).Count(&count).Error; err != nil {
			logging.Fatal("DB error checking source", zap.String("name", ss.Name), zap.Error(err))
		}
		if count > 0 {
			logging.Info("Source already exists, skipping", zap.String("name", ss.Name))
			continue
		}
		source := models.DataSource{
			Name:       ss.Name,
			SourceType: ss.SourceType,
			URL:        ss.URL,
			Category:   ss.Category,
			IsActive:   true,
		}
		if err := db.Create(&source).Error; err != nil {
			logging.Fatal("Failed to create source", zap.String("name", ss.Name), zap.Error(err))
		}
		createdSources++
	}

	logging.Info("Seeding completed",
		zap.Int("threats_created", createdThreats),
		zap.Int("sources_created", createdSources))
}
