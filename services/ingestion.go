package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"threat-radar/models"
	"threat-radar/providers"
)

// manualSourceName ist der Name der synthetischen Quelle, unter der
// manuell eingereichte Items geführt werden.
const manualSourceName = "Manual Entry"

// SourceError hält den Fehler einer einzelnen Quelle innerhalb eines Batch-Laufs fest.
type SourceError struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

// IngestReport fasst einen kompletten Ingestion-Lauf zusammen.
type IngestReport struct {
	Fetched          int           `json:"fetched"`
	SourcesProcessed int           `json:"sources_processed"`
	Errors           []SourceError `json:"errors"`
}

// IngestionService orchestriert das Abrufen, Deduplizieren und Speichern neuer Items.
type IngestionService struct {
	DB        *gorm.DB
	Logger    *zap.Logger
	Providers map[string]providers.Provider // keyed by Quellen-Typ
}

// NewIngestionService erstellt eine neue Instanz des IngestionService.
func NewIngestionService(db *gorm.DB, logger *zap.Logger, provs []providers.Provider) *IngestionService {
	m := make(map[string]providers.Provider, len(provs))
	for _, p := range provs {
		m[p.Kind()] = p
	}
	return &IngestionService{DB: db, Logger: logger, Providers: m}
}

// FetchSource holt neue Items einer Quelle, dedupliziert per URL gegen den
// Bestand und speichert die übrigen unklassifiziert. last_fetched wird nach
// jedem Abrufversuch gestempelt, unabhängig vom Ausgang.
func (s *IngestionService) FetchSource(ctx context.Context, source *models.DataSource) (created []*models.Item, err error) {
	provider, ok := s.Providers[source.SourceType]
	if !ok {
		return nil, fmt.Errorf("no provider for source type %q", source.SourceType)
	}

	defer func() {
		now := time.Now().UTC()
		source.LastFetched = &now
		if dbErr := s.DB.Model(source).Update("last_fetched", now).Error; dbErr != nil && err == nil {
			err = dbErr
		}
	}()

	candidates, err := provider.Fetch(ctx, source)
	if err != nil {
		return nil, err
	}

	for _, item := range candidates {
		if item.URL != "" {
			var count int64
			if cntErr := s.DB.Model(&models.Item{}).Where("url = ?", item.URL).Count(&count).Error; cntErr != nil {
				return created, cntErr
			}
			if count > 0 {
				continue
			}
		}
		item.SourceID = source.ID
		if item.FetchedAt.IsZero() {
			item.FetchedAt = time.Now().UTC()
		}
		if createErr := s.DB.Create(item).Error; createErr != nil {
			return created, createErr
		}
		created = append(created, item)
	}

	s.Logger.Info("Quelle abgerufen",
		zap.String("source", source.Name),
		zap.Int("candidates", len(candidates)),
		zap.Int("new_items", len(created)))
	return created, nil
}

// AddManual legt ein manuell eingereichtes Item unter der synthetischen
// "manual"-Quelle an. published_date ist die Eingabezeit, da manuelle
// Items kein echtes Publikationsdatum haben. Items mit bereits bekannter
// URL werden nicht erneut eingefügt; ohne URL findet keine Deduplizierung
// statt (insbesondere nie über den Titel).
func (s *IngestionService) AddManual(ctx context.Context, title, content, urlStr, authors string) (*models.Item, error) {
	if urlStr != "" {
		var existing models.Item
		err := s.DB.Where("url = ?", urlStr).First(&existing).Error
		if err == nil {
			return &existing, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	source, err := s.manualSource()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	item := &models.Item{
		SourceID:      source.ID,
		Title:         title,
		URL:           urlStr,
		Content:       content,
		Authors:       authors,
		PublishedDate: &now,
		FetchedAt:     now,
	}
	if err := s.DB.Create(item).Error; err != nil {
		return nil, err
	}

	s.Logger.Info("Manuelles Item angelegt", zap.Uint("item_id", item.ID), zap.String("title", item.Title))
	return item, nil
}

// manualSource liefert die Singleton-Quelle für manuelle Eingaben und
// legt sie beim ersten Zugriff an.
func (s *IngestionService) manualSource() (*models.DataSource, error) {
	var source models.DataSource
	err := s.DB.Where("name = ? AND source_type = ?", manualSourceName, models.SourceTypeManual).First(&source).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		source = models.DataSource{
			Name:       manualSourceName,
			SourceType: models.SourceTypeManual,
			Category:   "manual",
			IsActive:   true,
		}
		if createErr := s.DB.Create(&source).Error; createErr != nil {
			return nil, createErr
		}
		return &source, nil
	}
	if err != nil {
		return nil, err
	}
	return &source, nil
}

// RunAll verarbeitet alle aktiven Quellen nacheinander. Der Fehler einer
// einzelnen Quelle wird festgehalten und bricht den Lauf nicht ab;
// Quellen-Typen ohne Provider werden ohne Abrufversuch übersprungen.
func (s *IngestionService) RunAll(ctx context.Context) *IngestReport {
	report := &IngestReport{Errors: []SourceError{}}

	var sources []models.DataSource
	if err := s.DB.Where("is_active = ?", true).Order("id asc").Find(&sources).Error; err != nil {
		s.Logger.Error("Quellen konnten nicht geladen werden", zap.Error(err))
		report.Errors = append(report.Errors, SourceError{Source: "*", Error: err.Error()})
		return report
	}

	for i := range sources {
		source := &sources[i]
		if _, ok := s.Providers[source.SourceType]; !ok {
			report.SourcesProcessed++
			continue
		}
		items, err := s.FetchSource(ctx, source)
		if err != nil {
			s.Logger.Error("Abruf der Quelle fehlgeschlagen",
				zap.String("source", source.Name), zap.Error(err))
			report.Errors = append(report.Errors, SourceError{Source: source.Name, Error: err.Error()})
			continue
		}
		report.Fetched += len(items)
		report.SourcesProcessed++
	}

	s.Logger.Info("Ingestion-Lauf abgeschlossen",
		zap.Int("fetched", report.Fetched),
		zap.Int("sources_processed", report.SourcesProcessed),
		zap.Int("errors", len(report.Errors)))
	return report
}
