package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"threat-radar/llm"
	"threat-radar/models"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	if err := db.AutoMigrate(&models.Threat{}, &models.DataSource{}, &models.Item{}, &models.ThreatUpdate{}); err != nil {
		t.Fatalf("auto-migration failed: %v", err)
	}
	return db
}

// stubCompleter liefert vorbereitete Antworten in Reihenfolge und zählt Aufrufe.
type stubCompleter struct {
	responses []string
	calls     int
	err       error
}

func (s *stubCompleter) next() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if s.calls > len(s.responses) {
		return "", errNoMoreResponses
	}
	return s.responses[s.calls-1], nil
}

func (s *stubCompleter) Complete(ctx context.Context, prompt, systemPrompt string, maxTokens int, temperature float64) (string, error) {
	s.calls++
	return s.next()
}

func (s *stubCompleter) CompleteJSON(ctx context.Context, prompt, systemPrompt string, maxTokens int, temperature float64, out any) error {
	s.calls++
	text, err := s.next()
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return &llm.DecodeError{Raw: text, Err: err}
	}
	return nil
}

var errNoMoreResponses = errors.New("no stubbed response left")

// fakeProvider liefert bei jedem Abruf Kopien der vorbereiteten Items.
type fakeProvider struct {
	kind  string
	items []models.Item
	err   error
	calls int
}

func (f *fakeProvider) Kind() string { return f.kind }

func (f *fakeProvider) Fetch(ctx context.Context, source *models.DataSource) ([]*models.Item, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]*models.Item, 0, len(f.items))
	for i := range f.items {
		copied := f.items[i]
		out = append(out, &copied)
	}
	return out, nil
}

func createThreat(t *testing.T, db *gorm.DB, name, category string) *models.Threat {
	t.Helper()
	threat := &models.Threat{
		Name:             name,
		Category:         category,
		FeasibilityScore: 1.0,
		ThreatLevel:      models.ThreatLevelLow,
		Trend:            models.TrendStable,
		Confidence:       0.5,
	}
	if err := db.Create(threat).Error; err != nil {
		t.Fatalf("failed to create threat %q: %v", name, err)
	}
	return threat
}

func testLogger() *zap.Logger { return zap.NewNop() }
