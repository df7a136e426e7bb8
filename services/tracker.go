package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"threat-radar/llm"
	"threat-radar/models"
)

// evidenceWindow begrenzt, wie viele relevante Items pro Neubewertung
// an das Modell gegeben werden.
const evidenceWindow = 10

const updateSystemPrompt = `You are a biosecurity threat analyst. Based on recent developments, you assess how threat levels and timelines should be updated.

Be conservative but responsive to genuine capability advances. Consider:
- Does this represent real progress or incremental research?
- How much does this lower barriers for malicious actors?
- What timeline implications does this have?`

// Assessment ist das erwartete JSON-Ergebnis des Modells für eine Neubewertung.
type Assessment struct {
	ShouldUpdate        bool    `json:"should_update"`
	NewFeasibilityScore float64 `json:"new_feasibility_score"`
	NewThreatLevel      string  `json:"new_threat_level"`
	NewTrend            string  `json:"new_trend"`
	NewTimelineEstimate string  `json:"new_timeline_estimate"`
	Confidence          float64 `json:"confidence"`
	Reasoning           string  `json:"reasoning"`
}

// AssessOutcome beschreibt den Ausgang einer einzelnen Neubewertung.
type AssessOutcome struct {
	Updated   bool    `json:"updated"`
	Threat    string  `json:"threat"`
	Message   string  `json:"message,omitempty"`
	Reasoning string  `json:"reasoning,omitempty"`
	NewScore  float64 `json:"new_score,omitempty"`
	NewLevel  string  `json:"new_level,omitempty"`
}

// ThreatOutcome hält das Ergebnis eines einzelnen Threats innerhalb
// eines Batch-Laufs fest, Erfolg wie Fehler.
type ThreatOutcome struct {
	Threat string         `json:"threat"`
	Result *AssessOutcome `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// ThreatStatus ist die Dashboard-Projektion eines Threats.
type ThreatStatus struct {
	ID               uint      `json:"id"`
	Name             string    `json:"name"`
	Category         string    `json:"category"`
	Description      string    `json:"description"`
	FeasibilityScore float64   `json:"feasibility_score"`
	ThreatLevel      string    `json:"threat_level"`
	Trend            string    `json:"trend"`
	TimelineEstimate string    `json:"timeline_estimate"`
	Confidence       float64   `json:"confidence"`
	LastUpdated      time.Time `json:"last_updated"`
	RelevantItems    int64     `json:"relevant_items_count"`
}

// TrackerService bewertet Threats auf Basis ihrer verknüpften Evidenz neu.
type TrackerService struct {
	DB     *gorm.DB
	LLM    llm.Completer
	Logger *zap.Logger
}

// NewTrackerService erstellt eine neue Instanz des TrackerService.
func NewTrackerService(db *gorm.DB, completer llm.Completer, logger *zap.Logger) *TrackerService {
	return &TrackerService{DB: db, LLM: completer, Logger: logger}
}

func buildUpdatePrompt(threat *models.Threat, items []models.Item) string {
	var evidence strings.Builder
	for i := range items {
		if i > 0 {
			evidence.WriteString("\n\n")
		}
		impact := ""
		if items[i].ImpactLevel != nil {
			impact = string(*items[i].ImpactLevel)
		}
		fmt.Fprintf(&evidence, "TITLE: %s\nIMPACT: %s\nCAPABILITIES: %s\nREASONING: %s",
			items[i].Title, impact, string(items[i].CapabilitiesIdentified), items[i].ClassificationReasoning)
	}

	return fmt.Sprintf(`Assess whether this threat's status should be updated based on recent developments.

THREAT: %s
CATEGORY: %s
DESCRIPTION: %s
ENABLING CAPABILITIES: %s

CURRENT STATUS:
- Feasibility Score: %.1f/5
- Threat Level: %s
- Trend: %s
- Timeline Estimate: %s

RECENT RELEVANT DEVELOPMENTS:
%s

---

Respond with JSON:
{
    "should_update": true/false,
    "new_feasibility_score": 1.0-5.0,
    "new_threat_level": "low" | "medium" | "high" | "critical",
    "new_trend": "stable" | "increasing" | "rapidly_increasing" | "decreasing",
    "new_timeline_estimate": "e.g., 6-12 months",
    "confidence": 0.0-1.0,
    "reasoning": "Explanation for the assessment"
}`,
		threat.Name, threat.Category, threat.Description, string(threat.EnablingCapabilities),
		threat.FeasibilityScore, threat.ThreatLevel, threat.Trend, threat.TimelineEstimate,
		evidence.String())
}

// recentEvidence liefert die letzten relevanten, klassifizierten Items des
// Threats in natürlicher Lade-Reihenfolge, begrenzt auf das Evidenzfenster.
func (t *TrackerService) recentEvidence(threatID uint) ([]models.Item, error) {
	var items []models.Item
	err := t.DB.
		Joins("JOIN item_threat_links ON item_threat_links.item_id = items.id").
		Where("item_threat_links.threat_id = ?", threatID).
		Where("items.is_relevant = ?", true).
		Where("items.classified_at IS NOT NULL").
		Order("items.id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	if len(items) > evidenceWindow {
		items = items[len(items)-evidenceWindow:]
	}
	return items, nil
}

// Assess prüft, ob ein Threat auf Basis seiner jüngsten Evidenz neu bewertet
// werden muss. Eine akzeptierte Revision wird atomar angewendet: Audit-Eintrag
// und Feld-Überschreibung sind eine logische Einheit, halbe Updates sind für
// Leser nie sichtbar. Ohne Evidenz findet kein Modellaufruf statt.
func (t *TrackerService) Assess(ctx context.Context, threatID uint) (*AssessOutcome, error) {
	var threat models.Threat
	if err := t.DB.First(&threat, threatID).Error; err != nil {
		return nil, err
	}

	items, err := t.recentEvidence(threat.ID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return &AssessOutcome{
			Updated: false,
			Threat:  threat.Name,
			Message: "no recent relevant items to assess",
		}, nil
	}

	prompt := buildUpdatePrompt(&threat, items)
	var result Assessment
	if err := t.LLM.CompleteJSON(ctx, prompt, updateSystemPrompt, 2000, 0.2, &result); err != nil {
		return nil, err
	}

	if !result.ShouldUpdate {
		return &AssessOutcome{
			Updated:   false,
			Threat:    threat.Name,
			Message:   "no update needed",
			Reasoning: result.Reasoning,
		}, nil
	}

	level, err := models.ParseThreatLevel(result.NewThreatLevel)
	if err != nil {
		return nil, err
	}
	trend, err := models.ParseTrendDirection(result.NewTrend)
	if err != nil {
		return nil, err
	}

	auditRow := models.ThreatUpdate{
		ThreatID:      threat.ID,
		PreviousScore: threat.FeasibilityScore,
		NewScore:      result.NewFeasibilityScore,
		PreviousLevel: string(threat.ThreatLevel),
		NewLevel:      string(level),
		Reasoning:     result.Reasoning,
	}

	err = t.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&auditRow).Error; err != nil {
			return err
		}
		return tx.Model(&threat).Updates(map[string]any{
			"feasibility_score": result.NewFeasibilityScore,
			"threat_level":      string(level),
			"trend":             string(trend),
			"timeline_estimate": result.NewTimelineEstimate,
			"confidence":        result.Confidence,
			"last_updated":      time.Now().UTC(),
		}).Error
	})
	if err != nil {
		return nil, err
	}

	t.Logger.Info("Threat neu bewertet",
		zap.String("threat", threat.Name),
		zap.Float64("new_score", result.NewFeasibilityScore),
		zap.String("new_level", string(level)))

	return &AssessOutcome{
		Updated:   true,
		Threat:    threat.Name,
		Reasoning: result.Reasoning,
		NewScore:  result.NewFeasibilityScore,
		NewLevel:  string(level),
	}, nil
}

// AssessAll bewertet alle Threats nacheinander neu. Der Fehler eines
// einzelnen Threats wird festgehalten und bricht den Lauf nicht ab.
func (t *TrackerService) AssessAll(ctx context.Context) []ThreatOutcome {
	outcomes := []ThreatOutcome{}

	var threats []models.Threat
	if err := t.DB.Order("id asc").Find(&threats).Error; err != nil {
		t.Logger.Error("Threats konnten nicht geladen werden", zap.Error(err))
		return outcomes
	}

	for i := range threats {
		result, err := t.Assess(ctx, threats[i].ID)
		if err != nil {
			t.Logger.Warn("Neubewertung fehlgeschlagen",
				zap.String("threat", threats[i].Name), zap.Error(err))
			outcomes = append(outcomes, ThreatOutcome{Threat: threats[i].Name, Error: err.Error()})
			continue
		}
		outcomes = append(outcomes, ThreatOutcome{Threat: threats[i].Name, Result: result})
	}

	return outcomes
}

// Dashboard ist eine rein lesende Projektion über den aktuellen Zustand
// aller Threats samt Anzahl ihrer relevanten verknüpften Items.
func (t *TrackerService) Dashboard() ([]ThreatStatus, error) {
	var threats []models.Threat
	if err := t.DB.Order("id asc").Find(&threats).Error; err != nil {
		return nil, err
	}

	statuses := make([]ThreatStatus, 0, len(threats))
	for i := range threats {
		th := &threats[i]
		var count int64
		err := t.DB.Model(&models.Item{}).
			Joins("JOIN item_threat_links ON item_threat_links.item_id = items.id").
			Where("item_threat_links.threat_id = ?", th.ID).
			Where("items.is_relevant = ?", true).
			Count(&count).Error
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, ThreatStatus{
			ID:               th.ID,
			Name:             th.Name,
			Category:         th.Category,
			Description:      th.Description,
			FeasibilityScore: th.FeasibilityScore,
			ThreatLevel:      string(th.ThreatLevel),
			Trend:            string(th.Trend),
			TimelineEstimate: th.TimelineEstimate,
			Confidence:       th.Confidence,
			LastUpdated:      th.LastUpdated,
			RelevantItems:    count,
		})
	}
	return statuses, nil
}
