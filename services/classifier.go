package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"threat-radar/llm"
	"threat-radar/models"
)

// ErrNoTaxonomy wird geliefert, wenn noch keine Bedrohungs-Taxonomie
// angelegt ist. Die Prüfung passiert vor dem Modellaufruf, damit kein
// Aufruf ohne auswertbares Ergebnis bezahlt wird.
var ErrNoTaxonomy = errors.New("no taxonomy defined")

const classificationSystemPrompt = `You are a biosecurity threat analyst with expertise in AI capabilities and biological risks.

Your task is to analyze content and determine:
1. Whether the AI capabilities relate to any biosecurity threat categories
2. The potential impact on threat timelines
3. Specific capabilities that are advancing that will have an affect on the listed biosecurity threats

Be comprehensive but realistic. Avoid science fiction - focus on plausible threats based on current or near-future AI capabilities. You can flag items that will have biosecurity relevance.`

// Classification ist das erwartete JSON-Ergebnis des Modells für ein einzelnes Item.
type Classification struct {
	IsRelevant             bool     `json:"is_relevant"`
	RelevanceScore         float64  `json:"relevance_score"`
	ImpactLevel            string   `json:"impact_level"`
	RelatedThreatNames     []string `json:"related_threat_names"`
	CapabilitiesIdentified []string `json:"capabilities_identified"`
	Reasoning              string   `json:"reasoning"`
}

// ItemOutcome hält das Ergebnis eines einzelnen Items innerhalb eines
// Klassifikations-Batches fest, Erfolg wie Fehler.
type ItemOutcome struct {
	ItemID uint            `json:"item_id"`
	Title  string          `json:"title"`
	Result *Classification `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Classifier bewertet Items gegen die Threat-Taxonomie.
type Classifier struct {
	DB     *gorm.DB
	LLM    llm.Completer
	Logger *zap.Logger
}

// NewClassifier erstellt eine neue Instanz des Classifiers.
func NewClassifier(db *gorm.DB, completer llm.Completer, logger *zap.Logger) *Classifier {
	return &Classifier{DB: db, LLM: completer, Logger: logger}
}

func buildClassificationPrompt(item *models.Item, threats []models.Threat) string {
	var list strings.Builder
	for _, t := range threats {
		fmt.Fprintf(&list, "- %q (Category: %s)\n", t.Name, t.Category)
	}

	content := item.Content
	if content == "" {
		content = "No content available"
	}
	authors := item.Authors
	if authors == "" {
		authors = "Unknown"
	}
	published := "Unknown"
	if item.PublishedDate != nil {
		published = item.PublishedDate.Format("2006-01-02")
	}

	return fmt.Sprintf(`Analyze this content for biosecurity relevance:

TITLE: %s

CONTENT:
%s

AUTHORS: %s
PUBLISHED: %s

---

THREAT CATEGORIES TO CHECK (use EXACT names from this list):
%s
---

IMPORTANT: For "related_threat_names", you MUST use the EXACT threat names from the list above (copy them exactly as shown in quotes).

Respond with JSON:
{
    "is_relevant": true/false,
    "relevance_score": 0.0-1.0,
    "impact_level": "none" | "incremental" | "significant" | "step_change",
    "related_threat_names": ["exact threat name 1", "exact threat name 2"],
    "capabilities_identified": ["capability 1", "capability 2"],
    "reasoning": "Brief explanation of relevance and impact"
}`, item.Title, content, authors, published, list.String())
}

// Classify klassifiziert ein einzelnes Item gegen die aktuelle Taxonomie,
// schreibt das Ergebnis auf das Item und verknüpft es mit den aufgelösten
// Threats. Namen, die sich nicht auflösen lassen, werden stillschweigend
// verworfen.
func (c *Classifier) Classify(ctx context.Context, item *models.Item) (*Classification, error) {
	var threats []models.Threat
	if err := c.DB.Order("id asc").Find(&threats).Error; err != nil {
		return nil, err
	}
	if len(threats) == 0 {
		return nil, ErrNoTaxonomy
	}

	prompt := buildClassificationPrompt(item, threats)
	var result Classification
	if err := c.LLM.CompleteJSON(ctx, prompt, classificationSystemPrompt, 2000, 0.2, &result); err != nil {
		return nil, err
	}

	impact, err := models.ParseImpactLevel(result.ImpactLevel)
	if err != nil {
		return nil, err
	}

	capsJSON, err := json.Marshal(result.CapabilitiesIdentified)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	item.IsRelevant = &result.IsRelevant
	item.RelevanceScore = &result.RelevanceScore
	item.ImpactLevel = &impact
	item.ClassificationReasoning = result.Reasoning
	item.CapabilitiesIdentified = datatypes.JSON(capsJSON)
	item.ClassifiedAt = &now
	if err := c.DB.Save(item).Error; err != nil {
		return nil, err
	}

	for _, name := range result.RelatedThreatNames {
		threat := resolveThreatName(threats, name)
		if threat == nil {
			continue
		}
		linked, err := c.isLinked(item.ID, threat.ID)
		if err != nil {
			return nil, err
		}
		if linked {
			continue
		}
		if err := c.DB.Model(item).Association("RelatedThreats").Append(threat); err != nil {
			return nil, err
		}
		c.Logger.Info("Item mit Threat verknüpft",
			zap.Uint("item_id", item.ID), zap.String("threat", threat.Name))
	}

	return &result, nil
}

// resolveThreatName löst einen vom Modell gelieferten Namen auf: erst über
// exakte Gleichheit, dann über einen case-insensitiven Substring-Vergleich
// in beide Richtungen. Bei Mehrdeutigkeit gewinnt der erste Treffer in
// Taxonomie-Reihenfolge; das kann bei Namen, die ineinander enthalten sind,
// falsch verknüpfen (bekannte Schwäche des einfachen Matchings).
func resolveThreatName(threats []models.Threat, name string) *models.Threat {
	for i := range threats {
		if threats[i].Name == name {
			return &threats[i]
		}
	}

	lower := strings.ToLower(strings.TrimSpace(name))
	if lower == "" {
		return nil
	}
	for i := range threats {
		tn := strings.ToLower(threats[i].Name)
		if strings.Contains(tn, lower) || strings.Contains(lower, tn) {
			return &threats[i]
		}
	}
	return nil
}

func (c *Classifier) isLinked(itemID, threatID uint) (bool, error) {
	var count int64
	err := c.DB.Table("item_threat_links").
		Where("item_id = ? AND threat_id = ?", itemID, threatID).
		Count(&count).Error
	return count > 0, err
}

// ClassifyBatch klassifiziert bis zu limit unklassifizierte Items, älteste
// zuerst. Der Fehler eines einzelnen Items wird als Ergebnis festgehalten
// und bricht den Batch nicht ab; fehlgeschlagene Items bleiben unklassifiziert.
func (c *Classifier) ClassifyBatch(ctx context.Context, limit int) []ItemOutcome {
	outcomes := []ItemOutcome{}

	var items []models.Item
	if err := c.DB.Where("classified_at IS NULL").Order("fetched_at asc").Limit(limit).Find(&items).Error; err != nil {
		c.Logger.Error("Unklassifizierte Items konnten nicht geladen werden", zap.Error(err))
		return outcomes
	}

	for i := range items {
		item := &items[i]
		result, err := c.Classify(ctx, item)
		if err != nil {
			c.Logger.Warn("Klassifikation fehlgeschlagen",
				zap.Uint("item_id", item.ID), zap.Error(err))
			outcomes = append(outcomes, ItemOutcome{ItemID: item.ID, Title: item.Title, Error: err.Error()})
			continue
		}
		outcomes = append(outcomes, ItemOutcome{ItemID: item.ID, Title: item.Title, Result: result})
	}

	return outcomes
}
