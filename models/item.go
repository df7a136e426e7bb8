package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Item ist ein einzelnes ingestiertes Dokument (Feed-Eintrag, Paper
// oder manuelle Eingabe). Die Klassifikationsfelder bleiben leer,
// bis der Classifier das Item bewertet hat.
type Item struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UID       string    `json:"uid" gorm:"uniqueIndex;size:36"`
	CreatedAt time.Time `json:"created_at"`

	SourceID uint        `json:"source_id" gorm:"index"`
	Source   *DataSource `json:"-"`

	Title         string     `json:"title" gorm:"not null;size:500"`
	URL           string     `json:"url,omitempty" gorm:"size:500;index"`
	Content       string     `json:"content,omitempty" gorm:"type:text"` // Abstract oder Volltext
	Authors       string     `json:"authors,omitempty" gorm:"size:500"`
	PublishedDate *time.Time `json:"published_date,omitempty"`
	FetchedAt     time.Time  `json:"fetched_at"`

	// Klassifikationsergebnisse; null bis classified_at gesetzt ist
	IsRelevant              *bool          `json:"is_relevant,omitempty"`
	RelevanceScore          *float64       `json:"relevance_score,omitempty"` // 0-1
	ImpactLevel             *ImpactLevel   `json:"impact_level,omitempty" gorm:"size:50"`
	ClassificationReasoning string         `json:"classification_reasoning,omitempty" gorm:"type:text"`
	CapabilitiesIdentified  datatypes.JSON `json:"capabilities_identified,omitempty"`
	ClassifiedAt            *time.Time     `json:"classified_at,omitempty"`

	RelatedThreats []*Threat `json:"-" gorm:"many2many:item_threat_links"`
}

// TableName gibt explizit den Tabellennamen an.
func (Item) TableName() string {
	return "items"
}

// BeforeCreate vergibt eine externe, von der Zeilen-ID unabhängige Kennung.
func (i *Item) BeforeCreate(*gorm.DB) error {
	if i.UID == "" {
		i.UID = uuid.NewString()
	}
	return nil
}
