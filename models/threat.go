package models

import (
	"time"

	"gorm.io/datatypes"
)

// Threat repräsentiert eine verfolgte Biosicherheits-Bedrohungskategorie
// samt ihrer aktuell gültigen Einschätzung.
type Threat struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	Name        string `json:"name" gorm:"uniqueIndex;not null;size:200"`
	Category    string `json:"category" gorm:"index;size:100"`
	Description string `json:"description,omitempty" gorm:"type:text"`

	// Aktuelle Einschätzung; wird ausschließlich vom Assessment überschrieben.
	FeasibilityScore float64        `json:"feasibility_score" gorm:"default:1.0"` // Skala 1-5
	ThreatLevel      ThreatLevel    `json:"threat_level" gorm:"size:50;default:'low'"`
	Trend            TrendDirection `json:"trend" gorm:"size:50;default:'stable'"`
	TimelineEstimate string         `json:"timeline_estimate,omitempty" gorm:"size:100"` // z.B. "12-24 months"
	Confidence       float64        `json:"confidence" gorm:"default:0.5"`               // 0-1

	// Befähigende Capabilities als JSON-Liste von Strings
	EnablingCapabilities datatypes.JSON `json:"enabling_capabilities,omitempty"`

	LastUpdated time.Time `json:"last_updated"`

	Items []*Item `json:"-" gorm:"many2many:item_threat_links"`
}

// TableName gibt explizit den Tabellennamen an.
func (Threat) TableName() string {
	return "threats"
}
