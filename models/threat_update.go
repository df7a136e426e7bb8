package models

import "time"

// ThreatUpdate ist der unveränderliche Audit-Eintrag einer akzeptierten
// Neubewertung. Er wird genau einmal pro Revision geschrieben und danach
// weder geändert noch gelöscht.
type ThreatUpdate struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	ThreatID uint `json:"threat_id" gorm:"index;not null"`

	PreviousScore float64 `json:"previous_score"`
	NewScore      float64 `json:"new_score"`
	PreviousLevel string  `json:"previous_level" gorm:"size:50"`
	NewLevel      string  `json:"new_level" gorm:"size:50"`

	TriggerItemID *uint  `json:"trigger_item_id,omitempty"`
	Reasoning     string `json:"reasoning,omitempty" gorm:"type:text"`
}

// TableName gibt explizit den Tabellennamen an.
func (ThreatUpdate) TableName() string {
	return "threat_updates"
}
