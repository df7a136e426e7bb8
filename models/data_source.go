package models

import "time"

// Quellen-Typen, die die Ingestion kennt.
const (
	SourceTypeRSS    = "rss"
	SourceTypeArxiv  = "arxiv"
	SourceTypeManual = "manual"
)

// DataSource repräsentiert eine konfigurierte Herkunft von Items
// (Feed, arXiv-Suche oder die synthetische Quelle für manuelle Eingaben).
type DataSource struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	Name       string `json:"name" gorm:"not null;size:200;index:idx_sources_name_type,unique"`
	SourceType string `json:"source_type" gorm:"size:50;index:idx_sources_name_type,unique"`
	// Feed-URL bzw. Suchquery bei arXiv-Quellen
	URL      string `json:"url,omitempty" gorm:"size:500"`
	Category string `json:"category,omitempty" gorm:"size:100"`

	IsActive    bool       `json:"is_active" gorm:"default:true"`
	LastFetched *time.Time `json:"last_fetched,omitempty"`

	Items []Item `json:"-" gorm:"foreignKey:SourceID"`
}

// TableName gibt explizit den Tabellennamen an.
func (DataSource) TableName() string {
	return "data_sources"
}
