package providers

import (
	"context"

	"threat-radar/models"
)

// Provider ist das Interface, das jede abfragbare Quellen-Art
// (z.B. RSS-Feed, arXiv-Suche) implementieren muss.
type Provider interface {
	// Fetch holt die neuesten Kandidaten einer Quelle und gibt sie als
	// noch nicht gespeicherte, unklassifizierte Items zurück.
	Fetch(ctx context.Context, source *models.DataSource) ([]*models.Item, error)

	// Kind gibt den Quellen-Typ zurück, den dieser Provider bedient (z.B. "rss").
	Kind() string
}
