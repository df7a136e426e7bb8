package rss

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"threat-radar/config"
	"threat-radar/models"
)

// Fetcher liest RSS- und Atom-Feeds über gofeed.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
	parser *gofeed.Parser
}

// NewFetcher erstellt einen neuen Feed-Fetcher.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{Config: cfg, Logger: logger, parser: gofeed.NewParser()}
}

// Kind gibt den bedienten Quellen-Typ zurück.
func (f *Fetcher) Kind() string {
	return models.SourceTypeRSS
}

// Fetch lädt den Feed einer Quelle und bildet die neuesten Einträge
// (begrenzt auf FeedMaxEntries) auf Items ab. Einträge ohne parsebares
// Publikationsdatum erhalten kein published_date.
func (f *Fetcher) Fetch(ctx context.Context, source *models.DataSource) ([]*models.Item, error) {
	if source.URL == "" {
		return nil, fmt.Errorf("source %q has no feed url", source.Name)
	}

	log := f.Logger.With(zap.String("source", source.Name))
	log.Info("Starte Feed-Abruf", zap.String("url", source.URL))

	feed, err := f.parser.ParseURLWithContext(source.URL, ctx)
	if err != nil {
		return nil, err
	}

	var items []*models.Item
	for i, entry := range feed.Items {
		if i >= f.Config.FeedMaxEntries {
			break
		}
		title := entry.Title
		if title == "" {
			title = "Untitled"
		}
		content := entry.Description
		if content == "" {
			content = entry.Content
		}
		items = append(items, &models.Item{
			Title:         title,
			URL:           entry.Link,
			Content:       content,
			Authors:       joinAuthors(entry),
			PublishedDate: entry.PublishedParsed,
			FetchedAt:     time.Now().UTC(),
		})
	}

	log.Info("Feed-Abruf abgeschlossen", zap.Int("entries", len(items)))
	return items, nil
}

func joinAuthors(entry *gofeed.Item) string {
	var names []string
	for _, a := range entry.Authors {
		if a != nil && a.Name != "" {
			names = append(names, a.Name)
		}
	}
	return strings.Join(names, ", ")
}
