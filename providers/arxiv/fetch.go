package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"threat-radar/config"
	"threat-radar/models"
)

var httpClient = &http.Client{Timeout: 60 * time.Second}

// Fetcher kapselt die Suche über die arXiv-Export-API.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
}

// NewFetcher erstellt einen neuen arXiv-Fetcher.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{Config: cfg, Logger: logger}
}

// Kind gibt den bedienten Quellen-Typ zurück.
func (f *Fetcher) Kind() string {
	return models.SourceTypeArxiv
}

// Fetch führt die in der Quelle hinterlegte Suchquery aus.
func (f *Fetcher) Fetch(ctx context.Context, source *models.DataSource) ([]*models.Item, error) {
	if source.URL == "" {
		return nil, fmt.Errorf("source %q has no search query", source.Name)
	}
	return f.Search(ctx, source.URL, f.Config.ArxivMaxResults)
}

// Search führt eine begrenzte Suche aus, sortiert nach Einreichdatum absteigend.
func (f *Fetcher) Search(ctx context.Context, query string, maxResults int) ([]*models.Item, error) {
	log := f.Logger.With(zap.String("query", query))
	log.Info("Starte arXiv-Suche")

	searchURL := fmt.Sprintf("%s?search_query=%s&sortBy=submittedDate&sortOrder=descending&start=0&max_results=%d",
		f.Config.ArxivBaseURL, url.QueryEscape(query), maxResults)
	log.Debug("Rufe arXiv-Export-API auf", zap.String("url", searchURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arxiv search failed: status %d", resp.StatusCode)
	}

	var feed Feed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, err
	}

	var items []*models.Item
	for i := range feed.Entries {
		items = append(items, mapEntryToItem(&feed.Entries[i]))
	}

	log.Info("arXiv-Suche abgeschlossen", zap.Int("found_entries", len(items)))
	return items, nil
}

// mapEntryToItem wandelt einen Atom-Eintrag in unser Item-Modell um.
func mapEntryToItem(entry *Entry) *models.Item {
	item := &models.Item{
		Title:     strings.TrimSpace(entry.Title),
		URL:       entry.ID,
		Content:   strings.TrimSpace(entry.Summary),
		FetchedAt: time.Now().UTC(),
	}

	var names []string
	for _, a := range entry.Authors {
		if a.Name == "" {
			continue
		}
		names = append(names, a.Name)
		if len(names) == 5 {
			break
		}
	}
	item.Authors = strings.Join(names, ", ")

	if t, err := time.Parse(time.RFC3339, entry.Published); err == nil {
		item.PublishedDate = &t
	}

	return item
}
