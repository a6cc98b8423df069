package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/wikifeed/feedengine/pkg/models"
	"github.com/wikifeed/feedengine/pkg/utils"
)

// TopicResolver maps a topic key, as it appears in URLs, to the display
// phrase searched upstream. It returns ErrNotFound for unknown or empty keys.
type TopicResolver interface {
	ResolveTopic(ctx context.Context, key string) (string, error)
}

// SlugResolver derives the phrase from the key itself: "Climate_change"
// becomes "Climate change".
type SlugResolver struct{}

// ResolveTopic implements TopicResolver.
func (SlugResolver) ResolveTopic(ctx context.Context, key string) (string, error) {
	phrase := utils.SlugToPhrase(key)
	if phrase == "" {
		return "", models.Errorf(models.KindNotFound, "topic.resolve", "empty topic key %q", key)
	}
	return phrase, nil
}

// CatalogEntry is one topic of a catalog file.
type CatalogEntry struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
}

// Catalog resolves topic keys against a fixed list of known topics, with an
// optional fallback resolver for keys not in the list.
type Catalog struct {
	titles   map[string]string
	fallback TopicResolver
}

// NewCatalog builds a catalog from entries. Slugs match case-insensitively.
func NewCatalog(entries []CatalogEntry, fallback TopicResolver) *Catalog {
	c := &Catalog{titles: make(map[string]string, len(entries)), fallback: fallback}
	for _, e := range entries {
		title := strings.TrimSpace(e.Title)
		if e.Slug == "" || title == "" {
			continue
		}
		c.titles[catalogKey(e.Slug)] = title
	}
	return c
}

// LoadCatalog reads a JSON array of CatalogEntry from path.
func LoadCatalog(path string, fallback TopicResolver) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topic catalog: %w", err)
	}
	var entries []CatalogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse topic catalog %s: %w", path, err)
	}
	return NewCatalog(entries, fallback), nil
}

// ResolveTopic implements TopicResolver.
func (c *Catalog) ResolveTopic(ctx context.Context, key string) (string, error) {
	if title, ok := c.titles[catalogKey(key)]; ok {
		return title, nil
	}
	if c.fallback != nil {
		return c.fallback.ResolveTopic(ctx, key)
	}
	return "", models.Errorf(models.KindNotFound, "topic.resolve", "unknown topic %q", key)
}

// Len returns the number of known topics.
func (c *Catalog) Len() int {
	return len(c.titles)
}

func catalogKey(slug string) string {
	return models.NormalizeQuery(utils.SlugToPhrase(slug))
}
