package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"wxrss/pkg/fetcher"
)

// cst is the platform's home timezone; item timestamps render in it.
var cst = time.FixedZone("CST", 8*60*60)

// Ref identifies the publisher inside the feed document and its items.
type Ref struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Cover string `json:"cover"`
	Intro string `json:"intro"`
}

// Image is an item's cover image.
type Image struct {
	URL string `json:"url"`
}

// Item is one article entry in the feed.
type Item struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Link        string `json:"link"`
	Updated     string `json:"updated"`
	Image       *Image `json:"image,omitempty"`
	Author      string `json:"author,omitempty"`
	Content     string `json:"content,omitempty"`
	ContentHTML string `json:"content_html,omitempty"`
	Feed        *Ref   `json:"feed,omitempty"`
	ChannelName string `json:"channel_name,omitempty"`
}

// Document is the full feed.
type Document struct {
	Name        string `json:"name"`
	Link        string `json:"link"`
	Description string `json:"description"`
	Language    string `json:"language"`
	Cover       string `json:"cover"`
	Feed        *Ref   `json:"feed,omitempty"`
	Items       []Item `json:"items"`
}

// Generator projects fetched articles into a feed document for one
// publisher.
type Generator struct {
	Name    string
	Intro   string
	BaseURL string
	Cover   string
}

// NewGenerator creates a feed generator for the named publisher.
func NewGenerator(name, intro, baseURL, cover string) *Generator {
	return &Generator{Name: name, Intro: intro, BaseURL: baseURL, Cover: cover}
}

// Generate builds the feed document. With fullText set, items carry the
// article body; feedID, when given, attaches the publisher reference to the
// document and every item.
func (g *Generator) Generate(articles []fetcher.Article, fullText bool, feedID string) *Document {
	description := g.Intro
	if description == "" {
		description = g.Name
	}

	doc := &Document{
		Name:        g.Name,
		Link:        g.BaseURL,
		Description: description,
		Language:    "zh-CN",
		Cover:       g.Cover,
		Items:       make([]Item, 0, len(articles)),
	}
	if feedID != "" {
		doc.Feed = g.ref(feedID)
	}

	for _, a := range articles {
		doc.Items = append(doc.Items, g.buildItem(a, fullText, feedID))
	}
	return doc
}

// GenerateJSON builds the feed and renders it as indented JSON.
func (g *Generator) GenerateJSON(articles []fetcher.Article, fullText bool, feedID string) (string, error) {
	doc := g.Generate(articles, fullText, feedID)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return "", fmt.Errorf("failed to encode feed: %w", err)
	}
	return buf.String(), nil
}

// Save renders the feed and writes it to path, creating parent directories
// as needed.
func (g *Generator) Save(articles []fetcher.Article, fullText bool, feedID, path string) error {
	data, err := g.GenerateJSON(articles, fullText, feedID)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		return fmt.Errorf("failed to write feed file: %w", err)
	}
	return nil
}

func (g *Generator) buildItem(a fetcher.Article, fullText bool, feedID string) Item {
	description := a.Digest
	if description == "" {
		description = a.Title
	}

	item := Item{
		ID:          a.ID,
		Title:       a.Title,
		Description: description,
		Link:        a.URL,
		Updated:     FormatTime(a.PublishTime),
		Author:      a.Author,
	}
	if a.Cover != "" {
		item.Image = &Image{URL: a.Cover}
	}
	if fullText && a.Content != "" {
		item.Content = a.Content
		item.ContentHTML = a.Content
	}
	if feedID != "" {
		item.Feed = g.ref(feedID)
		item.ChannelName = g.Name
	}
	return item
}

func (g *Generator) ref(feedID string) *Ref {
	return &Ref{
		ID:    feedID,
		Name:  g.Name,
		Cover: g.Cover,
		Intro: g.Intro,
	}
}

// FormatTime renders an epoch timestamp as ISO 8601 in UTC+8. Millisecond
// inputs are reduced to seconds.
func FormatTime(ts int64) string {
	if ts > 1_000_000_000_000 {
		ts /= 1000
	}
	if ts <= 0 {
		return time.Now().In(cst).Format(time.RFC3339)
	}
	return time.Unix(ts, 0).In(cst).Format(time.RFC3339)
}
