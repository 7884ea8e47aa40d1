package manager

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	errs "wxrss/pkg/errors"
	"wxrss/pkg/feed"
	"wxrss/pkg/fetcher"
	"wxrss/pkg/logger"
	"wxrss/pkg/resolver"
)

// Feed is one subscribed publisher. FakeID and Nickname are filled in on the
// first fetch when only the name was given.
type Feed struct {
	Name     string `json:"name"`
	FakeID   string `json:"fakeid,omitempty"`
	Nickname string `json:"nickname,omitempty"`
}

// FeedResult is the outcome of fetching one subscription.
type FeedResult struct {
	Name       string
	FakeID     string
	Articles   int
	OutputFile string
	Warnings   []fetcher.Warning
	Err        error
}

// Searcher finds publisher candidates by name.
type Searcher interface {
	Search(ctx context.Context, keyword string, limit int) ([]resolver.Candidate, error)
}

// ArticleFetcher retrieves a publisher's articles.
type ArticleFetcher interface {
	Fetch(ctx context.Context, fakeid string, count int, withContent bool) (*fetcher.Result, error)
}

// Manager keeps the subscription list and runs batch fetches over it. The
// list lives in a JSON file so it survives between runs; resolved fakeids
// are written back to it.
type Manager struct {
	feedsFile string
	outputDir string
	resolver  Searcher
	fetcher   ArticleFetcher
	logger    logger.Logger

	mu    sync.Mutex
	feeds []Feed
}

// New creates a Manager backed by the given feeds file. A missing file means
// an empty subscription list.
func New(feedsFile, outputDir string, r Searcher, f ArticleFetcher, log logger.Logger) (*Manager, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	m := &Manager{
		feedsFile: feedsFile,
		outputDir: outputDir,
		resolver:  r,
		fetcher:   f,
		logger:    log,
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

// Add appends a publisher to the subscription list. fakeid may be empty; it
// is resolved on the first fetch.
func (m *Manager) Add(name, fakeid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, f := range m.feeds {
		if f.Name == name {
			return fmt.Errorf("publisher %q is already subscribed", name)
		}
	}

	m.feeds = append(m.feeds, Feed{Name: name, FakeID: fakeid})
	if err := m.save(); err != nil {
		return err
	}

	m.logger.InfoWithFields("subscription added", map[string]interface{}{"name": name})
	return nil
}

// Remove drops a publisher from the subscription list.
func (m *Manager) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.feeds[:0]
	for _, f := range m.feeds {
		if f.Name != name {
			kept = append(kept, f)
		}
	}
	if len(kept) == len(m.feeds) {
		return fmt.Errorf("publisher %q is not subscribed", name)
	}
	m.feeds = kept

	if err := m.save(); err != nil {
		return err
	}

	m.logger.InfoWithFields("subscription removed", map[string]interface{}{"name": name})
	return nil
}

// List returns a copy of the subscription list.
func (m *Manager) List() []Feed {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Feed, len(m.feeds))
	copy(out, m.feeds)
	return out
}

// FetchAll fetches every subscription in order: publishers without a fakeid
// are resolved first (and the resolution persisted), then articles are
// fetched and a feed file written under the output directory. One failing
// subscription does not stop the rest.
func (m *Manager) FetchAll(ctx context.Context, count int, withContent bool) []FeedResult {
	results := make([]FeedResult, 0, len(m.List()))

	for _, sub := range m.List() {
		result := m.fetchOne(ctx, sub, count, withContent)
		if result.Err != nil {
			m.logger.WithError(result.Err).WithField("name", result.Name).Warn("subscription fetch failed")
		} else {
			m.logger.InfoWithFields("subscription fetched", map[string]interface{}{
				"name":     result.Name,
				"articles": result.Articles,
			})
		}
		results = append(results, result)
	}

	return results
}

func (m *Manager) fetchOne(ctx context.Context, sub Feed, count int, withContent bool) FeedResult {
	result := FeedResult{Name: sub.Name, FakeID: sub.FakeID}

	if sub.FakeID == "" {
		candidates, err := m.resolver.Search(ctx, sub.Name, 5)
		if err != nil {
			result.Err = err
			return result
		}
		if len(candidates) == 0 {
			result.Err = errs.Newf(errs.KindFetch, "publisher %q not found", sub.Name)
			return result
		}

		sub.FakeID = candidates[0].FakeID
		sub.Nickname = candidates[0].Nickname
		result.FakeID = sub.FakeID
		if err := m.updateFeed(sub); err != nil {
			m.logger.WithError(err).Warn("failed to persist resolved fakeid")
		}
	}

	displayName := sub.Nickname
	if displayName == "" {
		displayName = sub.Name
	}
	result.Name = displayName

	fetched, err := m.fetcher.Fetch(ctx, sub.FakeID, count, withContent)
	if err != nil {
		result.Err = err
		return result
	}
	if len(fetched.Articles) == 0 {
		result.Err = errs.Newf(errs.KindFetch, "no articles for %q", displayName)
		return result
	}
	result.Articles = len(fetched.Articles)
	result.Warnings = fetched.Warnings

	gen := feed.NewGenerator(displayName, "", "", "")
	outputFile := filepath.Join(m.outputDir, displayName+".json")
	if err := gen.Save(fetched.Articles, withContent, sub.FakeID, outputFile); err != nil {
		result.Err = err
		return result
	}
	result.OutputFile = outputFile

	return result
}

// updateFeed writes back resolved fields for the named subscription.
func (m *Manager) updateFeed(updated Feed) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, f := range m.feeds {
		if f.Name == updated.Name {
			m.feeds[i] = updated
			return m.save()
		}
	}
	return fmt.Errorf("publisher %q is not subscribed", updated.Name)
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.feedsFile)
	if err != nil {
		if os.IsNotExist(err) {
			m.feeds = nil
			return nil
		}
		return fmt.Errorf("failed to read feeds file: %w", err)
	}

	if err := json.Unmarshal(data, &m.feeds); err != nil {
		return fmt.Errorf("failed to parse feeds file: %w", err)
	}
	return nil
}

// save writes the subscription list. Callers hold the mutex.
func (m *Manager) save() error {
	feeds := m.feeds
	if feeds == nil {
		feeds = []Feed{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(feeds); err != nil {
		return fmt.Errorf("failed to encode feeds: %w", err)
	}

	if dir := filepath.Dir(m.feedsFile); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create feeds directory: %w", err)
		}
	}
	if err := os.WriteFile(m.feedsFile, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write feeds file: %w", err)
	}
	return nil
}
