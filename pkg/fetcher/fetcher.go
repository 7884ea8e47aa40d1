package fetcher

import (
	"context"
	"sort"
	"strings"
	"time"

	"wxrss/pkg/content"
	errs "wxrss/pkg/errors"
	"wxrss/pkg/logger"
	"wxrss/pkg/retry"
	"wxrss/pkg/wechat"
)

// Article is one published article assembled from the platform list, plus
// its body when enrichment ran.
type Article struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Cover       string `json:"cover"`
	Digest      string `json:"digest"`
	PublishTime int64  `json:"publish_time"`
	Author      string `json:"author"`
	Content     string `json:"content"`
}

// Warning records a per-article enrichment failure. The article itself stays
// in the result with an empty Content.
type Warning struct {
	ArticleID string
	Title     string
	Err       error
}

// Result carries the fetched articles and any enrichment warnings.
type Result struct {
	Articles []Article
	Warnings []Warning
}

// Lister pages through a publisher's article list.
type Lister interface {
	ListPublished(ctx context.Context, fakeid string, begin, count int) (*wechat.PublishPage, []wechat.AppMsg, error)
}

// Enricher fetches one article page's body.
type Enricher interface {
	Extract(ctx context.Context, articleURL string) (*content.Body, error)
}

// Runner executes one authenticated operation under rate limit policy.
type Runner interface {
	Do(ctx context.Context, op func(ctx context.Context) error) error
}

// Fetcher assembles a publisher's recent articles: paginated list retrieval
// through the gate, deduplication across overlapping pages, and optional
// per-article content enrichment.
type Fetcher struct {
	client   Lister
	gate     Runner
	enricher Enricher
	pageSize int
	logger   logger.Logger

	// enrichPause spaces out article page downloads.
	enrichPause time.Duration
}

// New creates a Fetcher. enricher may be nil when content enrichment is
// never requested.
func New(client Lister, g Runner, enricher Enricher, pageSize int, log logger.Logger) *Fetcher {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Fetcher{
		client:      client,
		gate:        g,
		enricher:    enricher,
		pageSize:    pageSize,
		logger:      log,
		enrichPause: time.Second,
	}
}

// Fetch returns up to count unique articles for the publisher, newest first.
// With withContent set, each article's body is downloaded after the list is
// assembled; per-article failures become Warnings, but an expired session
// aborts enrichment.
func (f *Fetcher) Fetch(ctx context.Context, fakeid string, count int, withContent bool) (*Result, error) {
	if fakeid == "" {
		return nil, errs.New(errs.KindFetch, "no fakeid given")
	}
	if count <= 0 {
		return &Result{}, nil
	}

	articles, err := f.fetchList(ctx, fakeid, count)
	if err != nil {
		return nil, err
	}

	result := &Result{Articles: articles}
	if withContent && len(articles) > 0 {
		if err := f.enrich(ctx, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// fetchList pages through the publish list until count unique articles are
// collected or the platform runs out.
func (f *Fetcher) fetchList(ctx context.Context, fakeid string, count int) ([]Article, error) {
	f.logger.InfoWithFields("fetching article list", map[string]interface{}{
		"fakeid": fakeid,
		"count":  count,
	})

	var articles []Article
	seen := make(map[string]bool)
	total := -1

	for begin := 0; len(articles) < count; begin += f.pageSize {
		var page *wechat.PublishPage
		var msgs []wechat.AppMsg

		err := f.gate.Do(ctx, func(ctx context.Context) error {
			var opErr error
			page, msgs, opErr = f.client.ListPublished(ctx, fakeid, begin, f.pageSize)
			return opErr
		})
		if err != nil {
			return nil, err
		}

		if page.TotalCount > 0 {
			total = page.TotalCount
		}
		if len(msgs) == 0 {
			break
		}

		added := 0
		for _, msg := range msgs {
			a := fromAppMsg(msg)
			key := a.ID
			if key == "" {
				key = a.URL
			}
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			articles = append(articles, a)
			added++
			if len(articles) == count {
				break
			}
		}

		f.logger.DebugWithFields("page processed", map[string]interface{}{
			"begin":  begin,
			"items":  len(msgs),
			"unique": added,
		})

		if total >= 0 && begin+f.pageSize >= total {
			break
		}
	}

	// Platform order is already newest-first; the stable sort only repairs
	// ordering across overlapping pages.
	sort.SliceStable(articles, func(i, j int) bool {
		return articles[i].PublishTime > articles[j].PublishTime
	})

	f.logger.InfoWithFields("article list assembled", map[string]interface{}{
		"fakeid":   fakeid,
		"articles": len(articles),
	})
	return articles, nil
}

// enrich downloads each article's body. A failed article keeps an empty
// Content and contributes a Warning; an expired session is fatal.
func (f *Fetcher) enrich(ctx context.Context, result *Result) error {
	if f.enricher == nil {
		return errs.New(errs.KindFetch, "content enrichment requested but no extractor configured")
	}

	for i := range result.Articles {
		a := &result.Articles[i]

		f.logger.InfoWithFields("fetching article content", map[string]interface{}{
			"index": i + 1,
			"total": len(result.Articles),
			"title": a.Title,
		})

		body, err := f.enricher.Extract(ctx, a.URL)
		if err != nil {
			if errs.KindOf(err) == errs.KindTokenExpired {
				return err
			}
			f.logger.WithError(err).WithField("title", a.Title).Warn("failed to fetch article content")
			result.Warnings = append(result.Warnings, Warning{
				ArticleID: a.ID,
				Title:     a.Title,
				Err:       err,
			})
			continue
		}
		a.Content = body.HTML

		if i < len(result.Articles)-1 && f.enrichPause > 0 {
			if err := retry.Wait(ctx, f.enrichPause); err != nil {
				return errs.Wrap(errs.KindFetch, "enrichment cancelled", err)
			}
		}
	}
	return nil
}

// fromAppMsg shapes one platform list entry into an Article.
func fromAppMsg(msg wechat.AppMsg) Article {
	return Article{
		ID:          extractArticleID(msg.Link),
		Title:       msg.Title,
		URL:         msg.Link,
		Cover:       msg.Cover,
		Digest:      msg.Digest,
		PublishTime: normalizeTimestamp(msg.UpdateTime, msg.CreateTime),
		Author:      msg.AuthorName,
	}
}

// extractArticleID takes the last path segment of the article URL, e.g.
// https://mp.weixin.qq.com/s/abc123 -> abc123.
func extractArticleID(articleURL string) string {
	if articleURL == "" {
		return ""
	}
	idx := strings.LastIndex(articleURL, "/")
	if idx < 0 || idx == len(articleURL)-1 {
		return ""
	}
	return articleURL[idx+1:]
}

// normalizeTimestamp returns the publish time in epoch seconds. The platform
// sometimes delivers milliseconds.
func normalizeTimestamp(update, create int64) int64 {
	ts := update
	if ts == 0 {
		ts = create
	}
	if ts == 0 {
		return time.Now().Unix()
	}
	if ts > 10_000_000_000 {
		ts /= 1000
	}
	return ts
}
