package content

import (
	"bytes"
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	readability "github.com/go-shiori/go-readability"

	errs "wxrss/pkg/errors"
	"wxrss/pkg/logger"
)

const bodySelector = "#js_content"

// Page markers the platform renders instead of a removed or held article.
const (
	deniedMarker  = "当前环境异常"
	deletedMarker = "该内容已被发布者删除"
	reviewMarker  = "内容审核中"
)

const extractorUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Body is an article's extracted content in both renderings.
type Body struct {
	HTML string
	Text string
}

// Extractor downloads article pages and extracts their readable body.
type Extractor struct {
	http   *resty.Client
	logger logger.Logger
}

// NewExtractor creates a content extractor. Article pages are public, so no
// session is attached.
func NewExtractor(timeout time.Duration, log logger.Logger) *Extractor {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Extractor{
		http: resty.New().
			SetTimeout(timeout).
			SetHeader("User-Agent", extractorUserAgent).
			SetHeader("Accept", "text/html,application/xhtml+xml"),
		logger: log,
	}
}

// Extract downloads the article page and returns its body.
func (e *Extractor) Extract(ctx context.Context, articleURL string) (*Body, error) {
	resp, err := e.http.R().SetContext(ctx).Get(articleURL)
	if err != nil {
		return nil, errs.Wrap(errs.KindNetwork, "failed to download article page", err)
	}
	if status := resp.StatusCode(); status >= 500 {
		return nil, errs.WithCode(errs.KindNetwork, status, "server error on article page")
	} else if status >= 400 {
		return nil, errs.WithCode(errs.KindFetch, status, "article page not available")
	}

	body, err := Parse(resp.Body(), articleURL)
	if err != nil {
		return nil, err
	}

	e.logger.DebugWithFields("article content extracted", map[string]interface{}{
		"url":   articleURL,
		"chars": len(body.Text),
	})
	return body, nil
}

// Parse extracts the article body from a page. The platform's body container
// is tried first; pages without it go through generic readability
// extraction.
func Parse(page []byte, articleURL string) (*Body, error) {
	if err := checkMarkers(page); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, errs.Wrap(errs.KindFetch, "failed to parse article page", err)
	}

	if sel := doc.Find(bodySelector).First(); sel.Length() > 0 {
		html, err := goquery.OuterHtml(sel)
		if err == nil && strings.TrimSpace(sel.Text()) != "" {
			return &Body{
				HTML: html,
				Text: normalize(sel.Text()),
			}, nil
		}
	}

	// Not a platform article layout; let readability have a go.
	pageURL, err := url.Parse(articleURL)
	if err != nil {
		pageURL = &url.URL{}
	}
	article, err := readability.FromReader(bytes.NewReader(page), pageURL)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		return &Body{
			HTML: article.Content,
			Text: normalize(article.TextContent),
		}, nil
	}

	return nil, errs.New(errs.KindFetch, "no article body found")
}

func checkMarkers(page []byte) error {
	text := string(page)
	switch {
	case strings.Contains(text, deletedMarker):
		return errs.New(errs.KindFetch, "article was deleted by the publisher")
	case strings.Contains(text, reviewMarker):
		return errs.New(errs.KindFetch, "article is under review")
	case strings.Contains(text, deniedMarker):
		return errs.New(errs.KindFetch, "platform flagged the environment")
	}
	return nil
}

func normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
