package fetcher

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wxrss/pkg/content"
	errs "wxrss/pkg/errors"
	"wxrss/pkg/logger"
	"wxrss/pkg/wechat"
)

func msg(id string, ts int64) wechat.AppMsg {
	return wechat.AppMsg{
		Title:      "article " + id,
		Link:       "https://mp.weixin.qq.com/s/" + id,
		Cover:      "https://mmbiz.qpic.cn/" + id,
		Digest:     "digest " + id,
		UpdateTime: ts,
	}
}

// fakeLister serves canned pages keyed by the begin offset.
type fakeLister struct {
	pages map[int][]wechat.AppMsg
	total int
	err   error
	calls int
}

func (f *fakeLister) ListPublished(ctx context.Context, fakeid string, begin, count int) (*wechat.PublishPage, []wechat.AppMsg, error) {
	f.calls++
	if f.err != nil {
		return nil, nil, f.err
	}
	return &wechat.PublishPage{TotalCount: f.total}, f.pages[begin], nil
}

type fakeEnricher struct {
	failOn map[string]error
	calls  int
}

func (f *fakeEnricher) Extract(ctx context.Context, articleURL string) (*content.Body, error) {
	f.calls++
	if err, ok := f.failOn[articleURL]; ok {
		return nil, err
	}
	return &content.Body{
		HTML: `<div id="js_content">body of ` + articleURL + `</div>`,
		Text: "body of " + articleURL,
	}, nil
}

type gateFunc func(ctx context.Context, op func(ctx context.Context) error) error

func (g gateFunc) Do(ctx context.Context, op func(ctx context.Context) error) error {
	return g(ctx, op)
}

var passthroughGate = gateFunc(func(ctx context.Context, op func(ctx context.Context) error) error {
	return op(ctx)
})

func newTestFetcher(lister *fakeLister, enricher Enricher, pageSize int) *Fetcher {
	f := New(lister, passthroughGate, enricher, pageSize, logger.NewTestLogger())
	f.enrichPause = 0
	return f
}

func TestFetchTwoPagesWithOverlap(t *testing.T) {
	// Two pages of 6 with 2 overlapping identifiers: 6 + 4 new = 10 unique.
	lister := &fakeLister{
		total: 12,
		pages: map[int][]wechat.AppMsg{
			0: {
				msg("a01", 1700000120), msg("a02", 1700000119), msg("a03", 1700000118),
				msg("a04", 1700000117), msg("a05", 1700000116), msg("a06", 1700000115),
			},
			6: {
				msg("a05", 1700000116), msg("a06", 1700000115), msg("a07", 1700000114),
				msg("a08", 1700000113), msg("a09", 1700000112), msg("a10", 1700000111),
			},
		},
	}
	f := newTestFetcher(lister, nil, 6)

	result, err := f.Fetch(context.Background(), "MzAxMDAwMDAx", 10, false)
	require.NoError(t, err)
	require.Len(t, result.Articles, 10)

	ids := make(map[string]bool)
	for i, a := range result.Articles {
		assert.False(t, ids[a.ID], "identifiers must be pairwise unique")
		ids[a.ID] = true
		assert.Equal(t, fmt.Sprintf("a%02d", i+1), a.ID, "newest first")
		if i > 0 {
			assert.LessOrEqual(t, a.PublishTime, result.Articles[i-1].PublishTime)
		}
	}
	assert.Empty(t, result.Warnings)
}

func TestFetchStopsAtCount(t *testing.T) {
	lister := &fakeLister{
		total: 20,
		pages: map[int][]wechat.AppMsg{
			0: {msg("a1", 105), msg("a2", 104), msg("a3", 103), msg("a4", 102), msg("a5", 101)},
		},
	}
	f := newTestFetcher(lister, nil, 5)

	result, err := f.Fetch(context.Background(), "MzAx", 3, false)
	require.NoError(t, err)
	assert.Len(t, result.Articles, 3)
	assert.Equal(t, 1, lister.calls, "no extra page once count is reached")
}

func TestFetchEmptyPublisher(t *testing.T) {
	f := newTestFetcher(&fakeLister{pages: map[int][]wechat.AppMsg{}}, nil, 5)

	result, err := f.Fetch(context.Background(), "MzAx", 10, false)
	require.NoError(t, err)
	assert.Empty(t, result.Articles)
}

func TestFetchStopsAtTotal(t *testing.T) {
	lister := &fakeLister{
		total: 3,
		pages: map[int][]wechat.AppMsg{
			0: {msg("a1", 103), msg("a2", 102), msg("a3", 101)},
		},
	}
	f := newTestFetcher(lister, nil, 5)

	result, err := f.Fetch(context.Background(), "MzAx", 10, false)
	require.NoError(t, err)
	assert.Len(t, result.Articles, 3)
	assert.Equal(t, 1, lister.calls, "total_count bounds pagination")
}

func TestFetchDedupesWithinPage(t *testing.T) {
	lister := &fakeLister{
		total: 3,
		pages: map[int][]wechat.AppMsg{
			0: {msg("a1", 103), msg("a1", 103), msg("a2", 102)},
		},
	}
	f := newTestFetcher(lister, nil, 5)

	result, err := f.Fetch(context.Background(), "MzAx", 10, false)
	require.NoError(t, err)
	assert.Len(t, result.Articles, 2)
}

func TestFetchNormalizesMillisecondTimestamps(t *testing.T) {
	lister := &fakeLister{
		total: 2,
		pages: map[int][]wechat.AppMsg{
			0: {msg("a1", 1700000000000), msg("a2", 1700000001)},
		},
	}
	f := newTestFetcher(lister, nil, 5)

	result, err := f.Fetch(context.Background(), "MzAx", 10, false)
	require.NoError(t, err)
	require.Len(t, result.Articles, 2)

	assert.Equal(t, int64(1700000001), result.Articles[0].PublishTime)
	assert.Equal(t, int64(1700000000), result.Articles[1].PublishTime)
}

func TestFetchArticleFields(t *testing.T) {
	lister := &fakeLister{
		total: 1,
		pages: map[int][]wechat.AppMsg{
			0: {{
				Title:      "标题",
				Link:       "https://mp.weixin.qq.com/s/abc123",
				Cover:      "https://mmbiz.qpic.cn/cover.jpg",
				Digest:     "摘要",
				AuthorName: "作者",
				UpdateTime: 1700000000,
			}},
		},
	}
	f := newTestFetcher(lister, nil, 5)

	result, err := f.Fetch(context.Background(), "MzAx", 1, false)
	require.NoError(t, err)
	require.Len(t, result.Articles, 1)

	a := result.Articles[0]
	assert.Equal(t, "abc123", a.ID)
	assert.Equal(t, "标题", a.Title)
	assert.Equal(t, "https://mp.weixin.qq.com/s/abc123", a.URL)
	assert.Equal(t, "https://mmbiz.qpic.cn/cover.jpg", a.Cover)
	assert.Equal(t, "摘要", a.Digest)
	assert.Equal(t, "作者", a.Author)
	assert.Empty(t, a.Content)
}

func TestFetchListErrorPropagates(t *testing.T) {
	lister := &fakeLister{err: errs.WithCode(errs.KindRateLimit, 200013, "freq control")}
	f := newTestFetcher(lister, nil, 5)

	_, err := f.Fetch(context.Background(), "MzAx", 10, false)
	require.Error(t, err)
	assert.Equal(t, errs.KindRateLimit, errs.KindOf(err))
}

func TestFetchRejectsEmptyFakeID(t *testing.T) {
	f := newTestFetcher(&fakeLister{}, nil, 5)

	_, err := f.Fetch(context.Background(), "", 10, false)
	require.Error(t, err)
	assert.Equal(t, errs.KindFetch, errs.KindOf(err))
}

func TestFetchZeroCount(t *testing.T) {
	lister := &fakeLister{}
	f := newTestFetcher(lister, nil, 5)

	result, err := f.Fetch(context.Background(), "MzAx", 0, false)
	require.NoError(t, err)
	assert.Empty(t, result.Articles)
	assert.Equal(t, 0, lister.calls)
}

func TestEnrichmentPartialFailure(t *testing.T) {
	lister := &fakeLister{
		total: 5,
		pages: map[int][]wechat.AppMsg{
			0: {msg("a1", 105), msg("a2", 104), msg("a3", 103), msg("a4", 102), msg("a5", 101)},
		},
	}
	enricher := &fakeEnricher{
		failOn: map[string]error{
			"https://mp.weixin.qq.com/s/a3": errs.New(errs.KindFetch, "article was deleted by the publisher"),
		},
	}
	f := newTestFetcher(lister, enricher, 5)

	result, err := f.Fetch(context.Background(), "MzAx", 5, true)
	require.NoError(t, err, "a per-article failure must not fail the fetch")
	require.Len(t, result.Articles, 5)

	withContent := 0
	for _, a := range result.Articles {
		if a.Content != "" {
			withContent++
		} else {
			assert.Equal(t, "a3", a.ID)
		}
	}
	assert.Equal(t, 4, withContent)

	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "a3", result.Warnings[0].ArticleID)
	assert.Equal(t, "article a3", result.Warnings[0].Title)
	assert.Error(t, result.Warnings[0].Err)
}

func TestEnrichmentTokenExpiredIsFatal(t *testing.T) {
	lister := &fakeLister{
		total: 2,
		pages: map[int][]wechat.AppMsg{
			0: {msg("a1", 102), msg("a2", 101)},
		},
	}
	enricher := &fakeEnricher{
		failOn: map[string]error{
			"https://mp.weixin.qq.com/s/a1": errs.New(errs.KindTokenExpired, "expired"),
		},
	}
	f := newTestFetcher(lister, enricher, 5)

	_, err := f.Fetch(context.Background(), "MzAx", 2, true)
	require.Error(t, err)
	assert.Equal(t, errs.KindTokenExpired, errs.KindOf(err))
}

func TestEnrichmentSkippedWithoutFlag(t *testing.T) {
	lister := &fakeLister{
		total: 1,
		pages: map[int][]wechat.AppMsg{0: {msg("a1", 101)}},
	}
	enricher := &fakeEnricher{}
	f := newTestFetcher(lister, enricher, 5)

	result, err := f.Fetch(context.Background(), "MzAx", 1, false)
	require.NoError(t, err)
	assert.Equal(t, 0, enricher.calls)
	assert.Empty(t, result.Articles[0].Content)
}
