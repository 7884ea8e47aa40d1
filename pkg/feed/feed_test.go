package feed

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wxrss/pkg/fetcher"
)

func fixtureArticles() []fetcher.Article {
	return []fetcher.Article{
		{
			ID:          "abc123",
			Title:       "本周行业动态",
			URL:         "https://mp.weixin.qq.com/s/abc123",
			Cover:       "https://mmbiz.qpic.cn/cover1.jpg",
			Digest:      "一周要闻汇总",
			PublishTime: 1700000000,
			Author:      "小编",
			Content:     `<div id="js_content"><p>正文内容</p></div>`,
		},
		{
			ID:          "def456",
			Title:       "无摘要文章",
			URL:         "https://mp.weixin.qq.com/s/def456",
			PublishTime: 1699000000,
		},
	}
}

func TestGenerateDocumentShape(t *testing.T) {
	g := NewGenerator("科技频道", "科技资讯日更", "https://mp.weixin.qq.com", "https://wx.qlogo.cn/cover")

	doc := g.Generate(fixtureArticles(), false, "")

	assert.Equal(t, "科技频道", doc.Name)
	assert.Equal(t, "https://mp.weixin.qq.com", doc.Link)
	assert.Equal(t, "科技资讯日更", doc.Description)
	assert.Equal(t, "zh-CN", doc.Language)
	assert.Equal(t, "https://wx.qlogo.cn/cover", doc.Cover)
	assert.Nil(t, doc.Feed, "no feed ref without a feed id")
	require.Len(t, doc.Items, 2)

	first := doc.Items[0]
	assert.Equal(t, "abc123", first.ID)
	assert.Equal(t, "本周行业动态", first.Title)
	assert.Equal(t, "一周要闻汇总", first.Description)
	assert.Equal(t, "https://mp.weixin.qq.com/s/abc123", first.Link)
	require.NotNil(t, first.Image)
	assert.Equal(t, "https://mmbiz.qpic.cn/cover1.jpg", first.Image.URL)
	assert.Equal(t, "小编", first.Author)
	assert.Empty(t, first.Content, "no body without full text")

	second := doc.Items[1]
	assert.Equal(t, "无摘要文章", second.Description, "title backs an empty digest")
	assert.Nil(t, second.Image)
	assert.Empty(t, second.Author)
}

func TestGenerateDescriptionFallsBackToName(t *testing.T) {
	g := NewGenerator("科技频道", "", "", "")
	doc := g.Generate(nil, false, "")
	assert.Equal(t, "科技频道", doc.Description)
}

func TestGenerateFullText(t *testing.T) {
	g := NewGenerator("科技频道", "", "", "")
	doc := g.Generate(fixtureArticles(), true, "")

	assert.Contains(t, doc.Items[0].Content, "正文内容")
	assert.Equal(t, doc.Items[0].Content, doc.Items[0].ContentHTML)
	assert.Empty(t, doc.Items[1].Content, "an article without a body stays bare")
}

func TestGenerateWithFeedID(t *testing.T) {
	g := NewGenerator("科技频道", "科技资讯日更", "", "https://wx.qlogo.cn/cover")
	doc := g.Generate(fixtureArticles(), false, "MzAxMDAwMDAx")

	require.NotNil(t, doc.Feed)
	assert.Equal(t, "MzAxMDAwMDAx", doc.Feed.ID)
	assert.Equal(t, "科技频道", doc.Feed.Name)
	assert.Equal(t, "https://wx.qlogo.cn/cover", doc.Feed.Cover)
	assert.Equal(t, "科技资讯日更", doc.Feed.Intro)

	for _, item := range doc.Items {
		require.NotNil(t, item.Feed)
		assert.Equal(t, "MzAxMDAwMDAx", item.Feed.ID)
		assert.Equal(t, "科技频道", item.ChannelName)
	}
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "2023-11-14T22:13:20+08:00", FormatTime(1700000000))

	// Millisecond timestamps are reduced to seconds.
	assert.Equal(t, "2023-11-14T22:13:20+08:00", FormatTime(1700000000000))

	// A missing timestamp renders as a valid time rather than the epoch.
	assert.NotEmpty(t, FormatTime(0))
	assert.NotContains(t, FormatTime(0), "1970")
}

func TestGenerateJSONOmitsEmptyOptionalFields(t *testing.T) {
	g := NewGenerator("科技频道", "", "", "")
	out, err := g.GenerateJSON(fixtureArticles(), false, "")
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &raw))

	items := raw["items"].([]interface{})
	second := items[1].(map[string]interface{})
	_, hasImage := second["image"]
	assert.False(t, hasImage)
	_, hasContent := second["content"]
	assert.False(t, hasContent)
	_, hasFeed := second["feed"]
	assert.False(t, hasFeed)

	// Chinese text is not escaped.
	assert.Contains(t, out, "本周行业动态")
}

func TestSaveWritesFile(t *testing.T) {
	g := NewGenerator("科技频道", "", "", "")
	path := filepath.Join(t.TempDir(), "feeds", "tech.json")

	require.NoError(t, g.Save(fixtureArticles(), true, "MzAx", path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc Document
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "科技频道", doc.Name)
	require.Len(t, doc.Items, 2)
	assert.Contains(t, doc.Items[0].Content, "正文内容")
}
