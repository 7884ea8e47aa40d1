package wechat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodePublishPage builds the doubly-encoded publish_page payload the
// platform delivers, from plain article values.
func encodePublishPage(t *testing.T, msgs []AppMsg, total int) string {
	t.Helper()

	items := make([]PublishItem, 0, len(msgs))
	for _, msg := range msgs {
		info, err := json.Marshal(PublishInfo{AppMsgEx: []AppMsg{msg}})
		require.NoError(t, err)
		items = append(items, PublishItem{PublishInfo: string(info)})
	}

	page, err := json.Marshal(PublishPage{TotalCount: total, PublishList: items})
	require.NoError(t, err)
	return string(page)
}

func TestDecodePublishPage(t *testing.T) {
	raw := encodePublishPage(t, []AppMsg{
		{Title: "first", Link: "https://mp.weixin.qq.com/s/aaa", UpdateTime: 1700000200},
		{Title: "second", Link: "https://mp.weixin.qq.com/s/bbb", UpdateTime: 1700000100},
	}, 20)

	page, msgs, err := DecodePublishPage(raw)
	require.NoError(t, err)

	assert.Equal(t, 20, page.TotalCount)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Title)
	assert.Equal(t, "second", msgs[1].Title)
}

func TestDecodePublishPageEmpty(t *testing.T) {
	page, msgs, err := DecodePublishPage("")
	require.NoError(t, err)
	assert.NotNil(t, page)
	assert.Empty(t, msgs)

	page, msgs, err = DecodePublishPage(`{"total_count": 0, "publish_list": []}`)
	require.NoError(t, err)
	assert.Equal(t, 0, page.TotalCount)
	assert.Empty(t, msgs)
}

func TestDecodePublishPageMalformedEntrySkipped(t *testing.T) {
	good, err := json.Marshal(PublishInfo{AppMsgEx: []AppMsg{{Title: "kept"}}})
	require.NoError(t, err)

	page, merr := json.Marshal(PublishPage{
		TotalCount: 3,
		PublishList: []PublishItem{
			{PublishInfo: "{broken"},
			{PublishInfo: string(good)},
			{PublishInfo: `{"appmsgex": []}`},
		},
	})
	require.NoError(t, merr)

	_, msgs, err := DecodePublishPage(string(page))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "kept", msgs[0].Title)
}

func TestDecodePublishPageInvalidJSON(t *testing.T) {
	_, _, err := DecodePublishPage("{nope")
	assert.Error(t, err)
}

func TestEndpointURLs(t *testing.T) {
	u := SearchBizURL("tok123", "科技新闻", 5)
	assert.Contains(t, u, "/cgi-bin/searchbiz?")
	assert.Contains(t, u, "action=search_biz")
	assert.Contains(t, u, "count=5")
	assert.Contains(t, u, "token=tok123")
	assert.NotContains(t, u, "科技新闻", "query must be URL encoded")

	u = AppMsgPublishURL("tok123", "MzAxMDAwMDAx", 10, 5)
	assert.Contains(t, u, "/cgi-bin/appmsgpublish?")
	assert.Contains(t, u, "sub_action=list_ex")
	assert.Contains(t, u, "begin=10")
	assert.Contains(t, u, "count=5")
	assert.Contains(t, u, "fakeid=MzAxMDAwMDAx")
}
