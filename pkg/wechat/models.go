package wechat

import "encoding/json"

// BaseResp is the envelope status carried by every platform API response.
type BaseResp struct {
	Ret    int    `json:"ret"`
	ErrMsg string `json:"err_msg"`
}

// Platform return codes. The platform does not document these; the sets are
// variables so fixtures and deployments can adjust them without a rebuild.
var (
	// ThrottleRetCodes mark a response as rate limited ("freq control").
	ThrottleRetCodes = map[int]bool{200013: true}

	// AuthFailureRetCodes mark the session as no longer authenticated.
	AuthFailureRetCodes = map[int]bool{200003: true, 200040: true}
)

// SearchResponse is the payload of the searchbiz endpoint.
type SearchResponse struct {
	BaseResp BaseResp      `json:"base_resp"`
	List     []AccountInfo `json:"list"`
	Total    int           `json:"total"`
}

// AccountInfo describes one published account in search results.
type AccountInfo struct {
	FakeID       string `json:"fakeid"`
	Nickname     string `json:"nickname"`
	RoundHeadImg string `json:"round_head_img"`
	Signature    string `json:"signature"`
	AliasName    string `json:"alias_name"`
}

// PublishResponse is the payload of the appmsgpublish endpoint. PublishPage
// is a JSON document serialized as a string inside the outer document.
type PublishResponse struct {
	BaseResp    BaseResp `json:"base_resp"`
	PublishPage string   `json:"publish_page"`
}

// PublishPage is the decoded publish_page document.
type PublishPage struct {
	TotalCount  int           `json:"total_count"`
	PublishList []PublishItem `json:"publish_list"`
}

// PublishItem wraps one publication; publish_info is again a JSON string.
type PublishItem struct {
	PublishInfo string `json:"publish_info"`
}

// PublishInfo is the decoded publish_info document. The first appmsgex entry
// is the article itself; the rest are secondary items of the same push.
type PublishInfo struct {
	AppMsgEx []AppMsg `json:"appmsgex"`
}

// AppMsg is one published article as delivered by the platform.
type AppMsg struct {
	AppMsgID   int64  `json:"appmsgid"`
	Title      string `json:"title"`
	Link       string `json:"link"`
	Cover      string `json:"cover"`
	Digest     string `json:"digest"`
	AuthorName string `json:"author_name"`
	CreateTime int64  `json:"create_time"`
	UpdateTime int64  `json:"update_time"`
}

// DecodePublishPage unwraps the doubly-encoded publish_page payload into the
// flat list of articles it carries, preserving platform order.
func DecodePublishPage(raw string) (*PublishPage, []AppMsg, error) {
	var page PublishPage
	if raw == "" {
		return &page, nil, nil
	}
	if err := json.Unmarshal([]byte(raw), &page); err != nil {
		return nil, nil, err
	}

	var msgs []AppMsg
	for _, item := range page.PublishList {
		if item.PublishInfo == "" {
			continue
		}
		var info PublishInfo
		if err := json.Unmarshal([]byte(item.PublishInfo), &info); err != nil {
			// One malformed entry should not sink the page.
			continue
		}
		if len(info.AppMsgEx) == 0 {
			continue
		}
		msgs = append(msgs, info.AppMsgEx[0])
	}

	return &page, msgs, nil
}
