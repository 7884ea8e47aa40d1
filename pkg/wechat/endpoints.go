package wechat

import (
	"fmt"
	"net/url"
)

// BaseURL is the platform origin all authenticated calls go to.
var BaseURL = "https://mp.weixin.qq.com"

const (
	// LoginPath is the scan-login entry page.
	LoginPath = "/"
	// HomePath is where the platform redirects once a scan is confirmed.
	HomePath = "/cgi-bin/home"

	searchBizPath     = "/cgi-bin/searchbiz"
	appMsgPublishPath = "/cgi-bin/appmsgpublish"
)

// SearchBizURL builds the account-search endpoint URL.
func SearchBizURL(token, keyword string, limit int) string {
	params := url.Values{}
	params.Set("action", "search_biz")
	params.Set("begin", "0")
	params.Set("count", fmt.Sprintf("%d", limit))
	params.Set("query", keyword)
	params.Set("token", token)
	params.Set("lang", "zh_CN")
	params.Set("f", "json")
	params.Set("ajax", "1")

	return BaseURL + searchBizPath + "?" + params.Encode()
}

// AppMsgPublishURL builds the published-article-list endpoint URL.
// sub_action=list_ex is what returns the publish_page payload.
func AppMsgPublishURL(token, fakeid string, begin, count int) string {
	params := url.Values{}
	params.Set("sub", "list")
	params.Set("sub_action", "list_ex")
	params.Set("begin", fmt.Sprintf("%d", begin))
	params.Set("count", fmt.Sprintf("%d", count))
	params.Set("fakeid", fakeid)
	params.Set("token", token)
	params.Set("lang", "zh_CN")
	params.Set("f", "json")
	params.Set("ajax", "1")

	return BaseURL + appMsgPublishPath + "?" + params.Encode()
}

// LoginURL returns the scan-login entry page URL.
func LoginURL() string {
	return BaseURL + LoginPath
}

// HomeURL returns the post-login home URL.
func HomeURL() string {
	return BaseURL + HomePath
}
