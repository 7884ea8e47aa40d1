package wechat

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	errs "wxrss/pkg/errors"
	"wxrss/pkg/logger"
	"wxrss/pkg/session"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Client issues authenticated calls against the platform API. Every call
// carries the bound session's token and cookie set; responses are classified
// into success, auth failure, throttled, or transport error.
type Client struct {
	http   *resty.Client
	sess   *session.Session
	logger logger.Logger
}

// NewClient creates a platform API client bound to the given session.
func NewClient(sess *session.Session, timeout time.Duration, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	httpClient := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", defaultUserAgent).
		SetHeader("Referer", BaseURL+"/").
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))

	return &Client{
		http:   httpClient,
		sess:   sess,
		logger: log,
	}
}

// SetSession rebinds the client to a new session (after re-login).
func (c *Client) SetSession(sess *session.Session) {
	c.sess = sess
}

// Session returns the currently bound session.
func (c *Client) Session() *session.Session {
	return c.sess
}

// SearchBiz searches published accounts by keyword. Results come back in
// platform relevance order.
func (c *Client) SearchBiz(ctx context.Context, keyword string, limit int) (*SearchResponse, error) {
	var result SearchResponse
	if err := c.getJSON(ctx, SearchBizURL(c.token(), keyword, limit), &result, &result.BaseResp); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListPublished fetches one page of the account's published articles.
func (c *Client) ListPublished(ctx context.Context, fakeid string, begin, count int) (*PublishPage, []AppMsg, error) {
	var result PublishResponse
	if err := c.getJSON(ctx, AppMsgPublishURL(c.token(), fakeid, begin, count), &result, &result.BaseResp); err != nil {
		return nil, nil, err
	}

	page, msgs, err := DecodePublishPage(result.PublishPage)
	if err != nil {
		return nil, nil, errs.Wrap(errs.KindFetch, "failed to decode publish_page", err)
	}
	return page, msgs, nil
}

// Probe issues the cheapest possible authenticated call to check whether the
// session still authenticates.
func (c *Client) Probe(ctx context.Context) error {
	_, err := c.SearchBiz(ctx, "wx", 1)
	return err
}

func (c *Client) token() string {
	if c.sess == nil {
		return ""
	}
	return c.sess.Token
}

// getJSON performs an authenticated GET and decodes the JSON payload,
// classifying any failure.
func (c *Client) getJSON(ctx context.Context, url string, target interface{}, base *BaseResp) error {
	if c.sess == nil || c.sess.Token == "" {
		return errs.New(errs.KindTokenExpired, "no session bound to client")
	}

	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Cookie", c.sess.CookieHeader()).
		Get(url)
	duration := time.Since(start)

	if err != nil {
		c.logger.ErrorWithFields("platform request failed", map[string]interface{}{
			"url":      url,
			"error":    err.Error(),
			"duration": duration,
		})
		return errs.Wrap(errs.KindNetwork, "request failed", err)
	}

	c.logger.DebugWithFields("platform request completed", map[string]interface{}{
		"url":      url,
		"status":   resp.StatusCode(),
		"duration": duration,
	})

	if err := c.classifyHTTP(resp); err != nil {
		return err
	}

	body := resp.Body()
	if err := json.Unmarshal(body, target); err != nil {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse platform response", map[string]interface{}{
			"url":          url,
			"body_preview": preview,
		})
		return errs.Wrap(errs.KindFetch, "failed to parse response", err)
	}

	if base != nil {
		if err := classifyBaseResp(*base); err != nil {
			return err
		}
	}

	return nil
}

// classifyHTTP maps transport-level response signals onto error kinds.
func (c *Client) classifyHTTP(resp *resty.Response) error {
	status := resp.StatusCode()

	// A redirect chain landing on the login page means the token no longer
	// authenticates.
	if raw := resp.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		if strings.Contains(strings.ToLower(raw.Request.URL.Path), "login") {
			return errs.New(errs.KindTokenExpired, "redirected to login page")
		}
	}

	switch {
	case status == http.StatusTooManyRequests:
		return errs.WithCode(errs.KindRateLimit, status, "rate limit exceeded")
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errs.WithCode(errs.KindTokenExpired, status, "authentication rejected")
	case status >= 500:
		return errs.WithCode(errs.KindNetwork, status, "server error")
	case status >= 400:
		return errs.WithCode(errs.KindFetch, status, "unexpected status")
	}

	return nil
}

// classifyBaseResp maps platform return codes onto error kinds.
func classifyBaseResp(base BaseResp) error {
	if base.Ret == 0 {
		return nil
	}

	msg := base.ErrMsg
	if msg == "" {
		msg = "platform returned an error"
	}

	switch {
	case ThrottleRetCodes[base.Ret]:
		return errs.WithCode(errs.KindRateLimit, base.Ret, msg)
	case AuthFailureRetCodes[base.Ret]:
		return errs.WithCode(errs.KindTokenExpired, base.Ret, msg)
	default:
		return errs.WithCode(errs.KindFetch, base.Ret, msg)
	}
}

// SetTransportForTest swaps the underlying HTTP transport; test fixtures use
// this to serve canned platform responses.
func (c *Client) SetTransportForTest(rt http.RoundTripper) {
	c.http.SetTransport(rt)
}

// SetBaseURLForTest points the client at a fixture server.
func SetBaseURLForTest(url string) func() {
	old := BaseURL
	BaseURL = url
	return func() { BaseURL = old }
}
