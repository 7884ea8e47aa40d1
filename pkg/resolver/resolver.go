package resolver

import (
	"context"
	"strings"

	"wxrss/pkg/logger"
	"wxrss/pkg/wechat"
)

// Candidate is one publisher returned by the platform search.
type Candidate struct {
	FakeID    string `json:"fakeid"`
	Nickname  string `json:"nickname"`
	Avatar    string `json:"round_head_img"`
	Signature string `json:"signature"`
	Alias     string `json:"alias_name"`
}

// Searcher is the platform call the resolver depends on.
type Searcher interface {
	SearchBiz(ctx context.Context, keyword string, limit int) (*wechat.SearchResponse, error)
}

// Runner executes one authenticated operation under rate limit policy.
type Runner interface {
	Do(ctx context.Context, op func(ctx context.Context) error) error
}

// Resolver finds publishers by name and picks the best-matching fakeid. The
// platform already matches fuzzily; results keep its relevance order and are
// never re-ranked client-side.
type Resolver struct {
	client Searcher
	gate   Runner
	logger logger.Logger
}

// New creates a Resolver issuing searches through the given gate.
func New(client Searcher, g Runner, log logger.Logger) *Resolver {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Resolver{client: client, gate: g, logger: log}
}

// Search returns up to limit candidates in platform order.
func (r *Resolver) Search(ctx context.Context, keyword string, limit int) ([]Candidate, error) {
	var resp *wechat.SearchResponse
	err := r.gate.Do(ctx, func(ctx context.Context) error {
		var opErr error
		resp, opErr = r.client.SearchBiz(ctx, keyword, limit)
		return opErr
	})
	if err != nil {
		return nil, err
	}

	// The request asks for limit results, but the response is not trusted to
	// honor it.
	list := resp.List
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}

	candidates := make([]Candidate, 0, len(list))
	for _, acc := range list {
		candidates = append(candidates, Candidate{
			FakeID:    acc.FakeID,
			Nickname:  acc.Nickname,
			Avatar:    acc.RoundHeadImg,
			Signature: acc.Signature,
			Alias:     acc.AliasName,
		})
	}

	r.logger.InfoWithFields("publisher search completed", map[string]interface{}{
		"keyword": keyword,
		"results": len(candidates),
	})
	return candidates, nil
}

// ResolveFirst returns the fakeid of the best match for keyword: an exact
// nickname match wins, then a nickname containing the keyword, then the
// platform's first result. Zero results yield an empty fakeid with no error.
func (r *Resolver) ResolveFirst(ctx context.Context, keyword string, limit int) (string, error) {
	candidates, err := r.Search(ctx, keyword, limit)
	if err != nil {
		return "", err
	}
	if len(candidates) == 0 {
		r.logger.WarnWithFields("no publisher found", map[string]interface{}{"keyword": keyword})
		return "", nil
	}

	for _, c := range candidates {
		if c.Nickname == keyword {
			r.logger.DebugWithFields("exact nickname match", map[string]interface{}{
				"nickname": c.Nickname,
				"fakeid":   c.FakeID,
			})
			return c.FakeID, nil
		}
	}

	for _, c := range candidates {
		if strings.Contains(c.Nickname, keyword) {
			r.logger.DebugWithFields("substring nickname match", map[string]interface{}{
				"nickname": c.Nickname,
				"fakeid":   c.FakeID,
			})
			return c.FakeID, nil
		}
	}

	return candidates[0].FakeID, nil
}
