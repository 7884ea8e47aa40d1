package session

import (
	"time"
)

// State tracks what is known about a session's validity. A session starts
// fresh, becomes validated once it has been used for a successful
// authenticated call, and becomes expired when a probe or real call returns
// an auth-failure signal. Expiry is one-way; a new login produces a new
// Session.
type State int

const (
	StateFresh State = iota
	StateValidated
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateValidated:
		return "validated"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Session holds the credentials produced by a scan-login: the platform
// token, the cookie set backing it, and the owning account's fakeid.
type Session struct {
	Token      string            `json:"token"`
	Cookies    map[string]string `json:"cookies"`
	FakeID     string            `json:"fakeid"`
	IsLoggedIn bool              `json:"is_logged_in"`
	CreatedAt  time.Time         `json:"created_at,omitempty"`

	state State
}

// New creates a fresh Session from login results.
func New(token string, cookies map[string]string, fakeid string) *Session {
	if cookies == nil {
		cookies = make(map[string]string)
	}
	return &Session{
		Token:      token,
		Cookies:    cookies,
		FakeID:     fakeid,
		IsLoggedIn: true,
		CreatedAt:  time.Now(),
	}
}

// State returns the session's current validity state.
func (s *Session) State() State {
	return s.state
}

// MarkValidated records that the session was successfully used for an
// authenticated call. A session that has already expired stays expired.
func (s *Session) MarkValidated() {
	if s.state != StateExpired {
		s.state = StateValidated
	}
}

// MarkExpired records that the platform rejected the session's credentials.
func (s *Session) MarkExpired() {
	s.state = StateExpired
	s.IsLoggedIn = false
}

// Usable reports whether the session may be presented for authenticated
// calls. It does not guarantee the platform will still accept it.
func (s *Session) Usable() bool {
	return s != nil && s.Token != "" && len(s.Cookies) > 0 && s.state != StateExpired
}

// CookieHeader renders the cookie set as a Cookie header value.
func (s *Session) CookieHeader() string {
	header := ""
	for name, value := range s.Cookies {
		if header != "" {
			header += "; "
		}
		header += name + "=" + value
	}
	return header
}
