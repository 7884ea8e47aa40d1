package auth

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"wxrss/pkg/browser"
	"wxrss/pkg/config"
	errs "wxrss/pkg/errors"
	"wxrss/pkg/logger"
	"wxrss/pkg/retry"
	"wxrss/pkg/session"
	"wxrss/pkg/wechat"
)

// Page markers the platform renders during the scan flow.
const (
	qrSelector    = ".login__type__container__scan__qrcode"
	deniedMarker  = "当前环境异常"
	expiredMarker = "二维码已失效"
)

var tokenPattern = regexp.MustCompile(`token=([^&]+)`)

// Phase is the login flow's observable progress.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseQRIssued
	PhasePolling
	PhaseConfirmed
	PhaseAuthenticated
	PhaseExpired
	PhaseDenied
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseQRIssued:
		return "qr_issued"
	case PhasePolling:
		return "polling"
	case PhaseConfirmed:
		return "confirmed"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseExpired:
		return "expired"
	case PhaseDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// Runner executes one authenticated operation under rate limit policy.
type Runner interface {
	Do(ctx context.Context, op func(ctx context.Context) error) error
}

// Prober issues one cheap authenticated call to check credentials.
type Prober interface {
	Probe(ctx context.Context) error
}

// Authenticator runs the scan-to-login flow and validates existing sessions.
// Login drives a browser through the platform's QR page; EnsureValid probes
// the platform through the gate. Neither ever retries or re-logins on its
// own.
type Authenticator struct {
	cfg    *config.Config
	store  session.Store
	gate   Runner
	prober Prober
	logger logger.Logger

	newBrowser func() browser.Automator
	now        func() time.Time

	mu    sync.Mutex
	phase Phase

	// OnQRCode, when set, is called once the QR code image has been written
	// so the caller can present it.
	OnQRCode func(path string)
}

// New creates an Authenticator. gate and prober back EnsureValid and may be
// nil when only Login is used.
func New(cfg *config.Config, store session.Store, g Runner, p Prober, log logger.Logger) *Authenticator {
	if log == nil {
		log = logger.GetLogger()
	}
	a := &Authenticator{
		cfg:    cfg,
		store:  store,
		gate:   g,
		prober: p,
		logger: log,
		now:    time.Now,
	}
	a.newBrowser = func() browser.Automator {
		return browser.NewChrome(cfg.Browser.Headless, cfg.Browser.ExecPath, cfg.Browser.Timeout, log)
	}
	return a
}

// Phase returns the flow's current phase.
func (a *Authenticator) Phase() Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phase
}

func (a *Authenticator) setPhase(p Phase) {
	a.mu.Lock()
	a.phase = p
	a.mu.Unlock()
	a.logger.DebugWithFields("login phase changed", map[string]interface{}{"phase": p.String()})
}

// Login runs the full scan-to-login flow: open the login page, capture the QR
// code, poll until the operator scans and confirms, then extract and persist
// the credentials. The browser is always released before returning.
func (a *Authenticator) Login(ctx context.Context) (*session.Session, error) {
	a.setPhase(PhaseInit)
	a.logger.Info("starting login flow")

	b := a.newBrowser()
	defer b.Close()

	if err := a.issueQRCode(ctx, b); err != nil {
		return nil, err
	}

	a.setPhase(PhasePolling)
	loginURL, err := a.waitForScan(ctx, b)
	if err != nil {
		return nil, err
	}
	a.setPhase(PhaseConfirmed)

	sess, err := a.extractCredentials(ctx, b, loginURL)
	if err != nil {
		return nil, err
	}

	if err := a.store.Save(sess); err != nil {
		// The session still works for this process; only persistence failed.
		a.logger.WithError(err).Warn("failed to persist session")
	}

	a.setPhase(PhaseAuthenticated)
	a.logger.InfoWithFields("login complete", map[string]interface{}{
		"cookies": len(sess.Cookies),
	})
	return sess, nil
}

// ExportQRCode captures the login QR code without waiting for the scan. The
// returned path is where the PNG was written.
func (a *Authenticator) ExportQRCode(ctx context.Context) (string, error) {
	b := a.newBrowser()
	defer b.Close()

	if err := a.issueQRCode(ctx, b); err != nil {
		return "", err
	}
	return a.cfg.Login.QRCodeFile, nil
}

// EnsureValid checks the session against the platform with one gated probe.
// An auth failure marks the session expired, persists that, and surfaces the
// error; it never triggers a re-login.
func (a *Authenticator) EnsureValid(ctx context.Context, sess *session.Session) error {
	if !sess.Usable() {
		return errs.New(errs.KindTokenExpired, "session is missing or already expired")
	}
	if a.gate == nil || a.prober == nil {
		return errs.New(errs.KindTokenExpired, "no probe configured for session validation")
	}

	err := a.gate.Do(ctx, a.prober.Probe)
	if err == nil {
		sess.MarkValidated()
		a.logger.Debug("session validated against platform")
		return nil
	}

	if errs.KindOf(err) == errs.KindTokenExpired {
		sess.MarkExpired()
		if saveErr := a.store.Save(sess); saveErr != nil {
			a.logger.WithError(saveErr).Warn("failed to persist expired session state")
		}
		a.logger.Warn("session rejected by platform, login required")
	}
	return err
}

// issueQRCode starts the browser, opens the login page and writes the QR
// code image.
func (a *Authenticator) issueQRCode(ctx context.Context, b browser.Automator) error {
	if err := b.Start(ctx); err != nil {
		return err
	}
	if err := b.Navigate(ctx, wechat.LoginURL()); err != nil {
		return err
	}
	if err := b.ScreenshotElement(ctx, qrSelector, a.cfg.Login.QRCodeFile); err != nil {
		return err
	}

	a.setPhase(PhaseQRIssued)
	a.logger.InfoWithFields("qr code ready, scan with the WeChat app", map[string]interface{}{
		"path": a.cfg.Login.QRCodeFile,
	})
	if a.OnQRCode != nil {
		a.OnQRCode(a.cfg.Login.QRCodeFile)
	}
	return nil
}

// waitForScan polls the page until the post-scan redirect lands on the
// console home, the platform refuses the environment, or the QR code or the
// overall wait expires. Returns the redirected URL on success.
func (a *Authenticator) waitForScan(ctx context.Context, b browser.Automator) (string, error) {
	deadline := a.now().Add(a.cfg.Login.Timeout)
	a.logger.InfoWithFields("waiting for scan", map[string]interface{}{
		"timeout": a.cfg.Login.Timeout,
	})

	for a.now().Before(deadline) {
		url, err := b.CurrentURL(ctx)
		if err != nil {
			a.logger.WithError(err).Warn("could not read page location")
		} else if strings.Contains(url, wechat.HomePath) {
			return url, nil
		}

		body, err := b.BodyText(ctx)
		if err != nil {
			a.logger.WithError(err).Warn("could not read page body")
		} else {
			if strings.Contains(body, deniedMarker) {
				a.setPhase(PhaseDenied)
				return "", errs.New(errs.KindLogin, "platform flagged the environment, manual verification required")
			}
			if strings.Contains(body, expiredMarker) {
				a.setPhase(PhaseExpired)
				return "", errs.New(errs.KindQRTimeout, "qr code expired before it was scanned")
			}
		}

		if err := retry.Wait(ctx, a.cfg.Login.PollInterval); err != nil {
			return "", errs.Wrap(errs.KindLogin, "login cancelled", err)
		}
	}

	a.setPhase(PhaseExpired)
	return "", errs.Newf(errs.KindQRTimeout, "scan not confirmed within %s", a.cfg.Login.Timeout)
}

// extractCredentials pulls the token from the redirected URL and dumps the
// browser's cookie jar into a fresh session.
func (a *Authenticator) extractCredentials(ctx context.Context, b browser.Automator, url string) (*session.Session, error) {
	match := tokenPattern.FindStringSubmatch(url)
	if match == nil {
		return nil, errs.New(errs.KindLogin, "no token in post-login URL")
	}
	token := match[1]

	cookies, err := b.Cookies(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.KindLogin, "failed to collect cookies", err)
	}
	if len(cookies) == 0 {
		return nil, errs.New(errs.KindLogin, "browser context has no cookies")
	}

	return session.New(token, cookies, ""), nil
}
