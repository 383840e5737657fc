package notifications

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"autocheck/internal/config"
	"autocheck/internal/profile"
)

const userAgent = "autocheck/0.1.0"

// Service sends plain-text notifications.
type Service interface {
	Send(ctx context.Context, text string) error
	TestNotification(ctx context.Context) error
}

// HTTPDoer describes the HTTP client used by the WeCom service.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Provider builds Services that share one token cache.
type Provider struct {
	baseURL string
	client  HTTPDoer
	now     func() time.Time

	mu     sync.Mutex
	tokens map[string]cachedToken
}

type cachedToken struct {
	value   string
	expires time.Time
}

// NewProvider builds a provider from the [wecom] section. A nil client gets an
// http.Client with the configured request timeout.
func NewProvider(cfg *config.Config, client HTTPDoer) *Provider {
	if cfg == nil {
		d := config.Default()
		cfg = &d
	}
	timeout := time.Duration(cfg.WeCom.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Provider{
		baseURL: strings.TrimRight(cfg.WeCom.APIBaseURL, "/"),
		client:  client,
		now:     time.Now,
		tokens:  make(map[string]cachedToken),
	}
}

// For returns a Service for creds, or a no-op when creds are incomplete.
func (p *Provider) For(creds profile.WeCom) Service {
	if p == nil || !creds.Configured() {
		return noopService{}
	}
	return &weComService{provider: p, creds: creds}
}

// Configured reports whether For(creds) would deliver anything.
func Configured(creds profile.WeCom) bool {
	return creds.Configured()
}

func (p *Provider) cacheKey(creds profile.WeCom) string {
	return strings.TrimSpace(creds.CorpID) + "\x00" + strings.TrimSpace(creds.Secret)
}

func (p *Provider) cached(creds profile.WeCom) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tok, ok := p.tokens[p.cacheKey(creds)]
	if !ok || !p.now().Before(tok.expires) {
		return "", false
	}
	return tok.value, true
}

func (p *Provider) store(creds profile.WeCom, value string, ttl time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokens[p.cacheKey(creds)] = cachedToken{value: value, expires: p.now().Add(ttl)}
}

func (p *Provider) invalidate(creds profile.WeCom) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.tokens, p.cacheKey(creds))
}

type weComService struct {
	provider *Provider
	creds    profile.WeCom
}

func (s *weComService) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return s.provider.sendText(ctx, s.creds, text)
}

func (s *weComService) TestNotification(ctx context.Context) error {
	return s.Send(ctx, fmt.Sprintf("autocheck test notification (%s)", s.provider.now().Format("2006-01-02 15:04:05")))
}

type noopService struct{}

func (noopService) Send(context.Context, string) error     { return nil }
func (noopService) TestNotification(context.Context) error { return nil }
