// Package fetch provides the single choke point for all traffic to the
// origin forum: one request in flight at a time, a minimum interval between
// request starts, and a transparently maintained authenticated session.
package fetch

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
	"golang.org/x/time/rate"

	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
)

// Gateway serializes origin requests behind a FIFO slot gate (one request in
// flight, served in arrival order) and a rate limiter with burst 1 (the
// minimum spacing). All rate-limiter state is owned here; callers only see
// Fetch.
type Gateway struct {
	config  *common.OriginConfig
	baseURL *url.URL
	client  *http.Client
	limiter *rate.Limiter
	decoder encoding.Encoding // nil when the origin already serves UTF-8
	logger  arbor.ILogger

	// gate is the single-slot FIFO gate. Holding the slot also guards
	// authenticated.
	gate          slotGate
	authenticated bool
}

// NewGateway creates a fetch gateway for the configured origin.
func NewGateway(config *common.OriginConfig, logger arbor.ILogger) (*Gateway, error) {
	baseURL, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, &NetworkError{URL: config.BaseURL, Err: err}
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	var decoder encoding.Encoding
	if config.Encoding != "" && !strings.EqualFold(config.Encoding, "utf-8") {
		decoder, err = htmlindex.Get(config.Encoding)
		if err != nil {
			return nil, err
		}
	}

	interval := common.ParseDurationOr(config.RequestInterval, 1500*time.Millisecond)
	timeout := common.ParseDurationOr(config.RequestTimeout, 30*time.Second)

	return &Gateway{
		config:  config,
		baseURL: baseURL,
		client: &http.Client{
			Jar:     jar,
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		decoder: decoder,
		logger:  logger,
	}, nil
}

// Fetch retrieves one origin page, decoded to UTF-8. The session is
// established lazily on first use; a page served to an anonymous session
// triggers exactly one re-login and one retry before AuthenticationError.
func (g *Gateway) Fetch(ctx context.Context, path string) (*models.FetchedDocument, error) {
	if err := g.gate.acquire(ctx); err != nil {
		return nil, err
	}
	defer g.gate.release()

	if !g.authenticated && g.hasCredentials() {
		if err := g.login(ctx); err != nil {
			return nil, err
		}
	}

	doc, err := g.request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	if g.isAnonymous(doc.HTML) && g.hasCredentials() {
		g.logger.Warn().Str("path", path).Msg("Session expired, re-authenticating")
		g.authenticated = false

		if err := g.login(ctx); err != nil {
			return nil, err
		}

		doc, err = g.request(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
		if g.isAnonymous(doc.HTML) {
			g.authenticated = false
			return nil, &AuthenticationError{Reason: "session rejected again after re-login"}
		}
	}

	return doc, nil
}

// login submits credentials and marks the session authenticated. The login
// request goes through the same spacing limiter as every other request.
func (g *Gateway) login(ctx context.Context) error {
	form := url.Values{
		"user":         {g.config.Username},
		"passwrd":      {g.config.Password},
		"cookielength": {"-1"},
	}

	doc, err := g.request(ctx, http.MethodPost, g.config.LoginPath, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}

	if g.isAnonymous(doc.HTML) {
		return &AuthenticationError{Reason: "login rejected by origin"}
	}

	g.authenticated = true
	g.logger.Info().Str("username", g.config.Username).Msg("Origin session established")
	return nil
}

// request performs one HTTP exchange. Caller holds the slot; the limiter
// wait here is what spaces request starts.
func (g *Gateway) request(ctx context.Context, method, path string, body io.Reader) (*models.FetchedDocument, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	target, err := g.resolve(path)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, &NetworkError{URL: target, Err: err}
	}
	req.Header.Set("User-Agent", g.config.UserAgent)
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, &HTTPStatusError{URL: target, StatusCode: resp.StatusCode}
	}

	html, err := g.readBody(resp.Body)
	if err != nil {
		return nil, &NetworkError{URL: target, Err: err}
	}

	g.logger.Debug().
		Str("method", method).
		Str("url", target).
		Int("status", resp.StatusCode).
		Int("bytes", len(html)).
		Dur("duration", time.Since(start)).
		Msg("Origin request completed")

	return &models.FetchedDocument{
		URL:        target,
		StatusCode: resp.StatusCode,
		HTML:       html,
		FetchedAt:  time.Now(),
	}, nil
}

// readBody reads at most MaxBodySize bytes and decodes the origin's legacy
// charset to UTF-8 before anything downstream sees the markup.
func (g *Gateway) readBody(body io.Reader) (string, error) {
	maxBody := g.config.MaxBodySize
	if maxBody <= 0 {
		maxBody = 10 * 1024 * 1024
	}

	var reader io.Reader = io.LimitReader(body, int64(maxBody))
	if g.decoder != nil {
		reader = transform.NewReader(reader, g.decoder.NewDecoder())
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (g *Gateway) resolve(path string) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", &NetworkError{URL: path, Err: err}
	}
	return g.baseURL.ResolveReference(ref).String(), nil
}

func (g *Gateway) hasCredentials() bool {
	return g.config.Username != "" && g.config.Password != ""
}

func (g *Gateway) isAnonymous(html string) bool {
	if g.config.AnonymousText == "" {
		return false
	}
	return strings.Contains(html, g.config.AnonymousText)
}

// Ensure Gateway implements FetchService interface
var _ interfaces.FetchService = (*Gateway)(nil)
