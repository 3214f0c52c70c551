package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"quiz-battle-client/internal/domain"
)

// StateStore abstracts the durable client state store (in-memory, Redis, etc).
type StateStore interface {
	Put(ctx context.Context, key string, value any) error
	Get(ctx context.Context, key string, dest any) (bool, error)
	Delete(ctx context.Context, key string) error
}

const credentialsKey = "auth:credentials"

// Gateway wraps every outbound call to the backend. It owns the credential
// lifecycle: attach the access token, detect expiry, refresh, retry once,
// give up. Concurrent expiries share a single refresh via singleflight, so
// exactly one refresh call is made no matter how many requests observe a 401
// in the same window.
type Gateway struct {
	baseURL   string
	client    *http.Client
	store     StateStore
	creds     *credentials
	sf        singleflight.Group
	onSignOut func()
}

// Option configures optional gateway behavior.
type Option func(*Gateway)

// WithHTTPClient replaces the default HTTP client (used in tests).
func WithHTTPClient(client *http.Client) Option {
	return func(g *Gateway) { g.client = client }
}

// WithSignOutHook registers a callback fired when a refresh fails and the
// session is wiped; the UI uses it to redirect to the login surface.
func WithSignOutHook(hook func()) Option {
	return func(g *Gateway) { g.onSignOut = hook }
}

func New(baseURL string, store StateStore, opts ...Option) *Gateway {
	jar, _ := cookiejar.New(nil)
	g := &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
		store: store,
		creds: newCredentials(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Restore hydrates credentials from the durable store. A missing or corrupt
// record leaves the gateway signed out.
func (g *Gateway) Restore(ctx context.Context) error {
	var state domain.CredentialState
	ok, err := g.store.Get(ctx, credentialsKey, &state)
	if err != nil {
		return err
	}
	if ok {
		g.creds.set(state)
	}
	return nil
}

// User returns the signed-in user, if any.
func (g *Gateway) User() (domain.User, bool) {
	state, ok := g.creds.snapshot()
	return state.User, ok
}

// Login exchanges a username/password for a credential pair and persists it.
func (g *Gateway) Login(ctx context.Context, username, password string) (domain.User, error) {
	var state domain.CredentialState
	payload := map[string]string{"username": username, "password": password}
	if err := g.doBare(ctx, http.MethodPost, "/auth/login", payload, &state); err != nil {
		return domain.User{}, err
	}
	g.creds.set(state)
	if err := g.store.Put(ctx, credentialsKey, state); err != nil {
		return domain.User{}, err
	}
	return state.User, nil
}

// Logout wipes local credential state. The revoke call is best-effort.
func (g *Gateway) Logout(ctx context.Context) {
	if err := g.DoJSON(ctx, http.MethodPost, "/auth/logout", nil, nil); err != nil {
		log.Debug().Err(err).Msg("logout revoke failed")
	}
	g.clearCredentials(ctx)
}

// RequestOption adds per-request customization, e.g. attempt-scoped headers.
type RequestOption func(*http.Header)

// WithHeader attaches an extra header to the request and any replay of it.
func WithHeader(key, value string) RequestOption {
	return func(h *http.Header) { h.Set(key, value) }
}

// DoJSON sends a JSON request with the current access token attached. On a
// 401 it refreshes (joining any in-flight refresh) and replays the request
// exactly once; a second 401 on the replay is a hard authentication failure.
func (g *Gateway) DoJSON(ctx context.Context, method, path string, body, dest any, opts ...RequestOption) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: encode request: %v", domain.ErrValidation, err)
		}
		payload = data
	}
	header := http.Header{}
	for _, opt := range opts {
		opt(&header)
	}

	status, respBody, err := g.send(ctx, method, path, payload, header)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		if err := g.refresh(ctx); err != nil {
			return err
		}
		status, respBody, err = g.send(ctx, method, path, payload, header)
		if err != nil {
			return err
		}
		if status == http.StatusUnauthorized {
			// The replayed request was rejected with fresh credentials.
			g.clearCredentials(ctx)
			g.signOut()
			return fmt.Errorf("%w: request rejected after refresh", domain.ErrAuthFailed)
		}
	}
	return decodeResponse(method, path, status, respBody, dest)
}

// doBare sends without auth handling; used for login and refresh themselves.
func (g *Gateway) doBare(ctx context.Context, method, path string, body, dest any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: encode request: %v", domain.ErrValidation, err)
		}
		payload = data
	}
	status, respBody, err := g.send(ctx, method, path, payload, http.Header{})
	if err != nil {
		return err
	}
	return decodeResponse(method, path, status, respBody, dest)
}

// send builds and issues one HTTP request. Requests are rebuilt per call so a
// replay carries the refreshed token and a fresh body reader.
func (g *Gateway) send(ctx context.Context, method, path string, payload []byte, extra http.Header) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, values := range extra {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if state, ok := g.creds.snapshot(); ok {
		req.Header.Set("Authorization", "Bearer "+state.AccessToken)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: read response: %w", method, path, err)
	}
	return resp.StatusCode, data, nil
}

// refresh exchanges the refresh token for a new credential pair. All callers
// that hit a 401 while one refresh is in flight suspend on the same
// singleflight call and settle together when it does.
func (g *Gateway) refresh(ctx context.Context) error {
	if state, ok := g.creds.snapshot(); !ok || state.RefreshToken == "" {
		// Anonymous caller: nothing to renew, nothing to wipe, no sign-out.
		return fmt.Errorf("%w: no credentials to refresh", domain.ErrAuthFailed)
	}
	_, err, shared := g.sf.Do("refresh", func() (any, error) {
		state, ok := g.creds.snapshot()
		if !ok || state.RefreshToken == "" {
			return nil, fmt.Errorf("no refresh token")
		}

		var renewed domain.CredentialState
		payload := map[string]string{"refreshToken": state.RefreshToken}
		if err := g.doBare(ctx, http.MethodPost, "/auth/refresh", payload, &renewed); err != nil {
			return nil, err
		}
		if renewed.User.ID == "" {
			renewed.User = state.User
		}
		g.creds.set(renewed)
		if err := g.store.Put(ctx, credentialsKey, renewed); err != nil {
			log.Warn().Err(err).Msg("failed to persist refreshed credentials")
		}
		log.Debug().Str("user_id", renewed.User.ID).Msg("access token refreshed")
		return nil, nil
	})
	if err != nil {
		// Fatal for the session: wipe state and surface a global sign-out.
		g.clearCredentials(ctx)
		g.signOut()
		log.Warn().Err(err).Bool("shared", shared).Msg("token refresh failed, signing out")
		return fmt.Errorf("%w: %v", domain.ErrAuthFailed, err)
	}
	return nil
}

// clearCredentials wipes memory, the durable store, and the cookie mirror so
// edge-level route gating cannot disagree with local authentication state.
func (g *Gateway) clearCredentials(ctx context.Context) {
	g.creds.clear()
	if err := g.store.Delete(ctx, credentialsKey); err != nil {
		log.Warn().Err(err).Msg("failed to clear stored credentials")
	}
	jar, _ := cookiejar.New(nil)
	g.client.Jar = jar
}

func (g *Gateway) signOut() {
	if g.onSignOut != nil {
		g.onSignOut()
	}
}

func decodeResponse(method, path string, status int, body []byte, dest any) error {
	switch {
	case status >= 200 && status < 300:
		if dest == nil || len(body) == 0 {
			return nil
		}
		if err := json.Unmarshal(body, dest); err != nil {
			return fmt.Errorf("%s %s: decode response: %w", method, path, err)
		}
		return nil
	case status == http.StatusConflict:
		return domain.ErrSubmissionConflict
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", domain.ErrQuizNotFound, method, path)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", domain.ErrValidation, strings.TrimSpace(string(body)))
	default:
		return fmt.Errorf("%s %s: status %d: %s", method, path, status, strings.TrimSpace(string(body)))
	}
}
