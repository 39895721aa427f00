// Package oauth implements the OAuth 2.0 authorization-code flow for one
// provider configuration: authorization URL generation with single-use state
// tokens, code exchange, and token storage with transparent refresh-on-read.
//
// All persisted keys are scoped by a namespace string so multiple providers
// can share one storage backend:
//
//	{namespace}:oauth:state:{state}
//	{namespace}:oauth:tokens:{key}
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"triggerskit/internal/common/errors"
	"triggerskit/internal/common/httpclient"
	"triggerskit/internal/common/logging"
	"triggerskit/internal/storage"
)

// StateTTL is how long an issued state token remains exchangeable
const StateTTL = 600 * time.Second

// AuthMethod selects how client credentials are sent to the token endpoint
type AuthMethod string

const (
	// AuthMethodBody injects client_id and client_secret into the form body
	AuthMethodBody AuthMethod = "body"
	// AuthMethodHeader sends credentials as HTTP Basic authentication
	AuthMethodHeader AuthMethod = "header"
)

// Config holds the static OAuth provider configuration. It is immutable for
// the lifetime of the handler.
type Config struct {
	AuthorizationURL string     `json:"authorization_url"`
	TokenURL         string     `json:"token_url"`
	ClientID         string     `json:"client_id"`
	ClientSecret     string     `json:"client_secret"`
	RedirectURI      string     `json:"redirect_uri"`
	Scopes           []string   `json:"scopes,omitempty"`
	AuthMethod       AuthMethod `json:"auth_method,omitempty"`
	// ScopeSeparator joins the scope list in the authorization URL.
	// Defaults to a single space; some providers use a comma.
	ScopeSeparator string `json:"scope_separator,omitempty"`
}

// Tokens is the normalized credential record persisted per application key
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresIn    int64     `json:"expires_in,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Scope        string    `json:"scope,omitempty"`
}

// Expired reports whether the tokens have passed their logical expiry.
// Tokens without an expiry never expire.
func (t *Tokens) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !t.ExpiresAt.After(now)
}

// tokenResponse maps the token endpoint's snake_case JSON body
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// stateRecord is what gets persisted for an in-flight authorization attempt
type stateRecord struct {
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// Authorization is the outcome of AuthorizationURL
type Authorization struct {
	URL   string `json:"url"`
	State string `json:"state"`
}

// AuthorizeOptions overrides per-call parts of the authorization URL
type AuthorizeOptions struct {
	// State, when set, is used instead of a freshly generated token
	State string
	// Scopes override the config's default scopes for this URL only
	Scopes []string
}

// Handler executes the authorization-code grant for one provider config
type Handler struct {
	namespace string
	config    Config
	store     storage.Store
	poster    *httpclient.FormPoster
	refresh   singleflight.Group
	logger    logging.Logger
	now       func() time.Time
}

// NewHandler creates a handler scoped to namespace. The storage instance is
// owned by the application; the handler never closes it.
func NewHandler(namespace string, config Config, store storage.Store, opts ...HandlerOption) (*Handler, error) {
	if namespace == "" {
		return nil, errors.ConfigError("oauth namespace is required")
	}
	if config.AuthorizationURL == "" {
		return nil, errors.ConfigError("authorization_url is required")
	}
	if config.TokenURL == "" {
		return nil, errors.ConfigError("token_url is required")
	}
	if config.ClientID == "" {
		return nil, errors.ConfigError("client_id is required")
	}
	if config.ClientSecret == "" {
		return nil, errors.ConfigError("client_secret is required")
	}
	if store == nil {
		return nil, errors.ConfigError("storage is required")
	}
	if config.AuthMethod == "" {
		config.AuthMethod = AuthMethodBody
	}
	if config.ScopeSeparator == "" {
		config.ScopeSeparator = " "
	}

	h := &Handler{
		namespace: namespace,
		config:    config,
		store:     store,
		logger:    logging.GetGlobalLogger(),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(h)
	}

	if h.poster == nil {
		h.poster = httpclient.NewFormPoster("oauth-"+namespace, nil, h.logger)
	}

	return h, nil
}

// HandlerOption customizes a Handler at construction time
type HandlerOption func(*Handler)

// WithHTTPClient sets the HTTP client used for token endpoint calls
func WithHTTPClient(client *http.Client) HandlerOption {
	return func(h *Handler) {
		h.poster = httpclient.NewFormPoster("oauth-"+h.namespace, client, h.logger)
	}
}

// WithLogger sets the handler's logger
func WithLogger(logger logging.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithClock overrides the handler's time source, for tests
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.now = now
	}
}

func (h *Handler) stateKey(state string) string {
	return fmt.Sprintf("%s:oauth:state:%s", h.namespace, state)
}

func (h *Handler) tokensKey(key string) string {
	return fmt.Sprintf("%s:oauth:tokens:%s", h.namespace, key)
}

// generateState returns 32 cryptographically random bytes as 64 lowercase
// hex characters. Uniqueness is probabilistic; no collision check is done.
func generateState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.InternalError("failed to generate OAuth state", err)
	}
	return hex.EncodeToString(buf), nil
}

// AuthorizationURL builds the provider's authorization URL and persists the
// state token (TTL 600s) before returning. A storage failure fails the whole
// operation so no URL ever references an unstored state.
func (h *Handler) AuthorizationURL(ctx context.Context, opts *AuthorizeOptions) (*Authorization, error) {
	if opts == nil {
		opts = &AuthorizeOptions{}
	}

	state := opts.State
	if state == "" {
		generated, err := generateState()
		if err != nil {
			return nil, err
		}
		state = generated
	}

	scopes := h.config.Scopes
	if opts.Scopes != nil {
		scopes = opts.Scopes
	}

	record, err := json.Marshal(stateRecord{State: state, CreatedAt: h.now()})
	if err != nil {
		return nil, errors.InternalError("failed to encode OAuth state", err)
	}
	if err := h.store.Set(ctx, h.stateKey(state), record, StateTTL); err != nil {
		return nil, errors.InternalError("failed to persist OAuth state", err)
	}

	query := url.Values{}
	query.Set("client_id", h.config.ClientID)
	query.Set("redirect_uri", h.config.RedirectURI)
	query.Set("response_type", "code")
	query.Set("state", state)
	if len(scopes) > 0 {
		query.Set("scope", strings.Join(scopes, h.config.ScopeSeparator))
	}

	return &Authorization{
		URL:   h.config.AuthorizationURL + "?" + query.Encode(),
		State: state,
	}, nil
}

// ExchangeCode redeems an authorization code. The state must have been
// issued by this handler and not yet consumed; it is deleted before the
// token request so a replayed callback fails with INVALID_STATE. The
// returned tokens are NOT persisted; call StoreTokens to keep them.
func (h *Handler) ExchangeCode(ctx context.Context, code, state string) (*Tokens, error) {
	_, found, err := h.store.Get(ctx, h.stateKey(state))
	if err != nil {
		return nil, errors.InternalError("failed to read OAuth state", err)
	}
	if !found {
		return nil, errors.InvalidStateError()
	}

	if err := h.store.Delete(ctx, h.stateKey(state)); err != nil {
		return nil, errors.InternalError("failed to consume OAuth state", err)
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", h.config.RedirectURI)

	return h.requestTokens(ctx, form)
}

// GetTokens returns the stored tokens for key, refreshing them first when
// expired. Absence is not an error: a (nil, nil) return means the caller
// must re-authenticate. A refresh failure clears the stored tokens and is
// reported the same way.
func (h *Handler) GetTokens(ctx context.Context, key string) (*Tokens, error) {
	raw, found, err := h.store.Get(ctx, h.tokensKey(key))
	if err != nil {
		return nil, errors.InternalError("failed to read stored tokens", err)
	}
	if !found {
		return nil, nil
	}

	var tokens Tokens
	if err := json.Unmarshal(raw, &tokens); err != nil {
		// Unreadable entry: treat like no tokens at all.
		h.logger.Warn("Discarding corrupt token record",
			logging.Field{Key: "namespace", Value: h.namespace},
			logging.Field{Key: "key", Value: key},
		)
		_ = h.store.Delete(ctx, h.tokensKey(key))
		return nil, nil
	}

	if !tokens.Expired(h.now()) {
		return &tokens, nil
	}

	if tokens.RefreshToken == "" {
		if err := h.store.Delete(ctx, h.tokensKey(key)); err != nil {
			return nil, errors.InternalError("failed to delete expired tokens", err)
		}
		return nil, nil
	}

	// Concurrent callers hitting the expiry window share one refresh
	// request instead of racing the token endpoint with duplicates.
	refreshed, err, _ := h.refresh.Do(key, func() (interface{}, error) {
		return h.refreshTokens(ctx, key, tokens.RefreshToken)
	})
	if err != nil {
		h.logger.Warn("Token refresh failed, clearing stored tokens",
			logging.Field{Key: "namespace", Value: h.namespace},
			logging.Field{Key: "key", Value: key},
			logging.Field{Key: "error", Value: err.Error()},
		)
		_ = h.store.Delete(ctx, h.tokensKey(key))
		return nil, nil
	}

	return refreshed.(*Tokens), nil
}

// StoreTokens persists tokens under key. ttl, when positive, is a
// storage-level expiry independent of the logical ExpiresAt field.
func (h *Handler) StoreTokens(ctx context.Context, key string, tokens *Tokens, ttl time.Duration) error {
	if tokens == nil {
		return errors.ValidationError("tokens are required")
	}

	data, err := json.Marshal(tokens)
	if err != nil {
		return errors.InternalError("failed to encode tokens", err)
	}

	if err := h.store.Set(ctx, h.tokensKey(key), data, ttl); err != nil {
		return errors.InternalError("failed to persist tokens", err)
	}
	return nil
}

// DeleteTokens removes stored tokens unconditionally
func (h *Handler) DeleteTokens(ctx context.Context, key string) error {
	if err := h.store.Delete(ctx, h.tokensKey(key)); err != nil {
		return errors.InternalError("failed to delete tokens", err)
	}
	return nil
}

// HasValidTokens reports whether GetTokens would return a live token set.
// Like GetTokens, it may trigger a refresh as a side effect.
func (h *Handler) HasValidTokens(ctx context.Context, key string) (bool, error) {
	tokens, err := h.GetTokens(ctx, key)
	if err != nil {
		return false, err
	}
	return tokens != nil, nil
}

// refreshTokens exchanges a refresh token and overwrites the stored set on
// success. When the endpoint omits a new refresh token, the previous one is
// carried forward so later expiries can still refresh.
func (h *Handler) refreshTokens(ctx context.Context, key, refreshToken string) (*Tokens, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	tokens, err := h.requestTokens(ctx, form)
	if err != nil {
		return nil, err
	}

	if tokens.RefreshToken == "" {
		tokens.RefreshToken = refreshToken
	}

	if err := h.StoreTokens(ctx, key, tokens, 0); err != nil {
		return nil, err
	}

	h.logger.Debug("Tokens refreshed",
		logging.Field{Key: "namespace", Value: h.namespace},
		logging.Field{Key: "key", Value: key},
		logging.Field{Key: "expires_at", Value: tokens.ExpiresAt},
	)

	return tokens, nil
}

// requestTokens posts a grant to the token endpoint and normalizes the
// response. ExpiresAt is derived here: now plus expires_in at the moment of
// normalization.
func (h *Handler) requestTokens(ctx context.Context, form url.Values) (*Tokens, error) {
	configure := func(req *http.Request) {
		if h.config.AuthMethod == AuthMethodHeader {
			req.SetBasicAuth(h.config.ClientID, h.config.ClientSecret)
		}
	}
	if h.config.AuthMethod != AuthMethodHeader {
		form.Set("client_id", h.config.ClientID)
		form.Set("client_secret", h.config.ClientSecret)
	}

	resp, err := h.poster.PostForm(ctx, h.config.TokenURL, form, configure)
	if err != nil {
		return nil, err
	}

	if !resp.OK() {
		return nil, errors.OAuthError(fmt.Sprintf("Token endpoint returned %d: %s", resp.StatusCode, string(resp.Body)))
	}

	var tr tokenResponse
	if err := json.Unmarshal(resp.Body, &tr); err != nil {
		return nil, errors.OAuthError("Token endpoint returned malformed JSON")
	}
	if tr.AccessToken == "" {
		return nil, errors.OAuthError("Token endpoint returned no access token")
	}

	tokens := &Tokens{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresIn:    tr.ExpiresIn,
		TokenType:    tr.TokenType,
		Scope:        tr.Scope,
	}
	if tr.ExpiresIn > 0 {
		tokens.ExpiresAt = h.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}

	return tokens, nil
}
