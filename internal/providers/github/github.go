// Package github implements the GitHub webhook provider: event detection by
// delivery headers, optional HMAC signature verification, typed payloads for
// the common event kinds, and OAuth against github.com.
package github

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"triggerskit/internal/common/errors"
	"triggerskit/internal/common/logging"
	"triggerskit/internal/events"
	"triggerskit/internal/oauth"
	"triggerskit/internal/providers"
	"triggerskit/internal/storage"
)

const (
	// Name is the registry identifier for this provider
	Name = "github"

	eventHeader     = "X-Github-Event"
	signatureHeader = "X-Hub-Signature-256"

	authorizationURL = "https://github.com/login/oauth/authorize"
	tokenURL         = "https://github.com/login/oauth/access_token"
)

// Config configures the GitHub provider. OAuth credentials are optional;
// without them the provider handles webhooks but carries no OAuth handler.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	// WebhookSecret, when set, enables signature verification for requests
	// carrying X-Hub-Signature-256
	WebhookSecret string
}

// Repository is the repository summary GitHub attaches to every event
type Repository struct {
	ID       int64  `json:"id" validate:"required"`
	Name     string `json:"name" validate:"required"`
	FullName string `json:"full_name"`
	Private  bool   `json:"private"`
}

// PushEvent is the payload for the push event
type PushEvent struct {
	Ref        string     `json:"ref" validate:"required"`
	Before     string     `json:"before"`
	After      string     `json:"after"`
	Repository Repository `json:"repository" validate:"required"`
	Commits    []Commit   `json:"commits"`
}

// Commit is one commit in a push event
type Commit struct {
	ID      string `json:"id" validate:"required"`
	Message string `json:"message"`
	URL     string `json:"url"`
}

// IssuesEvent is the payload for the issues event
type IssuesEvent struct {
	Action     string     `json:"action" validate:"required"`
	Issue      Issue      `json:"issue" validate:"required"`
	Repository Repository `json:"repository" validate:"required"`
}

// Issue is the issue summary in an issues event
type Issue struct {
	Number int    `json:"number" validate:"required"`
	Title  string `json:"title"`
	State  string `json:"state"`
	Body   string `json:"body"`
}

// PullRequestEvent is the payload for the pull_request event
type PullRequestEvent struct {
	Action      string      `json:"action" validate:"required"`
	Number      int         `json:"number" validate:"required"`
	PullRequest PullRequest `json:"pull_request" validate:"required"`
	Repository  Repository  `json:"repository" validate:"required"`
}

// PullRequest is the pull request summary in a pull_request event
type PullRequest struct {
	Title string `json:"title"`
	State string `json:"state"`
	Head  Ref    `json:"head"`
	Base  Ref    `json:"base"`
}

// Ref names one side of a pull request
type Ref struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

// GenericEvent carries events without a dedicated payload type
type GenericEvent struct {
	Event   string                 `json:"event"`
	Payload map[string]interface{} `json:"payload"`
}

// Provider is the GitHub webhook provider
type Provider struct {
	config   Config
	emitter  *events.Emitter
	oauth    *oauth.Handler
	validate *validator.Validate
	logger   logging.Logger
}

// New creates the GitHub provider. store is only required when OAuth
// credentials are configured.
func New(config Config, store storage.Store, logger logging.Logger) (*Provider, error) {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	p := &Provider{
		config:   config,
		emitter:  events.New(logger),
		validate: validator.New(),
		logger:   logger,
	}

	if config.ClientID != "" {
		handler, err := oauth.NewHandler(Name, oauth.Config{
			AuthorizationURL: authorizationURL,
			TokenURL:         tokenURL,
			ClientID:         config.ClientID,
			ClientSecret:     config.ClientSecret,
			RedirectURI:      config.RedirectURI,
			Scopes:           config.Scopes,
			AuthMethod:       oauth.AuthMethodBody,
		}, store, oauth.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		p.oauth = handler
	}

	return p, nil
}

// Name implements providers.Provider
func (p *Provider) Name() string {
	return Name
}

// Events implements providers.Provider
func (p *Provider) Events() *events.Emitter {
	return p.emitter
}

// OAuth implements providers.OAuthProvider. Nil when no OAuth credentials
// were configured.
func (p *Provider) OAuth() *oauth.Handler {
	return p.oauth
}

// Detect matches requests carrying either GitHub delivery header
func (p *Provider) Detect(ctx *providers.DetectionContext) (bool, error) {
	if ctx.Headers.Get(eventHeader) != "" {
		return true, nil
	}
	return ctx.Headers.Get(signatureHeader) != "", nil
}

// HandleWebhook verifies the delivery signature when configured, validates
// the payload for the event named by the X-Github-Event header, emits the
// event, and returns the typed payload.
func (p *Provider) HandleWebhook(r *http.Request) (interface{}, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, errors.InternalError("failed to read webhook body", err)
	}

	if p.config.WebhookSecret != "" && r.Header.Get(signatureHeader) != "" {
		if !verifySignature(p.config.WebhookSecret, body, r.Header.Get(signatureHeader)) {
			return nil, errors.ValidationError("Invalid GitHub signature")
		}
	}

	event := r.Header.Get(eventHeader)
	payload, err := p.parseEvent(event, body)
	if err != nil {
		return nil, err
	}

	p.emitter.Emit(event, payload)
	return payload, nil
}

func (p *Provider) parseEvent(event string, body []byte) (interface{}, error) {
	switch event {
	case "push":
		var payload PushEvent
		return p.decode(body, &payload)
	case "issues":
		var payload IssuesEvent
		return p.decode(body, &payload)
	case "pull_request":
		var payload PullRequestEvent
		return p.decode(body, &payload)
	default:
		var raw map[string]interface{}
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, errors.ValidationError("GitHub webhook body is not valid JSON")
		}
		return &GenericEvent{Event: event, Payload: raw}, nil
	}
}

func (p *Provider) decode(body []byte, payload interface{}) (interface{}, error) {
	if err := json.Unmarshal(body, payload); err != nil {
		return nil, errors.ValidationError("GitHub webhook body is not valid JSON")
	}
	if err := p.validate.Struct(payload); err != nil {
		return nil, errors.ValidationError("GitHub webhook payload failed validation: " + err.Error())
	}
	return payload, nil
}

// verifySignature checks the sha256= HMAC over the raw body
func verifySignature(secret string, body []byte, header string) bool {
	signature, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
