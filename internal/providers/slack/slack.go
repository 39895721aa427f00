// Package slack implements the Slack webhook provider: Events API requests
// with signing-secret verification, the url_verification handshake, and
// OAuth v2 against slack.com.
package slack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

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
	Name = "slack"

	signatureHeader = "X-Slack-Signature"
	timestampHeader = "X-Slack-Request-Timestamp"

	// ReplayWindow is how far a request timestamp may lag current time
	ReplayWindow = 300 * time.Second

	authorizationURL = "https://slack.com/oauth/v2/authorize"
	tokenURL         = "https://slack.com/api/oauth.v2.access"
)

// Config configures the Slack provider
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	// SigningSecret, when set, enables request signature verification
	SigningSecret string
}

// Event is the inner event of an event_callback envelope
type Event struct {
	Type    string `json:"type" validate:"required"`
	User    string `json:"user"`
	Channel string `json:"channel"`
	Text    string `json:"text"`
	TS      string `json:"ts"`
}

// EventCallback is the Events API envelope
type EventCallback struct {
	Type      string `json:"type" validate:"required"`
	Token     string `json:"token"`
	TeamID    string `json:"team_id"`
	Event     Event  `json:"event" validate:"required"`
	EventID   string `json:"event_id"`
	EventTime int64  `json:"event_time"`
}

// URLVerification is Slack's endpoint ownership handshake; the glue layer
// must echo Challenge back in the HTTP response
type URLVerification struct {
	Type      string `json:"type" validate:"required"`
	Token     string `json:"token"`
	Challenge string `json:"challenge" validate:"required"`
}

// Provider is the Slack webhook provider
type Provider struct {
	config   Config
	emitter  *events.Emitter
	oauth    *oauth.Handler
	validate *validator.Validate
	logger   logging.Logger
	now      func() time.Time
}

// New creates the Slack provider. store is only required when OAuth
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
		now:      time.Now,
	}

	if config.ClientID != "" {
		// Slack's token endpoint only accepts credentials in the form
		// body, not Basic auth.
		handler, err := oauth.NewHandler(Name, oauth.Config{
			AuthorizationURL: authorizationURL,
			TokenURL:         tokenURL,
			ClientID:         config.ClientID,
			ClientSecret:     config.ClientSecret,
			RedirectURI:      config.RedirectURI,
			Scopes:           config.Scopes,
			AuthMethod:       oauth.AuthMethodBody,
			ScopeSeparator:   ",",
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

// Detect matches requests carrying the Slack signature header or a
// Slackbot user agent
func (p *Provider) Detect(ctx *providers.DetectionContext) (bool, error) {
	if ctx.Headers.Get(signatureHeader) != "" {
		return true, nil
	}
	return strings.Contains(ctx.Headers.Get("User-Agent"), "Slackbot"), nil
}

// HandleWebhook verifies the request signature when configured, handles the
// url_verification handshake, and otherwise validates the event envelope and
// emits the inner event type.
func (p *Provider) HandleWebhook(r *http.Request) (interface{}, error) {
	// Verification needs the exact bytes, so the body is read raw before
	// any JSON parsing.
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, errors.InternalError("failed to read webhook body", err)
	}

	if p.config.SigningSecret != "" &&
		r.Header.Get(timestampHeader) != "" &&
		r.Header.Get(signatureHeader) != "" {
		if err := p.verifySignature(body, r.Header.Get(timestampHeader), r.Header.Get(signatureHeader)); err != nil {
			return nil, err
		}
	}

	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, errors.ValidationError("Slack webhook body is not valid JSON")
	}

	if probe.Type == "url_verification" {
		var challenge URLVerification
		if err := json.Unmarshal(body, &challenge); err != nil {
			return nil, errors.ValidationError("Slack webhook body is not valid JSON")
		}
		if err := p.validate.Struct(&challenge); err != nil {
			return nil, errors.ValidationError("Slack url_verification payload failed validation: " + err.Error())
		}
		return &challenge, nil
	}

	var envelope EventCallback
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, errors.ValidationError("Slack webhook body is not valid JSON")
	}
	if err := p.validate.Struct(&envelope); err != nil {
		return nil, errors.ValidationError("Slack event payload failed validation: " + err.Error())
	}

	p.emitter.Emit(envelope.Event.Type, &envelope)
	return &envelope, nil
}

// verifySignature checks v0={hex(hmac_sha256("v0:{ts}:{body}"))} and rejects
// timestamps older than the replay window
func (p *Provider) verifySignature(body []byte, timestamp, signature string) error {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return errors.ValidationError("Invalid Slack signature")
	}

	age := p.now().Sub(time.Unix(ts, 0))
	if age > ReplayWindow || age < -ReplayWindow {
		return errors.ValidationError("Invalid Slack signature")
	}

	mac := hmac.New(sha256.New, []byte(p.config.SigningSecret))
	fmt.Fprintf(mac, "v0:%s:%s", timestamp, body)
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return errors.ValidationError("Invalid Slack signature")
	}
	return nil
}
