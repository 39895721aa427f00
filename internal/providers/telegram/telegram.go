// Package telegram implements the Telegram bot webhook provider. Telegram
// uses bot tokens rather than OAuth, so this provider never carries an OAuth
// handler; webhook authenticity rests on the optional secret token Telegram
// echoes in a request header.
package telegram

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"triggerskit/internal/common/errors"
	"triggerskit/internal/common/logging"
	"triggerskit/internal/events"
	"triggerskit/internal/providers"
)

const (
	// Name is the registry identifier for this provider
	Name = "telegram"

	secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"
)

// Config configures the Telegram provider
type Config struct {
	// BotToken authenticates outbound Bot API calls; unused for webhooks
	BotToken string
	// SecretToken, when set, must match the secret token header on every
	// webhook request
	SecretToken string
}

// Update is Telegram's webhook payload
type Update struct {
	UpdateID int64    `json:"update_id" validate:"required"`
	Message  *Message `json:"message,omitempty"`
}

// Message is the message sub-object of an Update
type Message struct {
	MessageID int64  `json:"message_id" validate:"required"`
	Text      string `json:"text"`
	Date      int64  `json:"date"`
	Chat      Chat   `json:"chat"`
	From      *User  `json:"from,omitempty"`
}

// Chat identifies the conversation a message belongs to
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// User is the sender of a message
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

// Provider is the Telegram webhook provider
type Provider struct {
	config   Config
	emitter  *events.Emitter
	validate *validator.Validate
	logger   logging.Logger
}

// New creates the Telegram provider
func New(config Config, logger logging.Logger) *Provider {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	return &Provider{
		config:   config,
		emitter:  events.New(logger),
		validate: validator.New(),
		logger:   logger,
	}
}

// Name implements providers.Provider
func (p *Provider) Name() string {
	return Name
}

// Events implements providers.Provider
func (p *Provider) Events() *events.Emitter {
	return p.emitter
}

// Detect matches requests carrying the secret token header or a JSON body
// with an update_id field
func (p *Provider) Detect(ctx *providers.DetectionContext) (bool, error) {
	if ctx.Headers.Get(secretTokenHeader) != "" {
		return true, nil
	}

	obj := ctx.BodyObject()
	if obj == nil {
		return false, nil
	}
	_, ok := obj["update_id"]
	return ok, nil
}

// HandleWebhook enforces the secret token when configured, validates the
// Update, and emits a message event when the update carries a message
func (p *Provider) HandleWebhook(r *http.Request) (interface{}, error) {
	if p.config.SecretToken != "" {
		header := r.Header.Get(secretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(header), []byte(p.config.SecretToken)) != 1 {
			return nil, errors.ValidationError("Invalid Telegram secret token")
		}
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, errors.InternalError("failed to read webhook body", err)
	}

	var update Update
	if err := json.Unmarshal(body, &update); err != nil {
		return nil, errors.ValidationError("Telegram webhook body is not valid JSON")
	}
	if err := p.validate.Struct(&update); err != nil {
		return nil, errors.ValidationError("Telegram update failed validation: " + err.Error())
	}

	if update.Message != nil {
		p.emitter.Emit("message", update.Message)
	}

	return &update, nil
}
