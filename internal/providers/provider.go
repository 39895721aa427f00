// Package providers defines the contract every webhook provider implements
// and the detection context the dispatcher hands to each detector.
package providers

import (
	"net/http"
	"net/url"

	"triggerskit/internal/events"
	"triggerskit/internal/oauth"
)

// DetectionContext is what a provider's Detect sees for an inbound request.
// Body is the best-effort JSON-parsed request body; it is nil when the body
// is empty or not valid JSON. Detectors must tolerate a nil Body.
type DetectionContext struct {
	Headers http.Header
	Body    interface{}
	URL     *url.URL
	Request *http.Request
}

// BodyObject returns the parsed body as a JSON object, or nil when the body
// is absent or not an object
func (c *DetectionContext) BodyObject() map[string]interface{} {
	obj, _ := c.Body.(map[string]interface{})
	return obj
}

// Provider is a webhook source the dispatcher can route to. Detect must be
// cheap and side-effect free; HandleWebhook owns reading the request body.
type Provider interface {
	// Name is the unique registry identifier, e.g. "github"
	Name() string

	// Detect reports whether the inbound request belongs to this provider
	Detect(ctx *DetectionContext) (bool, error)

	// HandleWebhook verifies and parses the request, emits provider events,
	// and returns the typed payload
	HandleWebhook(r *http.Request) (interface{}, error)

	// Events is the provider's emitter; subscribers attach here
	Events() *events.Emitter
}

// OAuthProvider is a Provider that also carries an OAuth handler. Glue
// layers type-switch on this interface to decide whether auth routes exist
// for a provider.
type OAuthProvider interface {
	Provider

	// OAuth returns the provider's token lifecycle handler
	OAuth() *oauth.Handler
}
