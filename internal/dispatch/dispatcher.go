// Package dispatch routes an inbound webhook request to the first registered
// provider whose detector matches. Registration order is the tie-break: when
// two providers would both match a request, the earlier registration wins.
package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"triggerskit/internal/common/errors"
	"triggerskit/internal/common/logging"
	"triggerskit/internal/providers"
)

// Result is the success envelope for a dispatched webhook
type Result struct {
	Provider string      `json:"provider"`
	Payload  interface{} `json:"payload"`
}

// Dispatcher holds the ordered provider registry. It keeps no per-request
// state; one instance serves all requests.
type Dispatcher struct {
	providers []providers.Provider
	names     map[string]struct{}
	logger    logging.Logger
}

// New creates a dispatcher with the given providers registered in order
func New(logger logging.Logger, provs ...providers.Provider) (*Dispatcher, error) {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	d := &Dispatcher{
		names:  make(map[string]struct{}),
		logger: logger,
	}
	for _, p := range provs {
		if err := d.Register(p); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Register appends a provider to the detection order. Names must be unique.
func (d *Dispatcher) Register(p providers.Provider) error {
	if p == nil {
		return errors.ConfigError("provider is required")
	}
	if _, exists := d.names[p.Name()]; exists {
		return errors.ConfigError(fmt.Sprintf("provider %q is already registered", p.Name()))
	}

	d.names[p.Name()] = struct{}{}
	d.providers = append(d.providers, p)
	return nil
}

// Providers returns the registered providers in detection order
func (d *Dispatcher) Providers() []providers.Provider {
	out := make([]providers.Provider, len(d.providers))
	copy(out, d.providers)
	return out
}

// Dispatch identifies the provider for r and hands the request to its
// webhook handler. The request body is consumed once here and restored, so
// the handler reads the original bytes.
func (d *Dispatcher) Dispatch(r *http.Request) (*Result, error) {
	var body []byte
	if r.Body != nil {
		read, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, errors.InternalError("failed to read request body", err)
		}
		body = read
	}

	// Parse failure is not an error: detectors key off headers first and
	// must tolerate a nil body.
	var parsed interface{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &parsed); err != nil {
			parsed = nil
		}
	}

	ctx := &providers.DetectionContext{
		Headers: r.Header,
		Body:    parsed,
		URL:     r.URL,
		Request: r,
	}

	for _, p := range d.providers {
		matched, err := p.Detect(ctx)
		if err != nil {
			d.logger.Warn("Provider detector failed",
				logging.Field{Key: "provider", Value: p.Name()},
				logging.Field{Key: "error", Value: err.Error()},
			)
			continue
		}
		if !matched {
			continue
		}

		r.Body = io.NopCloser(bytes.NewReader(body))

		payload, err := d.handle(p, r)
		if err != nil {
			return nil, err
		}

		d.logger.Debug("Webhook dispatched",
			logging.Field{Key: "provider", Value: p.Name()},
		)
		return &Result{Provider: p.Name(), Payload: payload}, nil
	}

	return nil, errors.NoProviderMatchError()
}

// handle runs the provider's webhook handler, converting a panic into a
// structured failure so nothing escapes the dispatcher boundary
func (d *Dispatcher) handle(p providers.Provider, r *http.Request) (payload interface{}, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("Provider handler panicked", nil,
				logging.Field{Key: "provider", Value: p.Name()},
				logging.Field{Key: "panic", Value: fmt.Sprint(rec)},
			)
			payload = nil
			err = errors.InternalError(fmt.Sprintf("provider %s handler panicked: %v", p.Name(), rec), nil)
		}
	}()

	return p.HandleWebhook(r)
}
