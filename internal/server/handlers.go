package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"triggerskit/internal/common/errors"
	"triggerskit/internal/common/logging"
	"triggerskit/internal/dispatch"
	"triggerskit/internal/oauth"
	"triggerskit/internal/providers"
	"triggerskit/internal/providers/slack"
)

// tokenKey is the storage key the callback route stores tokens under. The
// server is a single-tenant integration surface; SDK consumers doing per-user
// auth call the OAuth handler directly with their own keys.
const tokenKey = "default"

// Handlers holds the route implementations
type Handlers struct {
	dispatcher *dispatch.Dispatcher
	logger     logging.Logger
}

// NewHandlers creates the route implementations over a dispatcher
func NewHandlers(dispatcher *dispatch.Dispatcher, logger logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Handlers{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Router builds the mux router with all routes registered
func (h *Handlers) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/webhook", h.HandleWebhook).Methods(http.MethodPost)
	r.HandleFunc("/auth/{provider}", h.HandleAuthorize).Methods(http.MethodGet)
	r.HandleFunc("/auth/{provider}/callback", h.HandleCallback).Methods(http.MethodGet)
	r.HandleFunc("/health", h.HandleHealth).Methods(http.MethodGet)

	return r
}

// HandleWebhook routes an inbound webhook through the dispatcher. Slack's
// url_verification handshake is answered here by echoing the challenge.
func (h *Handlers) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	result, err := h.dispatcher.Dispatch(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if challenge, ok := result.Payload.(*slack.URLVerification); ok {
		h.writeJSON(w, http.StatusOK, map[string]string{"challenge": challenge.Challenge})
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// HandleAuthorize redirects the browser to the provider's authorization URL
func (h *Handlers) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	handler, ok := h.oauthFor(mux.Vars(r)["provider"])
	if !ok {
		h.writeError(w, errors.NotFoundError("OAuth provider"))
		return
	}

	auth, err := handler.AuthorizationURL(r.Context(), nil)
	if err != nil {
		h.writeError(w, err)
		return
	}

	http.Redirect(w, r, auth.URL, http.StatusFound)
}

// HandleCallback completes the authorization-code flow: exchange the code,
// store the tokens, report success
func (h *Handlers) HandleCallback(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["provider"]
	handler, ok := h.oauthFor(name)
	if !ok {
		h.writeError(w, errors.NotFoundError("OAuth provider"))
		return
	}

	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		h.writeError(w, errors.ValidationError("code and state query parameters are required"))
		return
	}

	tokens, err := handler.ExchangeCode(r.Context(), code, state)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := handler.StoreTokens(r.Context(), tokenKey, tokens, 0); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"provider":      name,
		"authenticated": true,
	})
}

// HandleHealth reports liveness
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// oauthFor looks up the named provider's OAuth handler; ok is false when the
// provider is unknown or carries no OAuth configuration
func (h *Handlers) oauthFor(name string) (*oauth.Handler, bool) {
	for _, p := range h.dispatcher.Providers() {
		if p.Name() != name {
			continue
		}
		op, ok := p.(providers.OAuthProvider)
		if !ok || op.OAuth() == nil {
			return nil, false
		}
		return op.OAuth(), true
	}
	return nil, false
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", err)
	}
}

// writeError maps the error taxonomy to HTTP statuses
func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	appErr := errors.Wrap(err)

	status := http.StatusInternalServerError
	switch appErr.Code {
	case errors.CodeNoProviderMatch:
		status = http.StatusNotFound
	case errors.CodeValidation, errors.CodeInvalidState:
		status = http.StatusBadRequest
	case errors.CodeTimeout:
		status = http.StatusGatewayTimeout
	case errors.CodeNetwork:
		status = http.StatusBadGateway
	}

	if appErr.Type == errors.ErrTypeNotFound {
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", appErr)
	}

	h.writeJSON(w, status, map[string]interface{}{
		"error": appErr.Message,
		"code":  appErr.Code,
	})
}
