package slack

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triggerskit/internal/common/errors"
	"triggerskit/internal/providers"
	"triggerskit/internal/storage"
)

func newTestProvider(t *testing.T, config Config) *Provider {
	t.Helper()
	p, err := New(config, storage.NewMemoryStore(0), nil)
	require.NoError(t, err)
	return p
}

func sign(secret, timestamp, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "v0:%s:%s", timestamp, body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

func signedRequest(secret, body string, sentAt time.Time) *http.Request {
	ts := strconv.FormatInt(sentAt.Unix(), 10)
	r := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(body))
	r.Header.Set("X-Slack-Request-Timestamp", ts)
	r.Header.Set("X-Slack-Signature", sign(secret, ts, body))
	return r
}

const eventBody = `{
	"type": "event_callback",
	"token": "tok",
	"team_id": "T123",
	"event": {"type": "app_mention", "user": "U1", "channel": "C1", "text": "hi"},
	"event_id": "Ev1"
}`

func TestDetect(t *testing.T) {
	p := newTestProvider(t, Config{})

	t.Run("signature header matches", func(t *testing.T) {
		ctx := &providers.DetectionContext{Headers: http.Header{"X-Slack-Signature": {"v0=abc"}}}
		matched, err := p.Detect(ctx)
		require.NoError(t, err)
		assert.True(t, matched)
	})

	t.Run("Slackbot user agent matches", func(t *testing.T) {
		ctx := &providers.DetectionContext{Headers: http.Header{"User-Agent": {"Slackbot 1.0 (+https://api.slack.com/robots)"}}}
		matched, err := p.Detect(ctx)
		require.NoError(t, err)
		assert.True(t, matched)
	})

	t.Run("unrelated request does not match", func(t *testing.T) {
		ctx := &providers.DetectionContext{Headers: http.Header{"User-Agent": {"curl/8.0"}}}
		matched, err := p.Detect(ctx)
		require.NoError(t, err)
		assert.False(t, matched)
	})
}

func TestHandleWebhook_URLVerification(t *testing.T) {
	p := newTestProvider(t, Config{})

	body := `{"type": "url_verification", "token": "t", "challenge": "abc123"}`
	r := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(body))

	payload, err := p.HandleWebhook(r)
	require.NoError(t, err)

	challenge, ok := payload.(*URLVerification)
	require.True(t, ok)
	assert.Equal(t, "abc123", challenge.Challenge)
}

func TestHandleWebhook_EventCallback(t *testing.T) {
	p := newTestProvider(t, Config{})

	var emitted []interface{}
	p.Events().On("app_mention", func(payload interface{}) {
		emitted = append(emitted, payload)
	})

	r := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(eventBody))
	payload, err := p.HandleWebhook(r)
	require.NoError(t, err)

	envelope, ok := payload.(*EventCallback)
	require.True(t, ok)
	assert.Equal(t, "T123", envelope.TeamID)
	assert.Equal(t, "app_mention", envelope.Event.Type)

	require.Len(t, emitted, 1)
	assert.Same(t, payload, emitted[0])
}

func TestHandleWebhook_Signature(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	newSigned := func(t *testing.T) *Provider {
		p := newTestProvider(t, Config{SigningSecret: "s3cret"})
		p.now = func() time.Time { return now }
		return p
	}

	t.Run("valid signature passes", func(t *testing.T) {
		p := newSigned(t)
		_, err := p.HandleWebhook(signedRequest("s3cret", eventBody, now.Add(-10*time.Second)))
		require.NoError(t, err)
	})

	t.Run("wrong secret is rejected", func(t *testing.T) {
		p := newSigned(t)
		_, err := p.HandleWebhook(signedRequest("wrong", eventBody, now))
		require.Error(t, err)
		assert.Equal(t, errors.CodeValidation, errors.CodeOf(err))
		assert.Contains(t, err.Error(), "Invalid Slack signature")
	})

	t.Run("timestamp just inside the window passes", func(t *testing.T) {
		p := newSigned(t)
		_, err := p.HandleWebhook(signedRequest("s3cret", eventBody, now.Add(-299*time.Second)))
		require.NoError(t, err)
	})

	t.Run("replayed timestamp is rejected despite matching HMAC", func(t *testing.T) {
		p := newSigned(t)
		_, err := p.HandleWebhook(signedRequest("s3cret", eventBody, now.Add(-301*time.Second)))
		require.Error(t, err)
		assert.Equal(t, errors.CodeValidation, errors.CodeOf(err))
	})

	t.Run("non-numeric timestamp is rejected", func(t *testing.T) {
		p := newSigned(t)
		r := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(eventBody))
		r.Header.Set("X-Slack-Request-Timestamp", "yesterday")
		r.Header.Set("X-Slack-Signature", "v0=abc")
		_, err := p.HandleWebhook(r)
		assert.Equal(t, errors.CodeValidation, errors.CodeOf(err))
	})

	t.Run("verification skipped when headers absent", func(t *testing.T) {
		p := newSigned(t)
		r := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(eventBody))
		_, err := p.HandleWebhook(r)
		require.NoError(t, err)
	})
}

func TestHandleWebhook_ValidationFailure(t *testing.T) {
	p := newTestProvider(t, Config{})

	t.Run("malformed JSON", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString("not json"))
		_, err := p.HandleWebhook(r)
		assert.Equal(t, errors.CodeValidation, errors.CodeOf(err))
	})

	t.Run("envelope missing inner event", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(`{"type": "event_callback"}`))
		_, err := p.HandleWebhook(r)
		assert.Equal(t, errors.CodeValidation, errors.CodeOf(err))
	})
}

func TestOAuth(t *testing.T) {
	t.Run("nil without credentials", func(t *testing.T) {
		p := newTestProvider(t, Config{})
		assert.Nil(t, p.OAuth())
	})

	t.Run("scopes joined with comma", func(t *testing.T) {
		p := newTestProvider(t, Config{
			ClientID:     "id",
			ClientSecret: "secret",
			RedirectURI:  "https://app.example/callback",
			Scopes:       []string{"chat:write", "channels:read"},
		})
		require.NotNil(t, p.OAuth())

		auth, err := p.OAuth().AuthorizationURL(context.Background(), nil)
		require.NoError(t, err)
		assert.Contains(t, auth.URL, "https://slack.com/oauth/v2/authorize?")
		assert.Contains(t, auth.URL, "scope=chat%3Awrite%2Cchannels%3Aread")
	})
}
