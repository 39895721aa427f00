package telegram

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triggerskit/internal/common/errors"
	"triggerskit/internal/providers"
)

const updateBody = `{
	"update_id": 123456,
	"message": {
		"message_id": 99,
		"text": "hello",
		"date": 1748779200,
		"chat": {"id": 555, "type": "private"},
		"from": {"id": 777, "username": "alice"}
	}
}`

func webhookRequest(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(body))
}

func TestDetect(t *testing.T) {
	p := New(Config{}, nil)

	t.Run("secret token header matches", func(t *testing.T) {
		ctx := &providers.DetectionContext{Headers: http.Header{"X-Telegram-Bot-Api-Secret-Token": {"tok"}}}
		matched, err := p.Detect(ctx)
		require.NoError(t, err)
		assert.True(t, matched)
	})

	t.Run("body with update_id matches", func(t *testing.T) {
		ctx := &providers.DetectionContext{
			Headers: http.Header{},
			Body:    map[string]interface{}{"update_id": float64(123)},
		}
		matched, err := p.Detect(ctx)
		require.NoError(t, err)
		assert.True(t, matched)
	})

	t.Run("nil body does not match", func(t *testing.T) {
		ctx := &providers.DetectionContext{Headers: http.Header{}}
		matched, err := p.Detect(ctx)
		require.NoError(t, err)
		assert.False(t, matched)
	})

	t.Run("non-object body does not match", func(t *testing.T) {
		ctx := &providers.DetectionContext{Headers: http.Header{}, Body: []interface{}{"x"}}
		matched, err := p.Detect(ctx)
		require.NoError(t, err)
		assert.False(t, matched)
	})
}

func TestHandleWebhook(t *testing.T) {
	t.Run("valid update emits one message event", func(t *testing.T) {
		p := New(Config{}, nil)

		var emitted []interface{}
		p.Events().On("message", func(payload interface{}) {
			emitted = append(emitted, payload)
		})

		payload, err := p.HandleWebhook(webhookRequest(updateBody))
		require.NoError(t, err)

		update, ok := payload.(*Update)
		require.True(t, ok)
		assert.Equal(t, int64(123456), update.UpdateID)
		require.NotNil(t, update.Message)
		assert.Equal(t, "hello", update.Message.Text)

		require.Len(t, emitted, 1)
		assert.Same(t, update.Message, emitted[0])
	})

	t.Run("update without message emits nothing", func(t *testing.T) {
		p := New(Config{}, nil)

		var count int
		p.Events().On("message", func(payload interface{}) { count++ })

		payload, err := p.HandleWebhook(webhookRequest(`{"update_id": 1}`))
		require.NoError(t, err)
		assert.NotNil(t, payload)
		assert.Equal(t, 0, count)
	})

	t.Run("missing update_id fails validation", func(t *testing.T) {
		p := New(Config{}, nil)
		_, err := p.HandleWebhook(webhookRequest(`{"message": {"message_id": 1}}`))
		assert.Equal(t, errors.CodeValidation, errors.CodeOf(err))
	})

	t.Run("malformed JSON fails validation", func(t *testing.T) {
		p := New(Config{}, nil)
		_, err := p.HandleWebhook(webhookRequest("not json"))
		assert.Equal(t, errors.CodeValidation, errors.CodeOf(err))
	})
}

func TestHandleWebhook_SecretToken(t *testing.T) {
	p := New(Config{SecretToken: "tok"}, nil)

	t.Run("matching token passes", func(t *testing.T) {
		r := webhookRequest(updateBody)
		r.Header.Set("X-Telegram-Bot-Api-Secret-Token", "tok")
		_, err := p.HandleWebhook(r)
		require.NoError(t, err)
	})

	t.Run("missing token is rejected", func(t *testing.T) {
		_, err := p.HandleWebhook(webhookRequest(updateBody))
		assert.Equal(t, errors.CodeValidation, errors.CodeOf(err))
	})

	t.Run("wrong token is rejected", func(t *testing.T) {
		r := webhookRequest(updateBody)
		r.Header.Set("X-Telegram-Bot-Api-Secret-Token", "other")
		_, err := p.HandleWebhook(r)
		assert.Equal(t, errors.CodeValidation, errors.CodeOf(err))
	})
}
