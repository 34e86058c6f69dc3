package notifications

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediai-backend/internal/cache"
	"mediai-backend/pkg/models"
)

type recordedSend struct {
	to   string
	from string
	body string
}

func newTwilioStub(t *testing.T) (*httptest.Server, *[]recordedSend) {
	var mu sync.Mutex
	var sends []recordedSend

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "/Accounts/AC123/Messages.json", r.URL.Path)

		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC123", user)

		mu.Lock()
		sends = append(sends, recordedSend{
			to:   r.Form.Get("To"),
			from: r.Form.Get("From"),
			body: r.Form.Get("Body"),
		})
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid": "SM123", "status": "queued"}`))
	}))
	t.Cleanup(server.Close)
	return server, &sends
}

func newTestSender(t *testing.T) (*TwilioSender, *[]recordedSend) {
	server, sends := newTwilioStub(t)
	sender := NewTwilioSender("AC123", "token", "+15550001111", "+15550002222", cache.NewInMemoryCache()).
		WithBaseURL(server.URL)
	return sender, sends
}

func TestSendSMS(t *testing.T) {
	sender, sends := newTestSender(t)

	sid, err := sender.Send(context.Background(), "+243900000001", "votre analyse est terminée", models.ChannelSMS)
	require.NoError(t, err)
	assert.Equal(t, "SM123", sid)

	require.Len(t, *sends, 1)
	assert.Equal(t, "+243900000001", (*sends)[0].to)
	assert.Equal(t, "+15550001111", (*sends)[0].from)
	assert.Equal(t, "votre analyse est terminée", (*sends)[0].body)
}

func TestSendWhatsAppPrefixesNumbers(t *testing.T) {
	sender, sends := newTestSender(t)

	_, err := sender.Send(context.Background(), "+243900000001", "bonjour", models.ChannelWhatsApp)
	require.NoError(t, err)

	require.Len(t, *sends, 1)
	assert.Equal(t, "whatsapp:+243900000001", (*sends)[0].to)
	assert.Equal(t, "whatsapp:+15550002222", (*sends)[0].from)
}

func TestSendIsIdempotentPerDay(t *testing.T) {
	sender, sends := newTestSender(t)

	first, err := sender.Send(context.Background(), "+243900000001", "même message", models.ChannelSMS)
	require.NoError(t, err)

	second, err := sender.Send(context.Background(), "+243900000001", "même message", models.ChannelSMS)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, *sends, 1)

	// A different body is a different notification.
	_, err = sender.Send(context.Background(), "+243900000001", "autre message", models.ChannelSMS)
	require.NoError(t, err)
	assert.Len(t, *sends, 2)
}

func TestSendPropagatesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "invalid number"}`, http.StatusBadRequest)
	}))
	t.Cleanup(server.Close)

	sender := NewTwilioSender("AC123", "token", "+15550001111", "", cache.NewInMemoryCache()).
		WithBaseURL(server.URL)

	_, err := sender.Send(context.Background(), "invalid", "corps", models.ChannelSMS)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}
