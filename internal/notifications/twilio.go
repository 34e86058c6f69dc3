package notifications

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"mediai-backend/internal/cache"
	"mediai-backend/pkg/models"
)

const twilioBaseURL = "https://api.twilio.com/2010-04-01"

// Sent notifications are remembered for a day so that re-running a task or a
// redelivered queue message does not text the patient twice.
const idempotencyTTL = 24 * time.Hour

type twilioMessageResponse struct {
	Sid          string `json:"sid"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

// TwilioSender delivers SMS and WhatsApp messages through the Twilio REST
// API. Sends are idempotent per (recipient, body, channel, day).
type TwilioSender struct {
	client         *resty.Client
	accountSID     string
	fromNumber     string
	whatsappNumber string
	sent           cache.ResultCache
}

func NewTwilioSender(accountSID, authToken, fromNumber, whatsappNumber string, sent cache.ResultCache) *TwilioSender {
	client := resty.New().
		SetBaseURL(twilioBaseURL).
		SetBasicAuth(accountSID, authToken).
		SetTimeout(30 * time.Second)

	return &TwilioSender{
		client:         client,
		accountSID:     accountSID,
		fromNumber:     fromNumber,
		whatsappNumber: whatsappNumber,
		sent:           sent,
	}
}

// WithBaseURL points the sender at a different API host. Used by tests.
func (s *TwilioSender) WithBaseURL(url string) *TwilioSender {
	s.client.SetBaseURL(url)
	return s
}

func idempotencyKey(to, body, channel string, day time.Time) string {
	unique := fmt.Sprintf("%s:%s:%s:%s", to, body, channel, day.Format("2006-01-02"))
	sum := md5.Sum([]byte(unique))
	return "notification_" + hex.EncodeToString(sum[:])
}

// Send delivers one message and returns the provider message id. A message
// already sent today for the same recipient/body/channel is skipped and the
// cached id is returned.
func (s *TwilioSender) Send(ctx context.Context, to, body, channel string) (string, error) {
	key := idempotencyKey(to, body, channel, time.Now())
	if sid, found, err := s.sent.Get(ctx, key); err == nil && found {
		slog.Info("notification already sent today, skipping", "to", to, "channel", channel)
		return sid, nil
	}

	from := s.fromNumber
	if channel == models.ChannelWhatsApp {
		from = "whatsapp:" + s.whatsappNumber
		to = "whatsapp:" + to
	}

	var result twilioMessageResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"To":   to,
			"From": from,
			"Body": body,
		}).
		SetResult(&result).
		Post(fmt.Sprintf("/Accounts/%s/Messages.json", s.accountSID))
	if err != nil {
		return "", fmt.Errorf("twilio request failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("twilio API error (status %d): %s", resp.StatusCode(), resp.String())
	}

	if err := s.sent.Set(ctx, key, result.Sid, idempotencyTTL); err != nil {
		slog.Warn("could not record notification idempotency key", "error", err)
	}

	slog.Info("notification sent", "to", to, "channel", channel, "sid", result.Sid)
	return result.Sid, nil
}
