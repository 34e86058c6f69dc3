package models

import (
	"github.com/google/uuid"
)

// Analysis task lifecycle. State lives in the analysis_tasks table and is
// owned by the worker; clients only read it through the status endpoint.
const (
	TaskPending string = "PENDING"
	TaskStarted string = "STARTED"
	TaskSuccess string = "SUCCESS"
	TaskFailure string = "FAILURE"
)

// AnalysisTaskPayload is the unit of work published to the analysis queue.
// One delivery = one attempt; there is no automatic retry, a medecin
// re-triggers via the relancer-analyse action.
type AnalysisTaskPayload struct {
	TaskId         uuid.UUID `json:"task_id"`
	Symptomes      string    `json:"symptomes"`
	UserId         uuid.UUID `json:"user_id"`
	ConversationId uuid.UUID `json:"conversation_id"`
	CacheKey       string    `json:"cache_key"`
}

// NotificationChannel values accepted by the notification worker.
const (
	ChannelSMS      string = "sms"
	ChannelWhatsApp string = "whatsapp"
)

type NotificationTaskPayload struct {
	To      string `json:"to"`
	Body    string `json:"body"`
	Channel string `json:"channel"`
}
