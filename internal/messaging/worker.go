package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"gorm.io/gorm"

	"mediai-backend/internal/analysis"
	"mediai-backend/internal/database"
	"mediai-backend/pkg/models"
)

type AnalysisRunner interface {
	Run(ctx context.Context, payload models.AnalysisTaskPayload) analysis.TaskOutcome
}

type NotificationSender interface {
	Send(ctx context.Context, to, body, channel string) (string, error)
}

// Worker drains the receiver's task channel with a fixed number of goroutines
// and dispatches on queue name. An analysis delivery is always acked: the
// outcome (success or recorded failure) lives in the task row, and retries go
// through the relancer-analyse action rather than redelivery.
type Worker struct {
	db        *gorm.DB
	receiver  Receiver
	publisher Publisher
	runner    AnalysisRunner
	sender    NotificationSender
	wg        sync.WaitGroup
}

func NewWorker(db *gorm.DB, receiver Receiver, publisher Publisher, runner AnalysisRunner, sender NotificationSender) *Worker {
	return &Worker{
		db:        db,
		receiver:  receiver,
		publisher: publisher,
		runner:    runner,
		sender:    sender,
	}
}

func (w *Worker) Start(concurrency int) {
	if concurrency <= 0 {
		concurrency = 1
	}
	slog.Info("starting worker goroutines", "concurrency", concurrency)

	w.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(id int) {
			defer w.wg.Done()
			for task := range w.receiver.Tasks() {
				w.processTask(task)
			}
			slog.Info("worker exiting, task channel closed", "worker", id)
		}(i)
	}
}

// Wait blocks until the receiver's task channel is closed and all in-flight
// tasks have finished.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) processTask(task Task) {
	ctx := context.Background()

	switch task.Type() {
	case AnalysisQueue:
		var payload models.AnalysisTaskPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			slog.Error("discarding malformed analysis task", "error", err, "body", string(task.Payload()))
			if err := task.Reject(); err != nil {
				slog.Error("failed to reject task", "error", err)
			}
			return
		}

		w.handleAnalysisTask(ctx, payload)

		// Failures are recorded on the task row, not retried via redelivery.
		if err := task.Ack(); err != nil {
			slog.Error("failed to ack analysis task", "task_id", payload.TaskId, "error", err)
		}

	case NotificationQueue:
		var payload models.NotificationTaskPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			slog.Error("discarding malformed notification task", "error", err, "body", string(task.Payload()))
			if err := task.Reject(); err != nil {
				slog.Error("failed to reject task", "error", err)
			}
			return
		}

		if err := w.handleNotificationTask(ctx, payload); err != nil {
			slog.Error("notification task failed", "to", payload.To, "channel", payload.Channel, "error", err)
			if err := task.Nack(); err != nil {
				slog.Error("failed to nack notification task", "error", err)
			}
			return
		}
		if err := task.Ack(); err != nil {
			slog.Error("failed to ack notification task", "error", err)
		}

	default:
		slog.Warn("received task from unknown queue, discarding", "queue", task.Type())
		if err := task.Reject(); err != nil {
			slog.Error("failed to reject task", "error", err)
		}
	}
}

func (w *Worker) handleAnalysisTask(ctx context.Context, payload models.AnalysisTaskPayload) {
	slog.Info("handling analysis task", "task_id", payload.TaskId, "conversation_id", payload.ConversationId)

	outcome := w.runner.Run(ctx, payload)
	if !outcome.Success {
		return
	}

	w.notifyLinkedFiche(ctx, payload)
}

// notifyLinkedFiche queues a completion message for the patient when the
// conversation belongs to a fiche that carries a phone number. Best-effort:
// the analysis already committed, a lost notification is not worth a retry of
// the whole pipeline.
func (w *Worker) notifyLinkedFiche(ctx context.Context, payload models.AnalysisTaskPayload) {
	var conversation database.Conversation
	err := w.db.WithContext(ctx).Preload("Fiche").First(&conversation, "id = ?", payload.ConversationId).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			slog.Warn("could not load conversation for notification", "conversation_id", payload.ConversationId, "error", err)
		}
		return
	}
	if conversation.Fiche == nil || conversation.Fiche.Telephone == "" {
		return
	}

	body := fmt.Sprintf(
		"MediAI : l'analyse de votre consultation %s est terminée. Connectez-vous à votre espace patient pour consulter les résultats.",
		conversation.Fiche.NumeroDossier,
	)
	notification := models.NotificationTaskPayload{
		To:      conversation.Fiche.Telephone,
		Body:    body,
		Channel: models.ChannelSMS,
	}
	if err := w.publisher.PublishNotification(ctx, notification); err != nil {
		slog.Warn("could not queue completion notification", "fiche_id", conversation.Fiche.Id, "error", err)
	}
}

func (w *Worker) handleNotificationTask(ctx context.Context, payload models.NotificationTaskPayload) error {
	if payload.Channel != models.ChannelSMS && payload.Channel != models.ChannelWhatsApp {
		return fmt.Errorf("unsupported notification channel: %s", payload.Channel)
	}

	sid, err := w.sender.Send(ctx, payload.To, payload.Body, payload.Channel)
	if err != nil {
		return err
	}
	slog.Info("notification delivered", "channel", payload.Channel, "sid", sid)
	return nil
}
