package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"mediai-backend/internal/cache"
	"mediai-backend/internal/database"
	"mediai-backend/pkg/models"
)

// FailureStatus is the human-readable status carried in the structured
// failure payload on the task row.
const FailureStatus = "analysis error"

// TaskOutcome is the explicit result of one task attempt. The messaging layer
// translates it into queue semantics (always Ack; a Failure is recorded, not
// retried).
type TaskOutcome struct {
	Success  bool
	Response string
	Error    string
}

func Succeeded(response string) TaskOutcome {
	return TaskOutcome{Success: true, Response: response}
}

func Failed(message string) TaskOutcome {
	return TaskOutcome{Success: false, Error: message}
}

// Runner executes one analysis attempt end to end: fan-out, per-backend
// persistence, synthesis, synthesis persistence, cache population and the
// fiche status transition.
type Runner struct {
	db       *gorm.DB
	cache    cache.ResultCache
	pipeline *Pipeline
}

func NewRunner(db *gorm.DB, resultCache cache.ResultCache, pipeline *Pipeline) *Runner {
	return &Runner{db: db, cache: resultCache, pipeline: pipeline}
}

func (r *Runner) Run(ctx context.Context, payload models.AnalysisTaskPayload) TaskOutcome {
	if err := database.UpdateTaskStatus(ctx, r.db, payload.TaskId, models.TaskStarted); err != nil {
		return r.fail(ctx, payload, fmt.Sprintf("failed to mark task started: %v", err))
	}

	prompt := BuildAnalysisPrompt(payload.Symptomes)

	// All three calls resolve (successfully or not) before anything below
	// runs; a single backend failure is carried as message content.
	results := r.pipeline.FanOut(ctx, prompt)

	for _, result := range results {
		message := database.Message{
			ConversationId: payload.ConversationId,
			Role:           result.Backend,
			Content:        result.Content(),
		}
		if err := r.db.WithContext(ctx).Create(&message).Error; err != nil {
			return r.fail(ctx, payload, fmt.Sprintf("failed to persist %s response: %v", result.Backend, err))
		}
	}

	synthesis, err := r.pipeline.Synthesize(ctx, results)
	if err != nil {
		return r.fail(ctx, payload, err.Error())
	}

	syntheseMessage := database.Message{
		ConversationId: payload.ConversationId,
		Role:           database.RoleSynthese,
		Content:        synthesis,
	}
	if err := r.db.WithContext(ctx).Create(&syntheseMessage).Error; err != nil {
		return r.fail(ctx, payload, fmt.Sprintf("failed to persist synthesis: %v", err))
	}

	// The cache write strictly follows the synthesis persistence, so a cache
	// hit always means the full pipeline committed.
	if err := r.cache.Set(ctx, payload.CacheKey, synthesis, ResultTTL); err != nil {
		return r.fail(ctx, payload, fmt.Sprintf("failed to populate result cache: %v", err))
	}

	r.updateLinkedFiche(ctx, payload.ConversationId, synthesis)

	if err := database.UpdateTaskStatus(ctx, r.db, payload.TaskId, models.TaskSuccess); err != nil {
		slog.Error("analysis succeeded but task status update failed", "task_id", payload.TaskId, "error", err)
	}

	return Succeeded(synthesis)
}

func (r *Runner) fail(ctx context.Context, payload models.AnalysisTaskPayload, message string) TaskOutcome {
	slog.Error("analysis task failed", "task_id", payload.TaskId, "status", FailureStatus, "error", message)
	if err := database.RecordTaskFailure(ctx, r.db, payload.TaskId, message); err != nil {
		slog.Error("failed to record task failure", "task_id", payload.TaskId, "error", err)
	}
	return Failed(message)
}

// updateLinkedFiche copies the synthesis into the fiche's diagnostic field
// and flips its status. Best-effort: the synthesis and messages are already
// durable, so a vanished fiche does not fail the task.
func (r *Runner) updateLinkedFiche(ctx context.Context, conversationId uuid.UUID, synthesis string) {
	var conversation database.Conversation
	err := r.db.WithContext(ctx).First(&conversation, "id = ?", conversationId).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			slog.Warn("could not load conversation for fiche update", "conversation_id", conversationId, "error", err)
		}
		return
	}
	if !conversation.FicheId.Valid {
		return
	}

	updates := map[string]any{
		"diagnostic_ia": synthesis,
		"status":        database.FicheAnalyseTerminee,
	}
	err = r.db.WithContext(ctx).Model(&database.FicheConsultation{Id: conversation.FicheId.UUID}).Updates(updates).Error
	if err != nil {
		slog.Warn("could not update linked fiche", "fiche_id", conversation.FicheId.UUID, "error", err)
	}
}
