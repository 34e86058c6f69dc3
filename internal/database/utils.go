package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"mediai-backend/pkg/models"
)

func UpdateTaskStatus(ctx context.Context, txn *gorm.DB, taskId uuid.UUID, status string) error {
	updates := map[string]any{"status": status}
	switch status {
	case models.TaskStarted:
		updates["start_time"] = time.Now().UTC()
	case models.TaskSuccess, models.TaskFailure:
		updates["completion_time"] = time.Now().UTC()
	}

	if err := txn.WithContext(ctx).Model(&AnalysisTask{Id: taskId}).Updates(updates).Error; err != nil {
		slog.Error("error updating analysis task status", "task_id", taskId, "status", status, "error", err)
		return err
	}
	return nil
}

// RecordTaskFailure stores the structured failure payload on the task row.
// The queue delivery is still Acked afterwards so the attempt is not retried.
func RecordTaskFailure(ctx context.Context, txn *gorm.DB, taskId uuid.UUID, message string) error {
	updates := map[string]any{
		"status":          models.TaskFailure,
		"error":           message,
		"completion_time": time.Now().UTC(),
	}
	if err := txn.WithContext(ctx).Model(&AnalysisTask{Id: taskId}).Updates(updates).Error; err != nil {
		slog.Error("error recording analysis task failure", "task_id", taskId, "error", err)
		return err
	}
	return nil
}

func UpdateFicheStatus(ctx context.Context, txn *gorm.DB, ficheId uuid.UUID, status string) error {
	if err := txn.WithContext(ctx).Model(&FicheConsultation{Id: ficheId}).Update("status", status).Error; err != nil {
		slog.Error("error updating fiche status", "fiche_id", ficheId, "status", status, "error", err)
		return err
	}
	return nil
}

// NextNumeroDossier assigns the daily sequential dossier number, e.g.
// CONS-20260901-003.
func NextNumeroDossier(txn *gorm.DB, now time.Time) (string, error) {
	prefix := fmt.Sprintf("CONS-%s", now.Format("20060102"))

	var count int64
	if err := txn.Model(&FicheConsultation{}).Where("numero_dossier LIKE ?", prefix+"%").Count(&count).Error; err != nil {
		return "", fmt.Errorf("error counting fiches for dossier number: %w", err)
	}
	return fmt.Sprintf("%s-%03d", prefix, count+1), nil
}
