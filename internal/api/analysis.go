package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"mediai-backend/internal/analysis"
	"mediai-backend/internal/auth"
	"mediai-backend/internal/cache"
	"mediai-backend/internal/database"
	"mediai-backend/internal/messaging"
	"mediai-backend/pkg/api"
	"mediai-backend/pkg/models"
)

// AnalysisService exposes the IA analysis protocol: launch, poll, fetch.
type AnalysisService struct {
	db        *gorm.DB
	cache     cache.ResultCache
	publisher messaging.Publisher
}

func NewAnalysisService(db *gorm.DB, resultCache cache.ResultCache, publisher messaging.Publisher) *AnalysisService {
	return &AnalysisService{db: db, cache: resultCache, publisher: publisher}
}

func (s *AnalysisService) AddRoutes(r chi.Router, limiter *auth.RateLimiter) {
	r.Route("/ia", func(r chi.Router) {
		r.Use(auth.RequireRole(database.RoleMedecin))
		r.With(limiter.Limit(auth.ScopeAnalyse, auth.AnalyseQuota)).Post("/analyse/", RestHandler(s.StartAnalyse))
		r.With(limiter.Limit(auth.ScopeStatus, auth.StatusQuota)).Get("/task/{task_id}/", RestHandler(s.GetTaskStatus))
		r.With(limiter.Limit(auth.ScopeResult, auth.ResultQuota)).Get("/resultat/", RestHandler(s.GetResult))
	})
}

// StartAnalyse persists the user message, short-circuits on a cache hit, and
// otherwise creates the task row and enqueues the analysis. The publish
// happens strictly after the transaction commits, which is why the returned
// task_id is always null: clients poll via the cache key.
func (s *AnalysisService) StartAnalyse(r *http.Request) (any, error) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		return nil, CodedErrorf(http.StatusUnauthorized, "authentication required")
	}

	req, err := ParseRequest[api.StartAnalyseRequest](r)
	if err != nil {
		return nil, err
	}
	if req.Symptomes == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "le champ symptomes est requis")
	}

	cacheKey := analysis.CacheKey(analysis.Fingerprint(req.Symptomes))

	conversationId, err := s.resolveConversation(r, user, req.ConversationId)
	if err != nil {
		return nil, err
	}

	userMessage := database.Message{
		ConversationId: conversationId,
		Role:           database.RoleUser,
		Content:        req.Symptomes,
	}
	if err := s.db.WithContext(r.Context()).Create(&userMessage).Error; err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "error persisting user message: %w", err)
	}

	if cached, found, err := s.cache.Get(r.Context(), cacheKey); err != nil {
		slog.Warn("cache lookup failed, running full analysis", "cache_key", cacheKey, "error", err)
	} else if found {
		return api.StartAnalyseResponse{
			TaskId:        nil,
			CacheKey:      cacheKey,
			Status:        "done",
			Response:      cached,
			AlreadyCached: true,
		}, nil
	}

	task := database.AnalysisTask{
		Id:             uuid.New(),
		ConversationId: conversationId,
		CacheKey:       cacheKey,
		Status:         models.TaskPending,
		CreationTime:   time.Now().UTC(),
	}
	if err := s.db.WithContext(r.Context()).Create(&task).Error; err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "error creating analysis task: %w", err)
	}

	payload := models.AnalysisTaskPayload{
		TaskId:         task.Id,
		Symptomes:      req.Symptomes,
		UserId:         user.UserId,
		ConversationId: conversationId,
		CacheKey:       cacheKey,
	}
	if err := s.publisher.PublishAnalysisTask(r.Context(), payload); err != nil {
		if dbErr := database.RecordTaskFailure(r.Context(), s.db, task.Id, fmt.Sprintf("failed to enqueue analysis: %v", err)); dbErr != nil {
			slog.Error("could not record enqueue failure", "task_id", task.Id, "error", dbErr)
		}
		return nil, CodedErrorf(http.StatusInternalServerError, "error enqueueing analysis task: %w", err)
	}

	return Response(http.StatusAccepted, api.StartAnalyseResponse{
		TaskId:   nil,
		CacheKey: cacheKey,
		Status:   "pending",
	}), nil
}

func (s *AnalysisService) resolveConversation(r *http.Request, user *auth.UserContext, conversationId *uuid.UUID) (uuid.UUID, error) {
	if conversationId == nil {
		conversation := database.Conversation{Id: uuid.New(), UserId: user.UserId}
		if err := s.db.WithContext(r.Context()).Create(&conversation).Error; err != nil {
			return uuid.Nil, CodedErrorf(http.StatusInternalServerError, "error creating conversation: %w", err)
		}
		return conversation.Id, nil
	}

	var conversation database.Conversation
	err := s.db.WithContext(r.Context()).First(&conversation, "id = ?", *conversationId).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, CodedErrorf(http.StatusNotFound, "conversation %v not found", *conversationId)
		}
		return uuid.Nil, CodedErrorf(http.StatusInternalServerError, "error loading conversation: %w", err)
	}
	return conversation.Id, nil
}

// GetTaskStatus reports the task row state. An unknown id reads as PENDING,
// matching what polling clients saw before the row existed.
func (s *AnalysisService) GetTaskStatus(r *http.Request) (any, error) {
	taskId, err := URLParamUUID(r, "task_id")
	if err != nil {
		return nil, err
	}

	var task database.AnalysisTask
	err = s.db.WithContext(r.Context()).First(&task, "id = ?", taskId).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return api.TaskStatusResponse{TaskId: taskId.String(), State: models.TaskPending}, nil
		}
		return nil, CodedErrorf(http.StatusInternalServerError, "error loading analysis task: %w", err)
	}

	return api.TaskStatusResponse{
		TaskId: task.Id.String(),
		State:  task.Status,
		Info:   task.Error,
	}, nil
}

// GetResult resolves a cache key. An unknown key is indistinguishable from an
// analysis still in flight.
func (s *AnalysisService) GetResult(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.AnalyseResultRequest](r)
	if err != nil {
		return nil, err
	}
	if params.CacheKey == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "le paramètre cache_key est requis")
	}

	cached, found, err := s.cache.Get(r.Context(), params.CacheKey)
	if err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "error reading result cache: %w", err)
	}
	if !found {
		return api.AnalyseResultResponse{Status: "pending", CacheKey: params.CacheKey}, nil
	}

	return api.AnalyseResultResponse{Status: "done", Response: cached, CacheKey: params.CacheKey}, nil
}
