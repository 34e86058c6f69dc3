package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"mediai-backend/internal/auth"
	"mediai-backend/internal/database"
	"mediai-backend/pkg/api"
)

type ConversationService struct {
	db *gorm.DB
}

func NewConversationService(db *gorm.DB) *ConversationService {
	return &ConversationService{db: db}
}

func (s *ConversationService) AddRoutes(r chi.Router) {
	r.Route("/conversations", func(r chi.Router) {
		r.Get("/", RestHandler(s.ListConversations))
		r.Get("/{conversation_id}", RestHandler(s.GetConversation))
		r.Post("/{conversation_id}/messages", RestHandler(s.PostMessage))
	})
}

func conversationMetadata(conversation *database.Conversation) api.ConversationMetadata {
	meta := api.ConversationMetadata{
		Id:        conversation.Id,
		UserId:    conversation.UserId,
		CreatedAt: conversation.CreatedAt,
	}
	if conversation.FicheId.Valid {
		ficheId := conversation.FicheId.UUID
		meta.FicheId = &ficheId
	}
	return meta
}

// canAccess restricts patients to their own conversations; clinical roles see
// everything.
func canAccess(user *auth.UserContext, conversation *database.Conversation) bool {
	switch user.Role {
	case database.RoleMedecin, database.RoleSoignant, database.RoleAdmin:
		return true
	}
	return conversation.UserId == user.UserId
}

func (s *ConversationService) ListConversations(r *http.Request) (any, error) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		return nil, CodedErrorf(http.StatusUnauthorized, "authentication required")
	}

	query := s.db.WithContext(r.Context()).Order("created_at DESC")
	switch user.Role {
	case database.RoleMedecin, database.RoleSoignant, database.RoleAdmin:
	default:
		query = query.Where("user_id = ?", user.UserId)
	}

	var conversations []database.Conversation
	if err := query.Find(&conversations).Error; err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "error listing conversations: %w", err)
	}

	resp := make([]api.ConversationMetadata, 0, len(conversations))
	for i := range conversations {
		resp = append(resp, conversationMetadata(&conversations[i]))
	}
	return resp, nil
}

func (s *ConversationService) loadConversation(r *http.Request) (*database.Conversation, error) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		return nil, CodedErrorf(http.StatusUnauthorized, "authentication required")
	}

	conversationId, err := URLParamUUID(r, "conversation_id")
	if err != nil {
		return nil, err
	}

	var conversation database.Conversation
	err = s.db.WithContext(r.Context()).First(&conversation, "id = ?", conversationId).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "conversation %v not found", conversationId)
		}
		return nil, CodedErrorf(http.StatusInternalServerError, "error loading conversation: %w", err)
	}

	if !canAccess(user, &conversation) {
		return nil, CodedErrorf(http.StatusForbidden, "conversation %v is not accessible", conversationId)
	}
	return &conversation, nil
}

func (s *ConversationService) GetConversation(r *http.Request) (any, error) {
	conversation, err := s.loadConversation(r)
	if err != nil {
		return nil, err
	}

	var messages []database.Message
	err = s.db.WithContext(r.Context()).
		Where("conversation_id = ?", conversation.Id).
		Order("timestamp ASC").
		Find(&messages).Error
	if err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "error loading messages: %w", err)
	}

	detail := api.ConversationDetail{ConversationMetadata: conversationMetadata(conversation)}
	for _, message := range messages {
		detail.Messages = append(detail.Messages, api.MessageItem{
			Role:      message.Role,
			Content:   message.Content,
			Timestamp: message.Timestamp,
		})
	}
	return detail, nil
}

func (s *ConversationService) PostMessage(r *http.Request) (any, error) {
	conversation, err := s.loadConversation(r)
	if err != nil {
		return nil, err
	}

	req, err := ParseRequest[api.PostMessageRequest](r)
	if err != nil {
		return nil, err
	}
	if req.Content == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "le champ content est requis")
	}

	message := database.Message{
		ConversationId: conversation.Id,
		Role:           database.RoleUser,
		Content:        req.Content,
	}
	if err := s.db.WithContext(r.Context()).Create(&message).Error; err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "error creating message: %w", err)
	}

	return Response(http.StatusCreated, api.MessageItem{
		Role:      message.Role,
		Content:   message.Content,
		Timestamp: message.Timestamp,
	}), nil
}
