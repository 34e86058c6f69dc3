package api

import (
	"time"

	"github.com/google/uuid"
)

// --- IA analysis protocol ---

type StartAnalyseRequest struct {
	Symptomes      string     `json:"symptomes"`
	ConversationId *uuid.UUID `json:"conversation_id,omitempty"`
}

// StartAnalyseResponse is returned both for the 202 pending case and the
// 200 cache-hit short-circuit. TaskId is always null: the task is enqueued
// after the enclosing transaction commits, so its id is not surfaced.
type StartAnalyseResponse struct {
	TaskId        *string `json:"task_id"`
	CacheKey      string  `json:"cache_key"`
	Status        string  `json:"status"`
	Response      string  `json:"response,omitempty"`
	AlreadyCached bool    `json:"already_cached,omitempty"`
}

type TaskStatusResponse struct {
	TaskId string `json:"task_id"`
	State  string `json:"state"`
	Info   string `json:"info,omitempty"`
}

type AnalyseResultRequest struct {
	CacheKey string `schema:"cache_key"`
}

type AnalyseResultResponse struct {
	Status   string `json:"status"`
	Response string `json:"response"`
	CacheKey string `json:"cache_key"`
}

// --- Conversations ---

type ConversationMetadata struct {
	Id        uuid.UUID  `json:"id"`
	UserId    uuid.UUID  `json:"user_id"`
	FicheId   *uuid.UUID `json:"fiche_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type MessageItem struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type ConversationDetail struct {
	ConversationMetadata
	Messages []MessageItem `json:"messages"`
}

type PostMessageRequest struct {
	Content string `json:"content"`
}

// --- Fiches de consultation ---

type FicheRequest struct {
	Nom           string `json:"nom"`
	Postnom       string `json:"postnom"`
	Prenom        string `json:"prenom"`
	DateNaissance string `json:"date_naissance"`
	Age           int    `json:"age"`
	Telephone     string `json:"telephone"`

	Temperature           *float64 `json:"temperature,omitempty"`
	SpO2                  *int     `json:"spo2,omitempty"`
	TensionArterielle     string   `json:"tension_arterielle,omitempty"`
	Pouls                 *int     `json:"pouls,omitempty"`
	FrequenceRespiratoire *int     `json:"frequence_respiratoire,omitempty"`

	MotifConsultation string `json:"motif_consultation,omitempty"`
	HistoireMaladie   string `json:"histoire_maladie,omitempty"`
	Cephalees         string `json:"cephalees,omitempty"`
	Vertiges          string `json:"vertiges,omitempty"`
	Palpitations      string `json:"palpitations,omitempty"`

	Hypertendu  bool `json:"hypertendu"`
	Diabetique  bool `json:"diabetique"`
	Epileptique bool `json:"epileptique"`
}

type FicheResponse struct {
	Id            uuid.UUID `json:"id"`
	NumeroDossier string    `json:"numero_dossier"`
	Nom           string    `json:"nom"`
	Postnom       string    `json:"postnom"`
	Prenom        string    `json:"prenom"`
	Age           int       `json:"age"`
	Telephone     string    `json:"telephone"`
	Status        string    `json:"status"`
	DiagnosticIA  string    `json:"diagnostic_ia,omitempty"`

	CommentaireMedecin string     `json:"commentaire_medecin,omitempty"`
	DateValidation     *time.Time `json:"date_validation,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

type ValidateFicheRequest struct {
	Commentaire string `json:"commentaire,omitempty"`
}

type RejectFicheRequest struct {
	Commentaire string `json:"commentaire"`
}

type RelancerAnalyseResponse struct {
	Detail   string `json:"detail"`
	Status   string `json:"status"`
	CacheKey string `json:"cache_key"`
}

// --- Auth ---

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	UserId      uuid.UUID `json:"user_id"`
	Role        string    `json:"role"`
}
