package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Fiche statuses. A fiche starts in analysis, the pipeline flips it to
// FicheAnalyseTerminee, and a medecin can then validate or reject it.
const (
	FicheEnAnalyse       string = "en_analyse"
	FicheAnalyseTerminee string = "analyse_terminee"
	FicheValideMedecin   string = "valide_medecin"
	FicheRejeteMedecin   string = "rejete_medecin"
)

// User roles.
const (
	RolePatient  string = "patient"
	RoleProche   string = "proche"
	RoleSoignant string = "soignant"
	RoleMedecin  string = "medecin"
	RoleAdmin    string = "admin"
)

type User struct {
	Id           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Username     string    `gorm:"uniqueIndex;not null"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	Role         string    `gorm:"size:20;not null"`
	CreatedAt    time.Time
}

type FicheConsultation struct {
	Id            uuid.UUID `gorm:"type:uuid;primaryKey"`
	NumeroDossier string    `gorm:"uniqueIndex;not null"`

	Nom           string `gorm:"size:100"`
	Postnom       string `gorm:"size:100"`
	Prenom        string `gorm:"size:100"`
	DateNaissance string `gorm:"size:20"`
	Age           int
	Telephone     string `gorm:"size:30"`

	Temperature           sql.NullFloat64
	SpO2                  sql.NullInt64
	TensionArterielle     string `gorm:"size:20"`
	Pouls                 sql.NullInt64
	FrequenceRespiratoire sql.NullInt64

	MotifConsultation string
	HistoireMaladie   string
	Cephalees         string
	Vertiges          string
	Palpitations      string

	Hypertendu  bool `gorm:"default:false"`
	Diabetique  bool `gorm:"default:false"`
	Epileptique bool `gorm:"default:false"`

	Status       string `gorm:"size:20;not null"`
	DiagnosticIA string

	CommentaireMedecin string
	CommentaireRejet   string
	ValidateurId       uuid.NullUUID `gorm:"type:uuid"`
	DateValidation     sql.NullTime

	CreatedAt time.Time
}

type Conversation struct {
	Id     uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserId uuid.UUID `gorm:"type:uuid;index;not null"`
	User   *User     `gorm:"foreignKey:UserId"`

	FicheId uuid.NullUUID      `gorm:"type:uuid;index"`
	Fiche   *FicheConsultation `gorm:"foreignKey:FicheId;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time

	Messages []Message `gorm:"foreignKey:ConversationId;constraint:OnDelete:CASCADE"`
}

// Message roles. One row per backend answer plus the synthesis, appended in
// completion order; rows are never mutated after creation.
const (
	RoleUser     string = "user"
	RoleGPT4     string = "gpt4"
	RoleClaude   string = "claude"
	RoleGemini   string = "gemini"
	RoleSynthese string = "synthese"
)

type Message struct {
	Id             uint      `gorm:"primaryKey"`
	ConversationId uuid.UUID `gorm:"type:uuid;index;not null"`
	Role           string    `gorm:"size:20;not null"`
	Content        string
	Timestamp      time.Time      `gorm:"autoCreateTime"`
	Metadata       datatypes.JSON `gorm:"type:jsonb"`
}

// AnalysisTask tracks one pipeline attempt. The worker owns the state
// transitions; the API only ever reads these rows.
type AnalysisTask struct {
	Id             uuid.UUID `gorm:"type:uuid;primaryKey"`
	ConversationId uuid.UUID `gorm:"type:uuid;index;not null"`
	CacheKey       string    `gorm:"size:64;index;not null"`

	Status string `gorm:"size:20;not null"`
	Error  string

	CreationTime   time.Time
	StartTime      sql.NullTime
	CompletionTime sql.NullTime
}
