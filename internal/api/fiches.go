package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"mediai-backend/internal/analysis"
	"mediai-backend/internal/auth"
	"mediai-backend/internal/database"
	"mediai-backend/internal/messaging"
	"mediai-backend/pkg/api"
	"mediai-backend/pkg/models"
)

// FicheService manages fiches de consultation and their lifecycle: creation
// launches the analysis pipeline, a medecin then validates or rejects the
// AI diagnostic, or relaunches the analysis.
type FicheService struct {
	db        *gorm.DB
	publisher messaging.Publisher
}

func NewFicheService(db *gorm.DB, publisher messaging.Publisher) *FicheService {
	return &FicheService{db: db, publisher: publisher}
}

func (s *FicheService) AddRoutes(r chi.Router) {
	r.Route("/fiches", func(r chi.Router) {
		r.Post("/", RestHandler(s.CreateFiche))
		r.Get("/", RestHandler(s.ListFiches))
		r.Get("/{fiche_id}", RestHandler(s.GetFiche))

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(database.RoleMedecin))
			r.Post("/{fiche_id}/validate", RestHandler(s.ValidateFiche))
			r.Post("/{fiche_id}/rejeter", RestHandler(s.RejectFiche))
			r.Post("/{fiche_id}/relancer-analyse", RestHandler(s.RelancerAnalyse))
		})
	})
}

func orNonRenseigne(value string) string {
	if value == "" {
		return "Non renseigné"
	}
	return value
}

func orNA(value string) string {
	if value == "" {
		return "NA"
	}
	return value
}

func nullFloatNA(v sql.NullFloat64) string {
	if !v.Valid {
		return "NA"
	}
	return fmt.Sprintf("%g", v.Float64)
}

func nullIntNA(v sql.NullInt64) string {
	if !v.Valid {
		return "NA"
	}
	return fmt.Sprintf("%d", v.Int64)
}

// formatFicheText condenses a fiche into the free-text clinical summary fed
// to the analysis pipeline.
func formatFicheText(fiche *database.FicheConsultation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Patient %s %s %s, %d ans. ", fiche.Nom, fiche.Postnom, fiche.Prenom, fiche.Age)
	fmt.Fprintf(&b, "Motif: %s. Histoire: %s. ", orNonRenseigne(fiche.MotifConsultation), orNonRenseigne(fiche.HistoireMaladie))
	fmt.Fprintf(&b, "Signes vitaux: T=%s°C SpO2=%s%% TA=%s Pouls=%s FR=%s. ",
		nullFloatNA(fiche.Temperature), nullIntNA(fiche.SpO2), orNA(fiche.TensionArterielle),
		nullIntNA(fiche.Pouls), nullIntNA(fiche.FrequenceRespiratoire))
	fmt.Fprintf(&b, "Plaintes: céphalées=%t vertiges=%t palpitations=%t. ",
		fiche.Cephalees != "", fiche.Vertiges != "", fiche.Palpitations != "")
	fmt.Fprintf(&b, "Antécédents: HTA=%t Diab=%t Epilepsie=%t.",
		fiche.Hypertendu, fiche.Diabetique, fiche.Epileptique)
	return b.String()
}

func ficheToResponse(fiche *database.FicheConsultation) api.FicheResponse {
	resp := api.FicheResponse{
		Id:                 fiche.Id,
		NumeroDossier:      fiche.NumeroDossier,
		Nom:                fiche.Nom,
		Postnom:            fiche.Postnom,
		Prenom:             fiche.Prenom,
		Age:                fiche.Age,
		Telephone:          fiche.Telephone,
		Status:             fiche.Status,
		DiagnosticIA:       fiche.DiagnosticIA,
		CommentaireMedecin: fiche.CommentaireMedecin,
		CreatedAt:          fiche.CreatedAt,
	}
	if fiche.DateValidation.Valid {
		validation := fiche.DateValidation.Time
		resp.DateValidation = &validation
	}
	return resp
}

// launchAnalysis formats the fiche, persists the user message, creates the
// task row and enqueues the pipeline run for the given conversation.
func (s *FicheService) launchAnalysis(ctx context.Context, fiche *database.FicheConsultation, conversation *database.Conversation) error {
	texte := formatFicheText(fiche)

	userMessage := database.Message{
		ConversationId: conversation.Id,
		Role:           database.RoleUser,
		Content:        texte,
	}
	if err := s.db.WithContext(ctx).Create(&userMessage).Error; err != nil {
		return CodedErrorf(http.StatusInternalServerError, "error persisting fiche message: %w", err)
	}

	cacheKey := analysis.CacheKey(analysis.Fingerprint(texte))

	task := database.AnalysisTask{
		Id:             uuid.New(),
		ConversationId: conversation.Id,
		CacheKey:       cacheKey,
		Status:         models.TaskPending,
		CreationTime:   time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&task).Error; err != nil {
		return CodedErrorf(http.StatusInternalServerError, "error creating analysis task: %w", err)
	}

	payload := models.AnalysisTaskPayload{
		TaskId:         task.Id,
		Symptomes:      texte,
		UserId:         conversation.UserId,
		ConversationId: conversation.Id,
		CacheKey:       cacheKey,
	}
	if err := s.publisher.PublishAnalysisTask(ctx, payload); err != nil {
		if dbErr := database.RecordTaskFailure(ctx, s.db, task.Id, fmt.Sprintf("failed to enqueue analysis: %v", err)); dbErr != nil {
			return CodedErrorf(http.StatusInternalServerError, "error recording enqueue failure: %w", dbErr)
		}
		return CodedErrorf(http.StatusInternalServerError, "error enqueueing analysis task: %w", err)
	}

	return nil
}

func (s *FicheService) CreateFiche(r *http.Request) (any, error) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		return nil, CodedErrorf(http.StatusUnauthorized, "authentication required")
	}

	req, err := ParseRequest[api.FicheRequest](r)
	if err != nil {
		return nil, err
	}
	if req.Nom == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "le champ nom est requis")
	}

	fiche := database.FicheConsultation{
		Id:            uuid.New(),
		Nom:           req.Nom,
		Postnom:       req.Postnom,
		Prenom:        req.Prenom,
		DateNaissance: req.DateNaissance,
		Age:           req.Age,
		Telephone:     req.Telephone,

		TensionArterielle: req.TensionArterielle,

		MotifConsultation: req.MotifConsultation,
		HistoireMaladie:   req.HistoireMaladie,
		Cephalees:         req.Cephalees,
		Vertiges:          req.Vertiges,
		Palpitations:      req.Palpitations,

		Hypertendu:  req.Hypertendu,
		Diabetique:  req.Diabetique,
		Epileptique: req.Epileptique,

		Status: database.FicheEnAnalyse,
	}
	if req.Temperature != nil {
		fiche.Temperature = sql.NullFloat64{Float64: *req.Temperature, Valid: true}
	}
	if req.SpO2 != nil {
		fiche.SpO2 = sql.NullInt64{Int64: int64(*req.SpO2), Valid: true}
	}
	if req.Pouls != nil {
		fiche.Pouls = sql.NullInt64{Int64: int64(*req.Pouls), Valid: true}
	}
	if req.FrequenceRespiratoire != nil {
		fiche.FrequenceRespiratoire = sql.NullInt64{Int64: int64(*req.FrequenceRespiratoire), Valid: true}
	}

	conversation := database.Conversation{
		Id:      uuid.New(),
		UserId:  user.UserId,
		FicheId: uuid.NullUUID{UUID: fiche.Id, Valid: true},
	}

	err = s.db.WithContext(r.Context()).Transaction(func(txn *gorm.DB) error {
		numero, err := database.NextNumeroDossier(txn, time.Now())
		if err != nil {
			return err
		}
		fiche.NumeroDossier = numero

		if err := txn.Create(&fiche).Error; err != nil {
			return fmt.Errorf("error creating fiche: %w", err)
		}
		if err := txn.Create(&conversation).Error; err != nil {
			return fmt.Errorf("error creating conversation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "error creating fiche: %w", err)
	}

	// Enqueue after the transaction commits so the worker always sees the rows.
	if err := s.launchAnalysis(r.Context(), &fiche, &conversation); err != nil {
		return nil, err
	}

	return Response(http.StatusCreated, ficheToResponse(&fiche)), nil
}

type listFichesParams struct {
	Status string `schema:"status"`
}

func (s *FicheService) ListFiches(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[listFichesParams](r)
	if err != nil {
		return nil, err
	}

	query := s.db.WithContext(r.Context()).Order("created_at DESC")
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}

	var fiches []database.FicheConsultation
	if err := query.Find(&fiches).Error; err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "error listing fiches: %w", err)
	}

	resp := make([]api.FicheResponse, 0, len(fiches))
	for i := range fiches {
		resp = append(resp, ficheToResponse(&fiches[i]))
	}
	return resp, nil
}

func (s *FicheService) getFiche(r *http.Request) (*database.FicheConsultation, error) {
	ficheId, err := URLParamUUID(r, "fiche_id")
	if err != nil {
		return nil, err
	}

	var fiche database.FicheConsultation
	err = s.db.WithContext(r.Context()).First(&fiche, "id = ?", ficheId).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "fiche %v not found", ficheId)
		}
		return nil, CodedErrorf(http.StatusInternalServerError, "error loading fiche: %w", err)
	}
	return &fiche, nil
}

func (s *FicheService) GetFiche(r *http.Request) (any, error) {
	fiche, err := s.getFiche(r)
	if err != nil {
		return nil, err
	}
	return ficheToResponse(fiche), nil
}

func (s *FicheService) ValidateFiche(r *http.Request) (any, error) {
	user, _ := auth.UserFromContext(r.Context())

	fiche, err := s.getFiche(r)
	if err != nil {
		return nil, err
	}

	if fiche.Status != database.FicheAnalyseTerminee && fiche.Status != database.FicheValideMedecin {
		return nil, CodedErrorf(http.StatusBadRequest, "la fiche doit être 'analyse_terminee' avant validation")
	}

	req, err := ParseRequest[api.ValidateFicheRequest](r)
	if err != nil {
		return nil, err
	}

	fiche.Status = database.FicheValideMedecin
	fiche.CommentaireMedecin = req.Commentaire
	fiche.ValidateurId = uuid.NullUUID{UUID: user.UserId, Valid: true}
	fiche.DateValidation = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	if err := s.db.WithContext(r.Context()).Save(fiche).Error; err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "error validating fiche: %w", err)
	}

	return ficheToResponse(fiche), nil
}

func (s *FicheService) RejectFiche(r *http.Request) (any, error) {
	user, _ := auth.UserFromContext(r.Context())

	fiche, err := s.getFiche(r)
	if err != nil {
		return nil, err
	}

	req, err := ParseRequest[api.RejectFicheRequest](r)
	if err != nil {
		return nil, err
	}
	if req.Commentaire == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "le champ commentaire est requis pour un rejet")
	}

	fiche.Status = database.FicheRejeteMedecin
	fiche.CommentaireRejet = req.Commentaire
	fiche.ValidateurId = uuid.NullUUID{UUID: user.UserId, Valid: true}
	fiche.DateValidation = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	if err := s.db.WithContext(r.Context()).Save(fiche).Error; err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "error rejecting fiche: %w", err)
	}

	return ficheToResponse(fiche), nil
}

// RelancerAnalyse is the human retry path: flip the fiche back to en_analyse
// and run the pipeline again on its conversation.
func (s *FicheService) RelancerAnalyse(r *http.Request) (any, error) {
	user, _ := auth.UserFromContext(r.Context())

	fiche, err := s.getFiche(r)
	if err != nil {
		return nil, err
	}

	if err := database.UpdateFicheStatus(r.Context(), s.db, fiche.Id, database.FicheEnAnalyse); err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "error updating fiche status: %w", err)
	}
	fiche.Status = database.FicheEnAnalyse

	var conversation database.Conversation
	err = s.db.WithContext(r.Context()).
		Where("fiche_id = ?", fiche.Id).
		Order("created_at ASC").
		First(&conversation).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusInternalServerError, "error loading conversation: %w", err)
		}
		conversation = database.Conversation{
			Id:      uuid.New(),
			UserId:  user.UserId,
			FicheId: uuid.NullUUID{UUID: fiche.Id, Valid: true},
		}
		if err := s.db.WithContext(r.Context()).Create(&conversation).Error; err != nil {
			return nil, CodedErrorf(http.StatusInternalServerError, "error creating conversation: %w", err)
		}
	}

	if err := s.launchAnalysis(r.Context(), fiche, &conversation); err != nil {
		return nil, err
	}

	cacheKey := analysis.CacheKey(analysis.Fingerprint(formatFicheText(fiche)))
	return Response(http.StatusAccepted, api.RelancerAnalyseResponse{
		Detail:   "Analyse relancée",
		Status:   fiche.Status,
		CacheKey: cacheKey,
	}), nil
}
