package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"mediai-backend/internal/auth"
	"mediai-backend/internal/database"
	"mediai-backend/pkg/api"
)

var validRoles = map[string]struct{}{
	database.RolePatient:  {},
	database.RoleProche:   {},
	database.RoleSoignant: {},
	database.RoleMedecin:  {},
	database.RoleAdmin:    {},
}

type AuthService struct {
	db      *gorm.DB
	manager *auth.JWTManager
}

func NewAuthService(db *gorm.DB, manager *auth.JWTManager) *AuthService {
	return &AuthService{db: db, manager: manager}
}

// AddRoutes mounts the unauthenticated auth endpoints.
func (s *AuthService) AddRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", RestHandler(s.Register))
		r.Post("/login", RestHandler(s.Login))
	})
}

func (s *AuthService) Register(r *http.Request) (any, error) {
	req, err := ParseRequest[api.RegisterRequest](r)
	if err != nil {
		return nil, err
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "username, email et password sont requis")
	}
	if req.Role == "" {
		req.Role = database.RolePatient
	}
	if _, ok := validRoles[req.Role]; !ok {
		return nil, CodedErrorf(http.StatusBadRequest, "rôle inconnu: %s", req.Role)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "error hashing password: %w", err)
	}

	user := database.User{
		Id:           uuid.New(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         req.Role,
	}
	if err := s.db.WithContext(r.Context()).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, CodedErrorf(http.StatusConflict, "username ou email déjà utilisé")
		}
		return nil, CodedErrorf(http.StatusInternalServerError, "error creating user: %w", err)
	}

	token, err := s.manager.IssueToken(user.Id, user.Username, user.Role)
	if err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "error issuing token: %w", err)
	}

	return Response(http.StatusCreated, api.LoginResponse{
		AccessToken: token,
		UserId:      user.Id,
		Role:        user.Role,
	}), nil
}

func (s *AuthService) Login(r *http.Request) (any, error) {
	req, err := ParseRequest[api.LoginRequest](r)
	if err != nil {
		return nil, err
	}

	var user database.User
	err = s.db.WithContext(r.Context()).First(&user, "username = ?", req.Username).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusUnauthorized, "identifiants invalides")
		}
		return nil, CodedErrorf(http.StatusInternalServerError, "error loading user: %w", err)
	}

	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		return nil, CodedErrorf(http.StatusUnauthorized, "identifiants invalides")
	}

	token, err := s.manager.IssueToken(user.Id, user.Username, user.Role)
	if err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "error issuing token: %w", err)
	}

	return api.LoginResponse{
		AccessToken: token,
		UserId:      user.Id,
		Role:        user.Role,
	}, nil
}
