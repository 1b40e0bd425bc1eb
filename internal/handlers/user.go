package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"ImageVault/internal/config"
	"ImageVault/internal/middleware"
	"ImageVault/internal/service"

	"go.uber.org/zap"
)

// UserHandler — регистрация и вход.
type UserHandler struct {
	UserService *service.UserService
	Logger      *zap.SugaredLogger
	Config      *config.Config
}

// NewUserHandler создаёт хендлер пользователей
func NewUserHandler(userService *service.UserService, logger *zap.SugaredLogger, cfg *config.Config) *UserHandler {
	return &UserHandler{UserService: userService, Logger: logger, Config: cfg}
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Register создаёт пользователя и сразу аутентифицирует его cookie-сессией.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	user, err := h.UserService.Register(r.Context(), req.Login, req.Password)
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		http.Error(w, "login and password are required", http.StatusBadRequest)
		return
	case errors.Is(err, service.ErrLoginTaken):
		http.Error(w, "login already taken", http.StatusConflict)
		return
	case err != nil:
		h.Logger.Errorw("Register: service error", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := middleware.SetLoginCookie(w, user.ID, h.Config.AuthSecret); err != nil {
		h.Logger.Errorw("Register: set cookie", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"user_id": user.ID, "login": user.Login})
}

// Login проверяет пароль и выставляет cookie-сессию.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	user, err := h.UserService.Login(r.Context(), req.Login, req.Password)
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		http.Error(w, "login and password are required", http.StatusBadRequest)
		return
	case errors.Is(err, service.ErrInvalidCredentials):
		http.Error(w, "invalid login or password", http.StatusUnauthorized)
		return
	case err != nil:
		h.Logger.Errorw("Login: service error", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := middleware.SetLoginCookie(w, user.ID, h.Config.AuthSecret); err != nil {
		h.Logger.Errorw("Login: set cookie", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"user_id": user.ID, "login": user.Login})
}
