package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"ImageVault/internal/config"
	"ImageVault/internal/middleware"
	"ImageVault/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ObjectHandler обрабатывает загрузку, выдачу ключей и скачивание объектов.
type ObjectHandler struct {
	Vault  *service.VaultService
	Logger *zap.SugaredLogger
	Config *config.Config
}

// NewObjectHandler создаёт хендлер объектов
func NewObjectHandler(vault *service.VaultService, logger *zap.SugaredLogger, cfg *config.Config) *ObjectHandler {
	return &ObjectHandler{Vault: vault, Logger: logger, Config: cfg}
}

// accessToken достаёт объектный токен из заголовка или query-параметра.
// Сессионная cookie здесь не годится: доступ к объекту подтверждает
// отдельный scoped-токен.
func accessToken(r *http.Request) string {
	if t := r.Header.Get("X-Access-Token"); t != "" {
		return t
	}
	return r.URL.Query().Get("access_token")
}

// writeServiceError — единая карта ошибок сервиса в HTTP-статусы.
// Причины отказа доступа наружу не детализируются.
func (h *ObjectHandler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		http.Error(w, "invalid request", http.StatusBadRequest)
	case errors.Is(err, service.ErrAuthorization):
		http.Error(w, "access denied", http.StatusForbidden)
	case errors.Is(err, service.ErrNotFound):
		http.Error(w, "object not found", http.StatusNotFound)
	default:
		h.Logger.Errorw(op+": service error", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Upload принимает multipart/form-data с полем file, шифрует содержимое
// и возвращает метаданные с объектным токеном владельца.
func (h *ObjectHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	maxBody := int64(h.Config.ObjectMaxSizeMB)*1024*1024 + 1*1024*1024
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		h.Logger.Warnw("Upload: invalid multipart form", "error", err)
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "failed to read file", http.StatusBadRequest)
		return
	}
	if int64(len(data)) > int64(h.Config.ObjectMaxSizeMB)*1024*1024 {
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	res, err := h.Vault.EncryptAndStore(r.Context(), data, header.Filename, contentType, userID)
	if err != nil {
		h.writeServiceError(w, "Upload", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// List отдаёт метаданные объектов текущего пользователя.
func (h *ObjectHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	metas, err := h.Vault.ListObjects(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, "List", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"objects": metas})
}

// IssueKey выдаёт материал расшифровки под короткоживущей сессией.
func (h *ObjectHandler) IssueKey(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	objectID := chi.URLParam(r, "id")

	issue, err := h.Vault.IssueDecryptionKey(r.Context(), objectID, accessToken(r), userID)
	if err != nil {
		h.writeServiceError(w, "IssueKey", err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

type redeemRequest struct {
	KeyToken  string `json:"key_token"`
	SessionID string `json:"session_id"`
}

// Redeem гасит key_access токен и отдаёт материал из кеша.
// Сессионная аутентификация не требуется: всё несёт сам токен.
func (h *ObjectHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	objectID := chi.URLParam(r, "id")

	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.KeyToken == "" || req.SessionID == "" {
		http.Error(w, "key_token and session_id are required", http.StatusBadRequest)
		return
	}

	redeem, err := h.Vault.VerifyKeyAccess(r.Context(), objectID, req.KeyToken, req.SessionID)
	if err != nil {
		h.writeServiceError(w, "Redeem", err)
		return
	}
	writeJSON(w, http.StatusOK, redeem)
}

// Download отдаёт шифртекст объекта. Метаданные уходят заголовками,
// чтобы тело оставалось чистым бинарём.
func (h *ObjectHandler) Download(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	objectID := chi.URLParam(r, "id")

	data, meta, err := h.Vault.DownloadCiphertext(r.Context(), objectID, accessToken(r), userID)
	if err != nil {
		h.writeServiceError(w, "Download", err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Object-Name", meta.Name)
	w.Header().Set("X-Object-Content-Type", meta.ContentType)
	w.Header().Set("X-Content-Hash", meta.ContentHash)
	w.Header().Set("X-Plaintext-Size", strconv.FormatInt(meta.PlaintextSize, 10))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Delete удаляет объект владельца со всеми следами.
func (h *ObjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	objectID := chi.URLParam(r, "id")

	if err := h.Vault.DeleteObject(r.Context(), objectID, userID); err != nil {
		h.writeServiceError(w, "Delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type oneTimeRequest struct {
	TTLSeconds int64 `json:"ttl_seconds"`
}

// OneTimeToken выпускает одноразовый токен доступа с TTL вызывающего.
func (h *ObjectHandler) OneTimeToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	objectID := chi.URLParam(r, "id")

	var req oneTimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	ot, err := h.Vault.IssueOneTimeToken(r.Context(), objectID, accessToken(r), userID, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		h.writeServiceError(w, "OneTimeToken", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      ot.Token,
		"expires_at": ot.ExpiresAt.UTC().Format(time.RFC3339),
	})
}
