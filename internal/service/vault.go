// Package service — прикладная логика хранилища: оркестрация шифрования,
// выдачи ключей, скачивания и удаления поверх инжектированных хранилищ.
package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"ImageVault/internal/crypto"
	"ImageVault/internal/keycache"
	"ImageVault/internal/model"
	"ImageVault/internal/repo"
	"ImageVault/internal/storage"
	"ImageVault/internal/token"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ObjectMeta — метаданные объекта, безопасные для выдачи клиенту.
type ObjectMeta struct {
	ObjectID       string    `json:"object_id"`
	Name           string    `json:"name"`
	ContentType    string    `json:"content_type"`
	ContentHash    string    `json:"content_hash"`
	PlaintextSize  int64     `json:"plaintext_size"`
	CiphertextSize int64     `json:"ciphertext_size"`
	CreatedAt      time.Time `json:"created_at"`
}

// UploadResult — итог encryptAndStore.
type UploadResult struct {
	ObjectID    string     `json:"object_id"`
	AccessToken string     `json:"access_token"`
	Meta        ObjectMeta `json:"metadata"`
}

// KeyIssue — итог выдачи ключа: и погашаемый токен сессии, и сырой
// материал. Двойная доставка избыточна, но сохранена сознательно —
// см. DESIGN.md.
type KeyIssue struct {
	KeyToken  string `json:"key_token"`
	SessionID string `json:"session_id"`
	ExpiresIn int64  `json:"expires_in"` // секунды
	Key       string `json:"key"`        // base64
	IV        string `json:"iv"`         // base64
}

// KeyRedeem — итог погашения key_access токена.
type KeyRedeem struct {
	Key string `json:"key"` // base64
	IV  string `json:"iv"`  // base64
}

// OneTime — выпущенный одноразовый токен.
type OneTime struct {
	Token     string    `json:"token"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// VaultService — AccessOrchestrator: связывает шифрование, токены,
// кеш ключей и внешние хранилища.
type VaultService struct {
	blobs        storage.BlobStore
	objects      repo.ObjectRepository
	tokens       *token.Authority
	cache        *keycache.Cache
	masterSecret string
	logger       *zap.SugaredLogger
}

// NewVaultService собирает оркестратор из явно переданных зависимостей.
func NewVaultService(
	blobs storage.BlobStore,
	objects repo.ObjectRepository,
	tokens *token.Authority,
	cache *keycache.Cache,
	masterSecret string,
	logger *zap.SugaredLogger,
) *VaultService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &VaultService{
		blobs:        blobs,
		objects:      objects,
		tokens:       tokens,
		cache:        cache,
		masterSecret: masterSecret,
		logger:       logger,
	}
}

func metaOf(rec *model.ObjectRecord) ObjectMeta {
	return ObjectMeta{
		ObjectID:       rec.ID,
		Name:           rec.OriginalName,
		ContentType:    rec.ContentType,
		ContentHash:    rec.ContentHash,
		PlaintextSize:  rec.PlaintextSize,
		CiphertextSize: rec.CiphertextSize,
		CreatedAt:      rec.CreatedAt,
	}
}

// EncryptAndStore шифрует содержимое свежим материалом, сохраняет
// шифртекст и метаданные и выпускает object_access токен владельцу.
// Сырой ключ живёт только в рамках этого вызова: при загрузке ничего
// не кешируется.
func (s *VaultService) EncryptAndStore(ctx context.Context, plaintext []byte, name, contentType, ownerUserID string) (*UploadResult, error) {
	if len(plaintext) == 0 || name == "" || ownerUserID == "" {
		return nil, ErrInvalidInput
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	iv, err := crypto.GenerateIV()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	ciphertext, err := crypto.Encrypt(plaintext, key, iv)
	if err != nil {
		return nil, fmt.Errorf("encrypt object: %w", err)
	}
	contentHash := crypto.ContentHash(plaintext)

	locator, err := s.blobs.Put(ctx, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: put blob: %v", ErrStorage, err)
	}

	wrappedKey, wrappedIV, err := crypto.WrapMaterial(key, iv, s.masterSecret)
	if err != nil {
		return nil, fmt.Errorf("wrap material: %w", err)
	}

	rec := &model.ObjectRecord{
		ID:             uuid.NewString(),
		OwnerUserID:    ownerUserID,
		OriginalName:   name,
		ContentType:    contentType,
		StorageLocator: locator,
		ContentHash:    contentHash,
		PlaintextSize:  int64(len(plaintext)),
		CiphertextSize: int64(len(ciphertext)),
		WrappedKey:     wrappedKey,
		WrappedIV:      wrappedIV,
	}
	if err := s.objects.Create(ctx, rec); err != nil {
		// метаданные не записались — подчищаем блоб, чтобы не копить сирот
		if delErr := s.blobs.Delete(ctx, locator); delErr != nil {
			s.logger.Errorw("orphan blob cleanup failed", "locator", locator, "error", delErr)
		}
		return nil, fmt.Errorf("%w: create record: %v", ErrStorage, err)
	}

	accessToken, err := s.tokens.IssueObjectAccess(ownerUserID, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	s.logger.Infow("object stored",
		"object_id", rec.ID,
		"owner", ownerUserID,
		"plaintext_size", rec.PlaintextSize,
		"ciphertext_size", rec.CiphertextSize,
	)
	return &UploadResult{ObjectID: rec.ID, AccessToken: accessToken, Meta: metaOf(rec)}, nil
}

// authorize проверяет токен в допустимых scope и владение объектом.
// Все причины отказа схлопываются в ErrAuthorization; детали уходят
// только в лог.
func (s *VaultService) authorize(ctx context.Context, objectID, accessToken, userID string, scopes ...token.Scope) (*model.ObjectRecord, error) {
	if _, err := s.tokens.VerifyScoped(accessToken, objectID, userID, scopes...); err != nil {
		s.logger.Warnw("token rejected", "object_id", objectID, "user", userID, "reason", err)
		return nil, ErrAuthorization
	}
	rec, err := s.objects.GetByID(ctx, objectID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load record: %v", ErrStorage, err)
	}
	if rec.OwnerUserID != userID {
		s.logger.Warnw("ownership mismatch", "object_id", objectID, "user", userID)
		return nil, ErrAuthorization
	}
	return rec, nil
}

// IssueDecryptionKey разворачивает материал объекта, кладёт его в кеш
// под свежей сессией и выпускает key_access токен, привязанный к ней.
// TTL записи кеша равен TTL токена.
func (s *VaultService) IssueDecryptionKey(ctx context.Context, objectID, accessToken, userID string) (*KeyIssue, error) {
	rec, err := s.authorize(ctx, objectID, accessToken, userID, token.ScopeObjectAccess, token.ScopeOneTime)
	if err != nil {
		return nil, err
	}

	key, iv, err := crypto.UnwrapMaterial(rec.WrappedKey, rec.WrappedIV, s.masterSecret)
	if err != nil {
		return nil, fmt.Errorf("unwrap material: %w", err)
	}

	sessionID := uuid.NewString()
	ttl := s.tokens.KeyTTL()
	s.cache.Put(objectID, sessionID, keycache.Material{
		Key:         key,
		IV:          iv,
		OwnerUserID: rec.OwnerUserID,
	}, ttl)

	keyToken, err := s.tokens.IssueKeyAccess(userID, objectID, sessionID)
	if err != nil {
		s.cache.Delete(objectID, sessionID)
		return nil, fmt.Errorf("issue key token: %w", err)
	}

	s.logger.Infow("decryption key issued", "object_id", objectID, "session_id", sessionID, "ttl", ttl)
	return &KeyIssue{
		KeyToken:  keyToken,
		SessionID: sessionID,
		ExpiresIn: int64(ttl.Seconds()),
		Key:       base64.StdEncoding.EncodeToString(key),
		IV:        base64.StdEncoding.EncodeToString(iv),
	}, nil
}

// VerifyKeyAccess гасит key_access токен: сверяет scope, объект и сессию,
// затем достаёт материал из кеша. Отсутствующая или истёкшая запись —
// отказ (fail closed).
func (s *VaultService) VerifyKeyAccess(ctx context.Context, objectID, keyToken, sessionID string) (*KeyRedeem, error) {
	claims, err := s.tokens.VerifyScoped(keyToken, objectID, "", token.ScopeKeyAccess)
	if err != nil {
		s.logger.Warnw("key token rejected", "object_id", objectID, "reason", err)
		return nil, ErrAuthorization
	}
	if claims.SessionID != sessionID {
		s.logger.Warnw("session mismatch on redeem", "object_id", objectID)
		return nil, ErrAuthorization
	}

	material, ok := s.cache.Get(objectID, sessionID)
	if !ok {
		s.logger.Warnw("cache entry missing or expired", "object_id", objectID, "session_id", sessionID)
		return nil, ErrAuthorization
	}
	return &KeyRedeem{
		Key: base64.StdEncoding.EncodeToString(material.Key),
		IV:  base64.StdEncoding.EncodeToString(material.IV),
	}, nil
}

// DownloadCiphertext отдаёт шифртекст и метаданные под теми же проверками,
// что и выдача ключа.
func (s *VaultService) DownloadCiphertext(ctx context.Context, objectID, accessToken, userID string) ([]byte, *ObjectMeta, error) {
	rec, err := s.authorize(ctx, objectID, accessToken, userID, token.ScopeObjectAccess, token.ScopeOneTime)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.blobs.Get(ctx, rec.StorageLocator)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: get blob: %v", ErrStorage, err)
	}
	meta := metaOf(rec)
	return data, &meta, nil
}

// DeleteObject — каскадное удаление: блоб, запись метаданных и все
// кеш-сессии объекта. Отказы хранилищ логируются, но не фатальны —
// лучше осиротевший блоб, чем вечный объект, который нельзя удалить.
func (s *VaultService) DeleteObject(ctx context.Context, objectID, userID string) error {
	rec, err := s.objects.GetByID(ctx, objectID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: load record: %v", ErrStorage, err)
	}
	if rec.OwnerUserID != userID {
		s.logger.Warnw("delete denied", "object_id", objectID, "user", userID)
		return ErrAuthorization
	}

	if err := s.blobs.Delete(ctx, rec.StorageLocator); err != nil {
		s.logger.Errorw("blob delete failed, continuing", "object_id", objectID, "error", err)
	}
	if err := s.objects.Delete(ctx, objectID); err != nil {
		s.logger.Errorw("record delete failed, continuing", "object_id", objectID, "error", err)
	}
	s.cache.DeleteObject(objectID)

	s.logger.Infow("object deleted", "object_id", objectID, "owner", userID)
	return nil
}

// IssueOneTimeToken выпускает одноразовый по назначению токен с TTL по
// выбору вызывающего (зажимается в допустимые границы).
func (s *VaultService) IssueOneTimeToken(ctx context.Context, objectID, accessToken, userID string, ttl time.Duration) (*OneTime, error) {
	if _, err := s.authorize(ctx, objectID, accessToken, userID, token.ScopeObjectAccess); err != nil {
		return nil, err
	}
	sessionID := uuid.NewString()
	signed, expiresAt, err := s.tokens.IssueOneTime(userID, objectID, sessionID, ttl)
	if err != nil {
		return nil, fmt.Errorf("issue one-time token: %w", err)
	}
	s.logger.Infow("one-time token issued", "object_id", objectID, "expires_at", expiresAt)
	return &OneTime{Token: signed, SessionID: sessionID, ExpiresAt: expiresAt}, nil
}

// ListObjects возвращает метаданные объектов пользователя.
func (s *VaultService) ListObjects(ctx context.Context, userID string) ([]ObjectMeta, error) {
	recs, err := s.objects.ListByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list records: %v", ErrStorage, err)
	}
	metas := make([]ObjectMeta, 0, len(recs))
	for i := range recs {
		metas = append(metas, metaOf(&recs[i]))
	}
	return metas, nil
}
