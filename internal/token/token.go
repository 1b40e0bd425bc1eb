// Package token выпускает и проверяет три вида scoped-токенов доступа.
// Токены stateless: серверного списка отзыва нет, единственный механизм
// инвалидации — истечение срока.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Scope — область действия токена.
type Scope string

const (
	// ScopeObjectAccess разрешает выдачу ключа и скачивание шифртекста.
	ScopeObjectAccess Scope = "object_access"
	// ScopeKeyAccess разрешает погашение закешированного ключа в рамках сессии.
	ScopeKeyAccess Scope = "key_access"
	// ScopeOneTime — одноразовый по назначению токен с TTL по выбору вызывающего.
	ScopeOneTime Scope = "one_time_access"
)

const (
	issuer   = "imagevault"
	audience = "imagevault-clients"

	// Границы TTL одноразового токена.
	OneTimeTTLMin = 60 * time.Second
	OneTimeTTLMax = 3600 * time.Second
)

// Закрытый набор причин отказа проверки.
var (
	ErrMalformed       = errors.New("token: malformed token")
	ErrExpired         = errors.New("token: expired")
	ErrBadSignature    = errors.New("token: bad signature")
	ErrWrongIssuer     = errors.New("token: wrong issuer")
	ErrWrongScope      = errors.New("token: scope mismatch")
	ErrObjectMismatch  = errors.New("token: object mismatch")
	ErrUserMismatch    = errors.New("token: user mismatch")
	ErrSessionMismatch = errors.New("token: session mismatch")
)

// Claims — общая форма всех трёх токенов.
type Claims struct {
	jwt.RegisteredClaims
	Scope     Scope  `json:"scope"`
	ObjectID  string `json:"object_id"`
	SessionID string `json:"session_id,omitempty"`
	Nonce     string `json:"nonce"`
}

// Authority подписывает и проверяет токены доступа. Часы инжектируются,
// чтобы истечение тестировалось без ожидания настенного времени.
type Authority struct {
	secret    []byte
	objectTTL time.Duration
	keyTTL    time.Duration
	clock     clockwork.Clock
}

// NewAuthority создаёт подписанта с заданными TTL для object_access и key_access.
func NewAuthority(signingSecret string, objectTTL, keyTTL time.Duration, clock clockwork.Clock) *Authority {
	return &Authority{
		secret:    []byte(signingSecret),
		objectTTL: objectTTL,
		keyTTL:    keyTTL,
		clock:     clock,
	}
}

// KeyTTL — срок жизни key_access токена; он же TTL записи в кеше ключей.
func (a *Authority) KeyTTL() time.Duration { return a.keyTTL }

func (a *Authority) issue(userID, objectID, sessionID string, scope Scope, ttl time.Duration) (string, error) {
	now := a.clock.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Scope:     scope,
		ObjectID:  objectID,
		SessionID: sessionID,
		Nonce:     uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// IssueObjectAccess выпускает object_access токен владельцу объекта.
func (a *Authority) IssueObjectAccess(userID, objectID string) (string, error) {
	return a.issue(userID, objectID, "", ScopeObjectAccess, a.objectTTL)
}

// IssueKeyAccess выпускает key_access токен, привязанный к сессии кеша.
func (a *Authority) IssueKeyAccess(userID, objectID, sessionID string) (string, error) {
	return a.issue(userID, objectID, sessionID, ScopeKeyAccess, a.keyTTL)
}

// IssueOneTime выпускает одноразовый токен. TTL зажимается в [60s; 3600s].
func (a *Authority) IssueOneTime(userID, objectID, sessionID string, ttl time.Duration) (string, time.Time, error) {
	if ttl < OneTimeTTLMin {
		ttl = OneTimeTTLMin
	}
	if ttl > OneTimeTTLMax {
		ttl = OneTimeTTLMax
	}
	signed, err := a.issue(userID, objectID, sessionID, ScopeOneTime, ttl)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, a.clock.Now().Add(ttl), nil
}

// Verify проверяет подпись, срок и issuer/audience, возвращая claims.
func (a *Authority) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithTimeFunc(a.clock.Now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrBadSignature
		case errors.Is(err, jwt.ErrTokenInvalidIssuer), errors.Is(err, jwt.ErrTokenInvalidAudience):
			return nil, ErrWrongIssuer
		default:
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	return claims, nil
}

// VerifyScoped дополнительно сверяет scope из допустимого набора, objectID
// и (если userID непустой) владельца. Причина отказа структурирована —
// наружу вызывающий обязан отдавать её обобщённо.
func (a *Authority) VerifyScoped(tokenString, objectID, userID string, allowed ...Scope) (*Claims, error) {
	claims, err := a.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	scopeOK := false
	for _, s := range allowed {
		if claims.Scope == s {
			scopeOK = true
			break
		}
	}
	if !scopeOK {
		return nil, ErrWrongScope
	}
	if claims.ObjectID != objectID {
		return nil, ErrObjectMismatch
	}
	if userID != "" && claims.Subject != userID {
		return nil, ErrUserMismatch
	}
	return claims, nil
}

// IsNearExpiry декодирует токен без проверки подписи (транспорт считается
// доверенным) и сообщает, осталось ли жить меньше порога. Используется
// клиентом как сигнал к проактивному обновлению.
func (a *Authority) IsNearExpiry(tokenString string, threshold time.Duration) bool {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return true
	}
	return claims.ExpiresAt.Time.Sub(a.clock.Now()) <= threshold
}
