package service

import "errors"

// Закрытый набор ошибок сервисного слоя (§ карта статусов в handlers).
var (
	// ErrInvalidInput — ошибка вызывающего; не ретраится.
	ErrInvalidInput = errors.New("service: invalid input")

	// ErrAuthorization — любой отказ доступа: плохой/истёкший токен,
	// чужой объект, несовпадение сессии. Наружу уходит только общая
	// категория, чтобы ответы не работали оракулом причин.
	ErrAuthorization = errors.New("service: access denied")

	// ErrNotFound — объект отсутствует.
	ErrNotFound = errors.New("service: object not found")

	// ErrStorage — отказ инжектированного хранилища.
	ErrStorage = errors.New("service: storage failure")
)
