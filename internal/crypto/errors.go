package crypto

import "errors"

// Закрытый набор ошибок шифрующего слоя. Вызывающий код различает их
// через errors.Is и не опирается на текст.
var (
	// ErrDecode — битый base64 во входных данных.
	ErrDecode = errors.New("crypto: malformed base64 input")

	// ErrInvalidKeyMaterial — ключ или IV неверной длины.
	ErrInvalidKeyMaterial = errors.New("crypto: invalid key material")

	// ErrDecryptionFailed — не сошёлся padding. Неверный ключ и повреждённый
	// шифртекст в CBC неразличимы, поэтому причина одна на оба случая.
	ErrDecryptionFailed = errors.New("crypto: decryption failed")
)
