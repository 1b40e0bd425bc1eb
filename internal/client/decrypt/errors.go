package decrypt

import "errors"

var (
	// ErrInvalidInput — ключ не 32 байта, IV не 16 или шифртекст не кратен блоку.
	// Отличается от ErrDecryptionFailed: до самого шифра дело не дошло.
	ErrInvalidInput = errors.New("decrypt: invalid input")

	// ErrDecryptionFailed — неверный ключ или повреждённый шифртекст;
	// по CBC с PKCS7 эти случаи неразличимы.
	ErrDecryptionFailed = errors.New("decrypt: decryption failed")

	// ErrIntegrityCheckFailed — расшифровка прошла, но проверка
	// содержимого не сошлась.
	ErrIntegrityCheckFailed = errors.New("decrypt: integrity check failed")

	// ErrTimeout — попытка не уложилась в отведённое время. Работа
	// бросается по принципу best effort, сам шифр не прерывается.
	ErrTimeout = errors.New("decrypt: timed out")

	// ErrUnsupported — жёстко запрошенный режим недоступен на платформе.
	ErrUnsupported = errors.New("decrypt: requested mode unsupported")
)
