package decrypt

import (
	"crypto/aes"
	"fmt"
)

// ProgressFunc получает процент выполнения от 0 до 100.
type ProgressFunc func(percent float64)

// Backend — взаимозаменяемая реализация расшифровки AES-256-CBC.
// Вход считается провалидированным движком.
type Backend interface {
	Name() string
	Decrypt(ciphertext, key, iv []byte, progress ProgressFunc) ([]byte, error)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: bad padded length", ErrDecryptionFailed)
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(data) {
		return nil, fmt.Errorf("%w: bad padding", ErrDecryptionFailed)
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, fmt.Errorf("%w: bad padding", ErrDecryptionFailed)
		}
	}
	return data[:len(data)-pad], nil
}
