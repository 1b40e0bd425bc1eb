package decrypt

import (
	"crypto/aes"
	"fmt"
)

// interpretedBackend — поблочная ручная расшифровка CBC. Медленнее
// чанкованного пути, но не зависит ни от каких возможностей платформы
// сверх самого блочного шифра.
type interpretedBackend struct{}

func newInterpretedBackend() *interpretedBackend { return &interpretedBackend{} }

func (b *interpretedBackend) Name() string { return "interpreted" }

func (b *interpretedBackend) Decrypt(ciphertext, key, iv []byte, progress ProgressFunc) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	total := len(ciphertext)
	out := make([]byte, total)
	prev := iv
	for off := 0; off < total; off += aes.BlockSize {
		block.Decrypt(out[off:off+aes.BlockSize], ciphertext[off:off+aes.BlockSize])
		for i := 0; i < aes.BlockSize; i++ {
			out[off+i] ^= prev[i]
		}
		prev = ciphertext[off : off+aes.BlockSize]
		if progress != nil {
			progress(float64(off+aes.BlockSize) / float64(total) * 100)
		}
	}
	return pkcs7Unpad(out)
}
