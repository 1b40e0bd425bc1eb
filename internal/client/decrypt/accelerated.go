package decrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// acceleratedBackend — чанкованная расшифровка через crypto/cipher,
// использующая AES-инструкции процессора. Состояние CBC переносится
// между чанками, поэтому прогресс можно отдавать по ходу работы.
type acceleratedBackend struct {
	chunkSize int
}

func newAcceleratedBackend(chunkSize int) *acceleratedBackend {
	if chunkSize < minChunkSize {
		chunkSize = minChunkSize
	}
	// чанк обязан быть кратен блоку
	chunkSize -= chunkSize % aes.BlockSize
	return &acceleratedBackend{chunkSize: chunkSize}
}

func (b *acceleratedBackend) Name() string { return "accelerated" }

func (b *acceleratedBackend) Decrypt(ciphertext, key, iv []byte, progress ProgressFunc) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	mode := cipher.NewCBCDecrypter(block, iv)

	out := make([]byte, len(ciphertext))
	total := len(ciphertext)
	for off := 0; off < total; off += b.chunkSize {
		end := off + b.chunkSize
		if end > total {
			end = total
		}
		mode.CryptBlocks(out[off:end], ciphertext[off:end])
		if progress != nil {
			progress(float64(end) / float64(total) * 100)
		}
	}
	return pkcs7Unpad(out)
}
