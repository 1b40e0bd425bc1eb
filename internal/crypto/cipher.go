// Package crypto реализует серверную криптографию хранилища: генерацию
// ключевого материала, AES-256-CBC для содержимого и envelope-обёртку
// ключей под мастер-секретом процесса.
//
// Режим CBC даёт только конфиденциальность: тега аутентичности нет,
// подмена шифртекста обнаруживается лишь косвенно по хешу содержимого.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
)

const (
	// KeySize — длина ключа AES-256 в байтах.
	KeySize = 32
	// IVSize — длина IV, равна размеру блока AES.
	IVSize = aes.BlockSize
)

// randRead — источник случайных байтов; подменяется в тестах для
// имитации отказа генератора.
var randRead = func(b []byte) error {
	_, err := io.ReadFull(rand.Reader, b)
	return err
}

// GenerateKey возвращает свежий криптографически случайный 256-битный ключ.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if err := randRead(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

// GenerateIV возвращает свежий случайный IV размером в блок.
func GenerateIV() ([]byte, error) {
	iv := make([]byte, IVSize)
	if err := randRead(iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}
	return iv, nil
}

// Encrypt шифрует plaintext алгоритмом AES-256-CBC с PKCS#7-паддингом.
func Encrypt(plaintext, key, iv []byte) ([]byte, error) {
	if len(key) != KeySize || len(iv) != IVSize {
		return nil, ErrInvalidKeyMaterial
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrInvalidKeyMaterial
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

// Decrypt — обратная операция к Encrypt. Возвращает ErrDecryptionFailed,
// если после расшифровки не сошёлся паддинг.
func Decrypt(ciphertext, key, iv []byte) ([]byte, error) {
	if len(key) != KeySize || len(iv) != IVSize {
		return nil, ErrInvalidKeyMaterial
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrDecryptionFailed
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrInvalidKeyMaterial
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return pkcs7Unpad(out, aes.BlockSize)
}

// wrappingKey выводит 256-битный ключ обёртки из мастер-секрета.
func wrappingKey(masterSecret string) []byte {
	sum := sha256.Sum256([]byte(masterSecret))
	return sum[:]
}

// EnvelopeWrap шифрует одно значение (ключ или IV) под ключом обёртки
// и возвращает base64(wrapIV ‖ ciphertext). Wrap-IV генерируется заново
// для каждого значения.
func EnvelopeWrap(value []byte, masterSecret string) (string, error) {
	wrapIV, err := GenerateIV()
	if err != nil {
		return "", err
	}
	ct, err := Encrypt(value, wrappingKey(masterSecret), wrapIV)
	if err != nil {
		return "", err
	}
	packed := make([]byte, 0, len(wrapIV)+len(ct))
	packed = append(packed, wrapIV...)
	packed = append(packed, ct...)
	return base64.StdEncoding.EncodeToString(packed), nil
}

// EnvelopeUnwrap — точная инверсия EnvelopeWrap: первые 16 байт —
// wrap-IV, остальное — шифртекст значения.
func EnvelopeUnwrap(encoded string, masterSecret string) ([]byte, error) {
	packed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(packed) < IVSize+aes.BlockSize {
		return nil, ErrDecode
	}
	wrapIV, ct := packed[:IVSize], packed[IVSize:]
	return Decrypt(ct, wrappingKey(masterSecret), wrapIV)
}

// WrapMaterial оборачивает ключ и IV объекта по отдельности,
// каждое значение — под собственным wrap-IV.
func WrapMaterial(key, iv []byte, masterSecret string) (wrappedKey, wrappedIV string, err error) {
	if len(key) != KeySize || len(iv) != IVSize {
		return "", "", ErrInvalidKeyMaterial
	}
	if wrappedKey, err = EnvelopeWrap(key, masterSecret); err != nil {
		return "", "", err
	}
	if wrappedIV, err = EnvelopeWrap(iv, masterSecret); err != nil {
		return "", "", err
	}
	return wrappedKey, wrappedIV, nil
}

// UnwrapMaterial разворачивает пару wrappedKey/wrappedIV и проверяет длины.
func UnwrapMaterial(wrappedKey, wrappedIV, masterSecret string) (key, iv []byte, err error) {
	if key, err = EnvelopeUnwrap(wrappedKey, masterSecret); err != nil {
		return nil, nil, err
	}
	if iv, err = EnvelopeUnwrap(wrappedIV, masterSecret); err != nil {
		return nil, nil, err
	}
	if len(key) != KeySize || len(iv) != IVSize {
		return nil, nil, ErrInvalidKeyMaterial
	}
	return key, iv, nil
}

// ContentHash возвращает SHA-256 содержимого в hex.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VerifyIntegrity сравнивает хеш данных с ожидаемым hex-дайджестом.
// Хеш не секрет, так что constant-time здесь не требуется, но сравнение
// всё равно делаем через subtle — оно бесплатно.
func VerifyIntegrity(data []byte, wantHex string) bool {
	got := ContentHash(data)
	return subtle.ConstantTimeCompare([]byte(got), []byte(wantHex)) == 1
}

// pkcs7Pad дополняет данные до кратности blockSize по PKCS#7.
func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

// pkcs7Unpad снимает PKCS#7-паддинг, валидируя каждый его байт.
func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrDecryptionFailed
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, ErrDecryptionFailed
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrDecryptionFailed
		}
	}
	return data[:len(data)-n], nil
}
