// Package decrypt — клиентский движок расшифровки изображений:
// зондирование платформы, два взаимозаменяемых бэкенда и проверка
// результата. Ускоренный путь используется первым, деградация на
// интерпретируемый происходит прозрачно для вызывающего.
package decrypt

import (
	"crypto/aes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Mode — имя активного бэкенда.
type Mode string

const (
	ModeAccelerated Mode = "accelerated"
	ModeInterpreted Mode = "interpreted"
)

// Options управляют выбором бэкенда при инициализации.
type Options struct {
	// PreferAccelerated — пробовать ускоренный путь первым.
	PreferAccelerated bool
	// ForcedMode принуждает конкретный режим. Недоступный принуждённый
	// режим — жёсткая ошибка, без тихого отката.
	ForcedMode Mode
}

// DecryptOptions — параметры одного вызова DecryptImage.
type DecryptOptions struct {
	Progress ProgressFunc
	// Timeout ограничивает каждую попытку. Ноль — без ограничения.
	Timeout time.Duration
	// ExpectedSHA256 — hex-хеш исходного содержимого; при несовпадении
	// на ускоренном пути выполняется повтор на интерпретируемом.
	ExpectedSHA256 string
}

// Engine — инициализированный движок с основным и запасным бэкендами.
type Engine struct {
	caps     Capabilities
	mode     Mode
	primary  Backend
	fallback Backend // nil при принуждённом режиме
}

// Initialize зондирует платформу и собирает движок. Ошибки возможны
// только при принуждении недоступного режима: автоматический выбор
// всегда находит рабочий бэкенд.
func Initialize(opts Options) (*Engine, error) {
	caps := Probe()

	switch opts.ForcedMode {
	case ModeAccelerated:
		if !caps.Accelerated {
			return nil, fmt.Errorf("%w: accelerated path is not available", ErrUnsupported)
		}
		return &Engine{caps: caps, mode: ModeAccelerated, primary: newAcceleratedBackend(caps.ChunkSize)}, nil
	case ModeInterpreted:
		return &Engine{caps: caps, mode: ModeInterpreted, primary: newInterpretedBackend()}, nil
	case "":
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", ErrUnsupported, opts.ForcedMode)
	}

	if opts.PreferAccelerated && caps.Accelerated {
		return &Engine{
			caps:     caps,
			mode:     ModeAccelerated,
			primary:  newAcceleratedBackend(caps.ChunkSize),
			fallback: newInterpretedBackend(),
		}, nil
	}
	return &Engine{caps: caps, mode: ModeInterpreted, primary: newInterpretedBackend()}, nil
}

// Mode возвращает имя активного бэкенда.
func (e *Engine) Mode() Mode { return e.mode }

// Capabilities возвращает результат зондирования.
func (e *Engine) Capabilities() Capabilities { return e.caps }

// DecryptImage расшифровывает шифртекст материалом в base64.
// Валидация входа идёт до любых попыток: её ошибки не путаются с
// ошибками самого шифра. Таймаут считается провалом попытки, но не
// поводом для отката на запасной бэкенд.
func (e *Engine) DecryptImage(ciphertext []byte, keyB64, ivB64 string, opts DecryptOptions) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return nil, fmt.Errorf("%w: key is not valid base64", ErrInvalidInput)
	}
	iv, err := base64.StdEncoding.DecodeString(ivB64)
	if err != nil {
		return nil, fmt.Errorf("%w: iv is not valid base64", ErrInvalidInput)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: key must be 32 bytes, got %d", ErrInvalidInput, len(key))
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("%w: iv must be %d bytes, got %d", ErrInvalidInput, aes.BlockSize, len(iv))
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length must be a positive multiple of %d", ErrInvalidInput, aes.BlockSize)
	}

	progress := monotonic(opts.Progress)

	plaintext, primErr := runWithTimeout(e.primary, ciphertext, key, iv, progress, opts.Timeout)
	if primErr == nil {
		primErr = checkIntegrity(plaintext, opts.ExpectedSHA256, e.primary.Name())
		if primErr == nil {
			return plaintext, nil
		}
	}

	// таймаут не ретраится: медленный бэкенд не станет быстрее
	if e.fallback == nil || errors.Is(primErr, ErrTimeout) {
		return nil, primErr
	}

	plaintext, fbErr := runWithTimeout(e.fallback, ciphertext, key, iv, progress, opts.Timeout)
	if fbErr == nil {
		fbErr = checkIntegrity(plaintext, opts.ExpectedSHA256, e.fallback.Name())
		if fbErr == nil {
			return plaintext, nil
		}
	}
	// оба бэкенда провалились: сохраняем оба контекста
	return nil, errors.Join(primErr, fbErr)
}

func runWithTimeout(b Backend, ciphertext, key, iv []byte, progress ProgressFunc, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		data, err := b.Decrypt(ciphertext, key, iv, progress)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		return data, nil
	}

	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		data, err := b.Decrypt(ciphertext, key, iv, progress)
		ch <- result{data: data, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), r.err)
		}
		return r.data, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("%s: %w", b.Name(), ErrTimeout)
	}
}

func checkIntegrity(plaintext []byte, expectedSHA256, backend string) error {
	if expectedSHA256 == "" {
		return nil
	}
	sum := sha256.Sum256(plaintext)
	if hex.EncodeToString(sum[:]) != expectedSHA256 {
		return fmt.Errorf("%s: %w", backend, ErrIntegrityCheckFailed)
	}
	return nil
}

// monotonic гарантирует неубывающий прогресс даже при повторе на
// запасном бэкенде, который начинает отсчёт заново.
func monotonic(p ProgressFunc) ProgressFunc {
	if p == nil {
		return nil
	}
	var mu sync.Mutex
	var high float64
	return func(percent float64) {
		mu.Lock()
		defer mu.Unlock()
		if percent <= high {
			return
		}
		high = percent
		p(percent)
	}
}

// PerformanceInfo — диагностика движка. Никогда не ошибается.
type PerformanceInfo struct {
	Mode         Mode         `json:"mode"`
	Capabilities Capabilities `json:"capabilities"`
	HasFallback  bool         `json:"has_fallback"`
}

// GetPerformanceInfo возвращает сведения о выбранном пути и платформе.
func (e *Engine) GetPerformanceInfo() PerformanceInfo {
	return PerformanceInfo{Mode: e.mode, Capabilities: e.caps, HasFallback: e.fallback != nil}
}

// TestDecryption — самопроверка на фиксированном векторе. Возвращает
// false вместо ошибки: диагностика не должна ронять вызывающего.
func (e *Engine) TestDecryption() bool {
	key := make([]byte, 32)
	iv := make([]byte, aes.BlockSize)
	for i := range key {
		key[i] = byte(i)
	}
	for i := range iv {
		iv[i] = byte(i * 3)
	}

	// один блок PKCS7-паддинга: пустой plaintext
	block, err := aes.NewCipher(key)
	if err != nil {
		return false
	}
	padded := make([]byte, aes.BlockSize)
	for i := range padded {
		padded[i] = aes.BlockSize
	}
	ct := make([]byte, aes.BlockSize)
	for i := range padded {
		padded[i] ^= iv[i]
	}
	block.Encrypt(ct, padded)

	out, err := e.primary.Decrypt(ct, key, iv, nil)
	return err == nil && len(out) == 0
}
