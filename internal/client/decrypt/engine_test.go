package decrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMaterial(t *testing.T) (key, iv []byte, keyB64, ivB64 string) {
	t.Helper()
	key = bytes.Repeat([]byte{0xA5}, 32)
	iv = bytes.Repeat([]byte{0x3C}, aes.BlockSize)
	return key, iv, base64.StdEncoding.EncodeToString(key), base64.StdEncoding.EncodeToString(iv)
}

// encryptCBC — эталонное шифрование для тестов.
func encryptCBC(t *testing.T, plaintext, key, iv []byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(key)
	require.NoError(t, err)

	pad := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := append(append([]byte{}, plaintext...), bytes.Repeat([]byte{byte(pad)}, pad)...)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out
}

type failingBackend struct{ msg string }

func (b *failingBackend) Name() string { return "failing" }
func (b *failingBackend) Decrypt(_, _, _ []byte, _ ProgressFunc) ([]byte, error) {
	return nil, errors.New(b.msg)
}

type slowBackend struct{ delay time.Duration }

func (b *slowBackend) Name() string { return "slow" }
func (b *slowBackend) Decrypt(ciphertext, key, iv []byte, progress ProgressFunc) ([]byte, error) {
	time.Sleep(b.delay)
	return newInterpretedBackend().Decrypt(ciphertext, key, iv, progress)
}

func TestBackends_AgreeOnPlaintext(t *testing.T) {
	key, iv, _, _ := testMaterial(t)
	plaintext := bytes.Repeat([]byte("P1"), 512)
	ct := encryptCBC(t, plaintext, key, iv)

	for _, b := range []Backend{newAcceleratedBackend(4096), newInterpretedBackend()} {
		got, err := b.Decrypt(append([]byte{}, ct...), key, iv, nil)
		require.NoError(t, err, b.Name())
		assert.Equal(t, plaintext, got, b.Name())
	}
}

func TestBackends_WrongKeyFails(t *testing.T) {
	key, iv, _, _ := testMaterial(t)
	ct := encryptCBC(t, []byte("payload"), key, iv)

	wrong := bytes.Repeat([]byte{0x11}, 32)
	for _, b := range []Backend{newAcceleratedBackend(4096), newInterpretedBackend()} {
		_, err := b.Decrypt(append([]byte{}, ct...), wrong, iv, nil)
		if err == nil {
			// ~1/255 шанс случайно валидного паддинга
			t.Skipf("%s: padding collision", b.Name())
		}
		assert.ErrorIs(t, err, ErrDecryptionFailed, b.Name())
	}
}

func TestInitialize_Modes(t *testing.T) {
	e, err := Initialize(Options{ForcedMode: ModeInterpreted})
	require.NoError(t, err)
	assert.Equal(t, ModeInterpreted, e.Mode())
	assert.False(t, e.GetPerformanceInfo().HasFallback)

	_, err = Initialize(Options{ForcedMode: Mode("quantum")})
	assert.ErrorIs(t, err, ErrUnsupported)

	e, err = Initialize(Options{PreferAccelerated: true})
	require.NoError(t, err)
	if e.Capabilities().Accelerated {
		assert.Equal(t, ModeAccelerated, e.Mode())
		assert.True(t, e.GetPerformanceInfo().HasFallback)
	} else {
		assert.Equal(t, ModeInterpreted, e.Mode())
	}
}

func TestDecryptImage_InputValidation(t *testing.T) {
	e, err := Initialize(Options{ForcedMode: ModeInterpreted})
	require.NoError(t, err)
	_, _, keyB64, ivB64 := testMaterial(t)
	ct := make([]byte, aes.BlockSize)

	cases := []struct {
		name string
		ct   []byte
		key  string
		iv   string
	}{
		{"bad key base64", ct, "%%%", ivB64},
		{"bad iv base64", ct, keyB64, "%%%"},
		{"short key", ct, base64.StdEncoding.EncodeToString(make([]byte, 16)), ivB64},
		{"short iv", ct, keyB64, base64.StdEncoding.EncodeToString(make([]byte, 8))},
		{"empty ciphertext", nil, keyB64, ivB64},
		{"unaligned ciphertext", make([]byte, 17), keyB64, ivB64},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.DecryptImage(tc.ct, tc.key, tc.iv, DecryptOptions{})
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestDecryptImage_RoundTrip(t *testing.T) {
	key, iv, keyB64, ivB64 := testMaterial(t)
	plaintext := bytes.Repeat([]byte("P1"), 512)
	ct := encryptCBC(t, plaintext, key, iv)

	e, err := Initialize(Options{PreferAccelerated: true})
	require.NoError(t, err)

	sum := sha256.Sum256(plaintext)
	got, err := e.DecryptImage(ct, keyB64, ivB64, DecryptOptions{
		ExpectedSHA256: hex.EncodeToString(sum[:]),
	})
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

// Отказ основного бэкенда прозрачно перекрывается запасным.
func TestDecryptImage_FallbackOnPrimaryFailure(t *testing.T) {
	key, iv, keyB64, ivB64 := testMaterial(t)
	plaintext := []byte("still readable")
	ct := encryptCBC(t, plaintext, key, iv)

	e := &Engine{
		mode:     ModeAccelerated,
		primary:  &failingBackend{msg: "simulated accelerated crash"},
		fallback: newInterpretedBackend(),
	}

	got, err := e.DecryptImage(ct, keyB64, ivB64, DecryptOptions{})
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

// Двойной провал сохраняет контексты обоих бэкендов.
func TestDecryptImage_DoubleFailureKeepsBothContexts(t *testing.T) {
	_, _, keyB64, ivB64 := testMaterial(t)
	ct := make([]byte, aes.BlockSize)

	e := &Engine{
		mode:     ModeAccelerated,
		primary:  &failingBackend{msg: "primary exploded"},
		fallback: &failingBackend{msg: "fallback exploded"},
	}

	_, err := e.DecryptImage(ct, keyB64, ivB64, DecryptOptions{})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "primary exploded"))
	assert.True(t, strings.Contains(err.Error(), "fallback exploded"))
}

// Таймаут не повод переключаться на запасной бэкенд.
func TestDecryptImage_TimeoutIsNotRetried(t *testing.T) {
	key, iv, keyB64, ivB64 := testMaterial(t)
	ct := encryptCBC(t, []byte("payload"), key, iv)

	e := &Engine{
		mode:     ModeAccelerated,
		primary:  &slowBackend{delay: 200 * time.Millisecond},
		fallback: &failingBackend{msg: "fallback must not run"},
	}

	_, err := e.DecryptImage(ct, keyB64, ivB64, DecryptOptions{Timeout: 10 * time.Millisecond})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.False(t, strings.Contains(err.Error(), "fallback must not run"))
}

// Несовпадение контрольной суммы на основном пути ведёт к повтору;
// повторное несовпадение — терминальная ошибка целостности.
func TestDecryptImage_IntegrityMismatch(t *testing.T) {
	key, iv, keyB64, ivB64 := testMaterial(t)
	ct := encryptCBC(t, []byte("payload"), key, iv)

	e := &Engine{
		mode:     ModeAccelerated,
		primary:  newAcceleratedBackend(4096),
		fallback: newInterpretedBackend(),
	}

	_, err := e.DecryptImage(ct, keyB64, ivB64, DecryptOptions{
		ExpectedSHA256: strings.Repeat("0", 64),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIntegrityCheckFailed)
}

func TestDecryptImage_ProgressIsMonotonic(t *testing.T) {
	key, iv, keyB64, ivB64 := testMaterial(t)
	plaintext := bytes.Repeat([]byte("x"), 64*1024)
	ct := encryptCBC(t, plaintext, key, iv)

	e := &Engine{
		mode:    ModeAccelerated,
		primary: newAcceleratedBackend(4096),
	}

	var seen []float64
	_, err := e.DecryptImage(ct, keyB64, ivB64, DecryptOptions{
		Progress: func(p float64) { seen = append(seen, p) },
	})
	require.NoError(t, err)
	require.NotEmpty(t, seen)
	for i := 1; i < len(seen); i++ {
		assert.Greater(t, seen[i], seen[i-1])
	}
	assert.InDelta(t, 100, seen[len(seen)-1], 0.001)
}

func TestEngine_Diagnostics(t *testing.T) {
	e, err := Initialize(Options{PreferAccelerated: true})
	require.NoError(t, err)

	info := e.GetPerformanceInfo()
	assert.NotZero(t, info.Capabilities.Cores)
	assert.NotZero(t, info.Capabilities.ChunkSize)
	assert.True(t, e.TestDecryption())
}

func TestProbe_NeverZeroValues(t *testing.T) {
	caps := Probe()
	assert.Greater(t, caps.Cores, 0)
	assert.Greater(t, caps.MemoryBytes, uint64(0))
	assert.GreaterOrEqual(t, caps.ChunkSize, minChunkSize)
}
