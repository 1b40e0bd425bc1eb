package decrypt

import "bytes"

// VerificationResult — итог проверки расшифрованного изображения.
// Единственный доступный сигнал целостности: режим шифра не
// аутентифицирован.
type VerificationResult struct {
	IsValid  bool   `json:"is_valid"`
	FileType string `json:"file_type,omitempty"`
	FileSize int    `json:"file_size"`
	Reason   string `json:"reason,omitempty"`
}

// VerifyOptions — пороги размера для случая, когда сигнатурных байтов
// не хватает.
type VerifyOptions struct {
	MinSize int
	MaxSize int
}

// DefaultVerifyOptions — консервативные пороги: всё короче сигнатуры
// изображением не считается.
func DefaultVerifyOptions() VerifyOptions {
	return VerifyOptions{MinSize: signatureLen, MaxSize: 100 << 20}
}

// signatureLen — минимум байтов для распознавания сигнатуры.
const signatureLen = 8

var pngSignature = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

// VerifyDecryptedImage сверяет ведущие байты с сигнатурами известных
// форматов. Когда данных меньше сигнатуры, решает эвристика по размеру.
func VerifyDecryptedImage(data []byte, opts VerifyOptions) VerificationResult {
	res := VerificationResult{FileSize: len(data)}

	if len(data) < signatureLen {
		if len(data) >= opts.MinSize && len(data) <= opts.MaxSize {
			res.IsValid = true
			res.Reason = "size within configured bounds"
		} else {
			res.Reason = "too short for signature detection"
		}
		return res
	}

	if ft := detectImageType(data); ft != "" {
		res.IsValid = true
		res.FileType = ft
		return res
	}
	res.Reason = "no known image signature"
	return res
}

func detectImageType(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	case bytes.HasPrefix(data, pngSignature):
		return "image/png"
	case bytes.HasPrefix(data, []byte("GIF87a")) || bytes.HasPrefix(data, []byte("GIF89a")):
		return "image/gif"
	case len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "image/webp"
	case bytes.HasPrefix(data, []byte("BM")):
		return "image/bmp"
	}
	return ""
}
