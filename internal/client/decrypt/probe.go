package decrypt

import (
	"bufio"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// Capabilities — результат зондирования платформы. Probe никогда не
// ошибается: на недостающие источники отвечают эвристики.
type Capabilities struct {
	Accelerated bool   `json:"accelerated"`
	AESNI       bool   `json:"aesni"`
	SIMD        bool   `json:"simd"`
	Cores       int    `json:"cores"`
	MemoryBytes uint64 `json:"memory_bytes"`
	ChunkSize   int    `json:"chunk_size"`
}

const (
	defaultChunkSize = 1 << 20 // 1MB
	minChunkSize     = 1024
)

// Probe определяет, доступен ли аппаратно ускоренный путь, и подбирает
// размер чанка под оценку памяти.
func Probe() Capabilities {
	caps := Capabilities{
		AESNI: cpuid.CPU.Supports(cpuid.AESNI),
		SIMD: cpuid.CPU.Supports(cpuid.SSE2) ||
			cpuid.CPU.Supports(cpuid.AVX2) ||
			runtime.GOARCH == "arm64",
		Cores: runtime.NumCPU(),
	}
	// на arm64 AES-инструкции доступны через crypto/aes без AESNI-флага
	caps.Accelerated = caps.AESNI || runtime.GOARCH == "arm64"
	caps.MemoryBytes = probeMemory()
	caps.ChunkSize = chunkSizeFor(caps.MemoryBytes)
	return caps
}

// probeMemory оценивает доступную память: /proc/meminfo, затем
// консервативный дефолт там, где его нет.
func probeMemory() uint64 {
	if total, ok := readMemInfoTotal("/proc/meminfo"); ok {
		return total
	}
	// платформа не раскрывает память; полагаемся на скромную оценку
	return 512 << 20
}

func readMemInfoTotal(path string) (uint64, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0, false
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, false
		}
		return kb * 1024, true
	}
	return 0, false
}

func chunkSizeFor(memoryBytes uint64) int {
	switch {
	case memoryBytes >= 1<<30:
		return defaultChunkSize
	case memoryBytes >= 256<<20:
		return 256 << 10
	default:
		return 64 << 10
	}
}
