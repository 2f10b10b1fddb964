package inference

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	ort "github.com/yalue/onnxruntime_go"
	"golang.org/x/sys/cpu"
	"golang.org/x/xerrors"
)

// LibraryName returns the ONNX Runtime shared library file name for the host OS.
func LibraryName() string {
	switch runtime.GOOS {
	case "darwin":
		return "libonnxruntime.dylib"
	case "windows":
		return "onnxruntime.dll"
	default:
		return "libonnxruntime.so"
	}
}

// ResolveLibrary locates the runtime library. A directory is joined with the
// platform library name; an empty path falls back to ./lib.
func ResolveLibrary(path string) (string, error) {
	if path == "" {
		path = "lib"
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("onnxruntime library not found: %w", err)
	}
	if info.IsDir() {
		path = filepath.Join(path, LibraryName())
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("onnxruntime library not found: %w", err)
		}
	}

	return filepath.Abs(path)
}

// InitRuntime loads the shared library and initializes the ONNX environment.
// It must be called once before any session is created.
func InitRuntime(libPath string) error {
	resolved, err := ResolveLibrary(libPath)
	if err != nil {
		return xerrors.Errorf("init onnxruntime: %w", err)
	}

	ort.SetSharedLibraryPath(resolved)
	if err := ort.InitializeEnvironment(); err != nil {
		return xerrors.Errorf("init onnxruntime environment: %w", err)
	}

	features := HostFeatures()
	slog.Info("onnxruntime initialized",
		slog.String("library", resolved),
		slog.Bool("avx2", features.AVX2),
		slog.Bool("avx512", features.AVX512),
		slog.Bool("neon", features.NEON),
	)
	return nil
}

func ShutdownRuntime() {
	if err := ort.DestroyEnvironment(); err != nil {
		slog.Warn("failed to destroy ONNX environment", slog.Any("error", err))
	}
}

// CPUFeatures are the vector extensions that change how many threads a
// session should run.
type CPUFeatures struct {
	AVX2   bool
	AVX512 bool
	NEON   bool
}

func HostFeatures() CPUFeatures {
	return CPUFeatures{
		AVX2:   cpu.X86.HasAVX2,
		AVX512: cpu.X86.HasAVX512F,
		NEON:   cpu.ARM64.HasASIMD,
	}
}

// IntraOpThreads splits the host CPUs across all pooled sessions so
// concurrent runs do not oversubscribe the host.
func IntraOpThreads(totalSessions int) int {
	return intraOpThreads(HostFeatures(), runtime.NumCPU(), totalSessions)
}

// intraOpThreads gives each session an equal share of numCPU. AVX-512 cores
// drop their clock when many of them run wide kernels at once, so those hosts
// get half the share. Hosts with no vector extension run the scalar kernels
// single threaded.
func intraOpThreads(f CPUFeatures, numCPU, totalSessions int) int {
	if totalSessions < 1 {
		totalSessions = 1
	}
	if !f.AVX2 && !f.AVX512 && !f.NEON {
		return DefaultIntraThread
	}

	n := numCPU / totalSessions
	if f.AVX512 {
		n /= 2
	}
	if n < DefaultIntraThread {
		return DefaultIntraThread
	}
	return n
}
