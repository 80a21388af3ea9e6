package detector

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/yalue/onnxruntime_go"
)

var runtimeOnce struct {
	sync.Mutex
	done bool
}

// libraryName returns the ONNX Runtime library filename for the current OS.
func libraryName() (string, error) {
	switch runtime.GOOS {
	case "linux":
		return "libonnxruntime.so", nil
	case "darwin":
		return "libonnxruntime.dylib", nil
	case "windows":
		return "onnxruntime.dll", nil
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
}

// libraryCandidates lists where the shared library is looked for when no
// explicit path is configured. ONNXRUNTIME_SHARED_LIBRARY_PATH wins.
func libraryCandidates() []string {
	var paths []string
	if env := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); env != "" {
		paths = append(paths, env)
	}
	paths = append(paths,
		"/usr/local/lib/libonnxruntime.so",
		"/usr/lib/libonnxruntime.so",
		"/opt/onnxruntime/cpu/lib/libonnxruntime.so",
	)
	if name, err := libraryName(); err == nil {
		if cwd, err := os.Getwd(); err == nil {
			paths = append(paths, filepath.Join(cwd, "onnxruntime", "lib", name))
		}
	}
	return paths
}

// initRuntime points onnxruntime_go at the shared library and initialises the
// environment once per process.
func initRuntime(libraryPath string) error {
	runtimeOnce.Lock()
	defer runtimeOnce.Unlock()
	if runtimeOnce.done || onnxruntime_go.IsInitialized() {
		runtimeOnce.done = true
		return nil
	}

	path := libraryPath
	if path == "" {
		for _, candidate := range libraryCandidates() {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path == "" {
		return fmt.Errorf("ONNX Runtime library not found in %v", libraryCandidates())
	}

	onnxruntime_go.SetSharedLibraryPath(path)
	if err := onnxruntime_go.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime from %s: %w", path, err)
	}
	runtimeOnce.done = true
	return nil
}
