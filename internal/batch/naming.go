package batch

import (
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/MeKo-Tech/idcrop/internal/idtext"
)

const fallbackNamePrefix = "cropped_"

// outputName is the file name for an item before collision handling.
func outputName(it Item, id idtext.ExtractedID, ext string) string {
	if id.Found() {
		return idtext.SanitizeFilename(id.ID) + ext
	}
	return fallbackNamePrefix + it.stem() + ext
}

// nameSet hands out output names that are unique within one run. A taken
// name gets _2, _3 and so on before the extension. Names are compared
// case-insensitively so outputs do not clash on case-folding filesystems.
type nameSet struct {
	mu   sync.Mutex
	used map[string]struct{}
}

func newNameSet() *nameSet {
	return &nameSet{used: make(map[string]struct{})}
}

// reserve returns name or the first free suffixed variant of it.
func (s *nameSet) reserve(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	candidate := name
	for n := 2; ; n++ {
		key := strings.ToLower(candidate)
		if _, taken := s.used[key]; !taken {
			s.used[key] = struct{}{}
			return candidate
		}
		candidate = base + "_" + strconv.Itoa(n) + ext
	}
}

// release frees a name whose output was never written.
func (s *nameSet) release(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.used, strings.ToLower(name))
}
