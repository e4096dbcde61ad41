package research

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// markerPattern matches any citation marker shaped token, including ones the
// registry never issued, so that stray markers surface as errors.
var markerPattern = regexp.MustCompile(`\[\[cite:[^\[\]\s]*\]\]`)

// SourceRegistry maps canonical URLs to stable source ids for one run.
// It is the only state shared between concurrent search branches.
type SourceRegistry struct {
	tag string

	mu      sync.RWMutex
	byURL   map[string]int // canonical URL -> index into sources
	byMark  map[string]int // marker -> index into sources
	sources []Source
}

// NewSourceRegistry creates an empty registry whose markers carry tag.
func NewSourceRegistry(tag string) *SourceRegistry {
	return &SourceRegistry{
		tag:    tag,
		byURL:  make(map[string]int),
		byMark: make(map[string]int),
	}
}

// Register returns the source for rawURL, creating it on first sight. The
// boolean reports whether a new source was created. Title and snippet of an
// existing source are never changed.
func (r *SourceRegistry) Register(rawURL, title, snippet string) (Source, bool, error) {
	canonical, err := CanonicalURL(rawURL)
	if err != nil {
		return Source{}, false, fmt.Errorf("register source: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if idx, ok := r.byURL[canonical]; ok {
		return r.sources[idx], false, nil
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = canonical
	}
	src := Source{
		ID:      "S" + strconv.Itoa(len(r.sources)+1),
		URL:     canonical,
		Title:   title,
		Snippet: strings.TrimSpace(snippet),
	}
	idx := len(r.sources)
	r.sources = append(r.sources, src)
	r.byURL[canonical] = idx
	r.byMark[r.markerFor(src.ID)] = idx
	return src, true, nil
}

// Lookup finds a registered source by any URL that canonicalizes to it.
func (r *SourceRegistry) Lookup(rawURL string) (Source, bool) {
	canonical, err := CanonicalURL(rawURL)
	if err != nil {
		return Source{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byURL[canonical]
	if !ok {
		return Source{}, false
	}
	return r.sources[idx], true
}

// Marker returns the in-text citation marker for src.
func (r *SourceRegistry) Marker(src Source) string {
	return r.markerFor(src.ID)
}

func (r *SourceRegistry) markerFor(id string) string {
	return "[[cite:" + r.tag + ":" + id + "]]"
}

// Sources returns a copy of every registered source in registration order.
func (r *SourceRegistry) Sources() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Source, len(r.sources))
	copy(out, r.sources)
	return out
}

// Len returns the number of registered sources.
func (r *SourceRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sources)
}
