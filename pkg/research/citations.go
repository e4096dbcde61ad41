package research

import (
	"strconv"
	"strings"
)

// Resolution is text whose citation markers were replaced by [n] references.
// Sources[n-1] is the source behind reference [n].
type Resolution struct {
	Text    string
	Sources []Source
}

// ResolveMarkers replaces every marker in text with "[n]", numbering sources
// from 1 in first-appearance order. Repeated markers reuse their number.
func (r *SourceRegistry) ResolveMarkers(text string) (Resolution, error) {
	cited, err := r.citedSources(text)
	if err != nil {
		return Resolution{}, err
	}

	numbers := make(map[string]int, len(cited))
	for i, src := range cited {
		numbers[src.ID] = i + 1
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, loc := range markerPattern.FindAllStringIndex(text, -1) {
		src := r.sources[r.byMark[text[loc[0]:loc[1]]]]
		b.WriteString(text[last:loc[0]])
		b.WriteString("[")
		b.WriteString(strconv.Itoa(numbers[src.ID]))
		b.WriteString("]")
		last = loc[1]
	}
	b.WriteString(text[last:])

	return Resolution{Text: b.String(), Sources: cited}, nil
}

// UsedSources returns exactly the sources whose markers appear in text, in
// the order ResolveMarkers numbers them.
func (r *SourceRegistry) UsedSources(text string) ([]Source, error) {
	return r.citedSources(text)
}

func (r *SourceRegistry) citedSources(text string) ([]Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var cited []Source
	seen := make(map[int]bool)
	for _, marker := range markerPattern.FindAllString(text, -1) {
		idx, ok := r.byMark[marker]
		if !ok {
			return nil, &UnknownMarkerError{Marker: marker}
		}
		if seen[idx] {
			continue
		}
		seen[idx] = true
		cited = append(cited, r.sources[idx])
	}
	return cited, nil
}
