// Package plate aggregates license plate OCR reads per vehicle. Single
// reads are unreliable; the resolved plate is a confidence-weighted vote
// over every accepted read of a track's lifetime.
package plate

import (
	"sort"
	"strings"
	"unicode"
)

// minPlateRunes is the shortest normalized string accepted as a plate.
const minPlateRunes = 4

// Evidence is one accepted OCR observation.
type Evidence struct {
	Frame      int
	Text       string
	Confidence float64
}

// Normalize uppercases a read and strips everything outside A-Z and 0-9,
// so "ab-123 cd" and "AB123CD" land in the same vote group.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToUpper(s) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Plausible reports whether a read is shaped like a license plate: at
// least four alphanumeric characters with at least one letter and one
// digit. OCR noise like "IIII" or "----" fails this.
func Plausible(text string) bool {
	normalized := Normalize(text)
	if len(normalized) < minPlateRunes {
		return false
	}
	hasLetter := false
	hasDigit := false
	for _, r := range normalized {
		if unicode.IsLetter(r) {
			hasLetter = true
		}
		if unicode.IsDigit(r) {
			hasDigit = true
		}
	}
	return hasLetter && hasDigit
}

// Ballot collects plate evidence for one vehicle. Evidence is append-only;
// Resolve is a pure function over the collected set, so adding evidence
// never corrupts an earlier resolution.
type Ballot struct {
	minConfidence float64
	evidence      []Evidence
}

// NewBallot creates an empty ballot. Reads below minConfidence are
// rejected at the door.
func NewBallot(minConfidence float64) *Ballot {
	return &Ballot{minConfidence: minConfidence}
}

// Add offers one OCR read. It returns true when the read passes the
// confidence and plausibility filters and was recorded.
func (b *Ballot) Add(frame int, text string, confidence float64) bool {
	if confidence < b.minConfidence {
		return false
	}
	if !Plausible(text) {
		return false
	}
	b.evidence = append(b.evidence, Evidence{
		Frame:      frame,
		Text:       text,
		Confidence: confidence,
	})
	return true
}

// Count returns the number of accepted reads.
func (b *Ballot) Count() int {
	return len(b.evidence)
}

// Evidence returns the accepted reads in arrival order. Be careful: this
// is not a copy, but a reference to the internal slice.
func (b *Ballot) Evidence() []Evidence {
	return b.evidence
}

// Resolve elects the plate string. Reads vote in their normalized form
// with their confidence as weight; the winning group is represented by
// its highest-confidence raw read, returned together with that read's
// confidence. Ties break deterministically: between groups by the
// lexicographically smaller normalized string, within a group by the
// earlier frame. ok is false when no read was ever accepted.
func (b *Ballot) Resolve() (text string, confidence float64, ok bool) {
	if len(b.evidence) == 0 {
		return "", 0, false
	}

	type group struct {
		weight float64
		best   Evidence
	}
	groups := make(map[string]*group)
	for _, ev := range b.evidence {
		key := Normalize(ev.Text)
		g, found := groups[key]
		if !found {
			groups[key] = &group{weight: ev.Confidence, best: ev}
			continue
		}
		g.weight += ev.Confidence
		if ev.Confidence > g.best.Confidence ||
			(ev.Confidence == g.best.Confidence && ev.Frame < g.best.Frame) {
			g.best = ev
		}
	}

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	winner := keys[0]
	for _, key := range keys[1:] {
		if groups[key].weight > groups[winner].weight {
			winner = key
		}
	}
	best := groups[winner].best
	return best.Text, best.Confidence, true
}
