package segment

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/docsum/internal/apperr"
	"github.com/dgallion1/docsum/internal/document"
)

// Mode selects between single-pass and chunked summarization.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeAlways Mode = "always"
	ModeNever  Mode = "never"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeAuto, ModeAlways, ModeNever:
		return m, nil
	}
	return "", apperr.Newf(apperr.KindConfiguration, "invalid mode %q (want auto, always or never)", s)
}

// Config controls segmentation. Sizes are in characters (runes).
type Config struct {
	Mode            Mode
	Threshold       int  // Target chunk size; also the single-pass capacity in auto mode.
	Overlap         int  // Characters shared between neighbouring chunks.
	CutAtReferences bool // Drop everything from the first references heading on.
}

// DefaultConfig returns the defaults used by the CLI and server.
func DefaultConfig() Config {
	return Config{
		Mode:            ModeAuto,
		Threshold:       8000,
		Overlap:         500,
		CutAtReferences: true,
	}
}

// Validate rejects combinations that cannot produce a finite chunk sequence.
func (c Config) Validate() error {
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	if c.Threshold <= 0 {
		return apperr.Newf(apperr.KindConfiguration, "threshold must be positive, got %d", c.Threshold)
	}
	if c.Overlap < 0 || c.Overlap >= c.Threshold {
		return apperr.Newf(apperr.KindConfiguration, "overlap must be in [0, %d), got %d", c.Threshold, c.Overlap)
	}
	return nil
}

// Chunk is a contiguous slice of a document's (possibly truncated) text.
type Chunk struct {
	Index           int
	Start           int // Rune offset, inclusive.
	End             int // Rune offset, exclusive.
	Overlap         int // Leading runes shared with the previous chunk.
	Text            string
	StartPage       int // Page active at Start; 0 when Start precedes every marker.
	EstimatedTokens int
}

// Anchored returns the chunk text prefixed with its active page marker when
// the chunk begins mid-page.
func (c Chunk) Anchored() string {
	if c.StartPage <= 0 || strings.HasPrefix(c.Text, "<p=") {
		return c.Text
	}
	return document.Marker(c.StartPage) + "\n" + c.Text
}

// Plan is the output of segmentation.
type Plan struct {
	Chunked   bool
	Chunks    []Chunk
	Length    int  // Rune length of the text that was segmented.
	Truncated bool // A references section was cut.
}

var (
	referencesRe   = regexp.MustCompile(`(?im)^[ \t#]*(?:\d+\.?[ \t]*)?(?:references|bibliography|works cited|literature cited)[ \t]*:?[ \t]*$`)
	trailingMarker = regexp.MustCompile(`\s*<p=\d+>\s*$`)
)

// TruncateReferences cuts text at the first line that is a references heading.
// It reports whether a cut happened. A cut that would leave nothing is not made.
func TruncateReferences(text string) (string, bool) {
	loc := referencesRe.FindStringIndex(text)
	if loc == nil {
		return text, false
	}
	cut := text[:loc[0]]
	for trailingMarker.MatchString(cut) {
		cut = trailingMarker.ReplaceAllString(cut, "")
	}
	cut = strings.TrimRight(cut, " \t\r\n")
	if strings.TrimSpace(document.MarkerPattern.ReplaceAllString(cut, "")) == "" {
		return text, false
	}
	return cut, true
}

// Segment splits a document according to cfg.
func Segment(doc document.Document, cfg Config) (Plan, error) {
	if err := cfg.Validate(); err != nil {
		return Plan{}, err
	}

	text := doc.Text
	truncated := false
	if cfg.CutAtReferences {
		text, truncated = TruncateReferences(text)
	}
	if strings.TrimSpace(document.MarkerPattern.ReplaceAllString(text, "")) == "" {
		return Plan{}, apperr.New(apperr.KindEmptyInput, "document has no text", nil).WithDocument(doc.ID)
	}

	runes := []rune(text)
	marks := markerPositions(text)
	plan := Plan{Length: len(runes), Truncated: truncated}

	single := cfg.Mode == ModeNever ||
		(cfg.Mode == ModeAuto && len(runes) <= cfg.Threshold) ||
		len(runes) <= cfg.Overlap
	if single {
		plan.Chunks = []Chunk{newChunk(0, runes, 0, len(runes), 0, marks)}
		return plan, nil
	}

	plan.Chunked = true
	start, prevEnd := 0, 0
	for idx := 0; ; idx++ {
		end := start + cfg.Threshold
		if end >= len(runes) {
			end = len(runes)
		} else if b := markerStart(runes, end); b > start {
			end = b
		}

		overlap := 0
		if idx > 0 {
			overlap = prevEnd - start
		}
		plan.Chunks = append(plan.Chunks, newChunk(idx, runes, start, end, overlap, marks))
		if end == len(runes) {
			break
		}

		next := end - cfg.Overlap
		if b := markerStart(runes, next); b > start {
			next = b
		}
		if next <= start {
			next = end
		}
		prevEnd = end
		start = next
	}
	return plan, nil
}

func newChunk(idx int, runes []rune, start, end, overlap int, marks []marker) Chunk {
	text := string(runes[start:end])
	return Chunk{
		Index:           idx,
		Start:           start,
		End:             end,
		Overlap:         overlap,
		Text:            text,
		StartPage:       pageAt(marks, start),
		EstimatedTokens: EstimateTokens(text),
	}
}

// markerStart moves pos back to the start of a page marker if pos falls strictly inside one.
func markerStart(runes []rune, pos int) int {
	if pos <= 0 || pos >= len(runes) {
		return pos
	}
	for i := pos - 1; i >= 0 && pos-i <= 16; i-- {
		switch runes[i] {
		case '>':
			return pos
		case '<':
			if end := markerEnd(runes, i); end >= pos {
				return i
			}
			return pos
		}
	}
	return pos
}

// markerEnd returns the index of the closing '>' of a marker opening at i, or -1.
func markerEnd(runes []rune, i int) int {
	if i+3 >= len(runes) || runes[i+1] != 'p' || runes[i+2] != '=' {
		return -1
	}
	j := i + 3
	for j < len(runes) && runes[j] >= '0' && runes[j] <= '9' {
		j++
	}
	if j == i+3 || j >= len(runes) || runes[j] != '>' {
		return -1
	}
	return j
}

type marker struct {
	pos  int // Rune offset of '<'.
	page int
}

func markerPositions(text string) []marker {
	var out []marker
	for _, m := range document.MarkerPattern.FindAllStringSubmatchIndex(text, -1) {
		page, err := strconv.Atoi(text[m[2]:m[3]])
		if err != nil {
			continue
		}
		out = append(out, marker{pos: utf8.RuneCountInString(text[:m[0]]), page: page})
	}
	return out
}

func pageAt(marks []marker, pos int) int {
	page := 0
	for _, m := range marks {
		if m.pos > pos {
			break
		}
		page = m.page
	}
	return page
}

// Reconstruct joins chunks back into the segmented text by dropping each chunk's overlap.
func Reconstruct(chunks []Chunk) string {
	var sb strings.Builder
	for _, c := range chunks {
		r := []rune(c.Text)
		sb.WriteString(string(r[c.Overlap:]))
	}
	return sb.String()
}
