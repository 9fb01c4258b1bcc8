package summary

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Rules bound the shape of a normalized structure.
type Rules struct {
	BulletCap int          // Max bullets per field.
	MaxWords  int          // Max words per bullet, page reference included.
	Pages     map[int]bool // Pages present in the source; nil skips the check.
}

// DefaultRules returns the bullet limits used for single-pass output.
func DefaultRules() Rules {
	return Rules{BulletCap: 4, MaxWords: 25}
}

// pageRefRe matches the spellings models produce for a page reference:
// [p=3], [p. 3], [p:3], [P 3], [page 3], [pp=3].
var pageRefRe = regexp.MustCompile(`(?i)\[\s*(?:pp?|page)\s*[=.:]?\s*(\d+)\s*\]`)

var strayPunctRe = regexp.MustCompile(`\s+([.,;:!?])`)

// PageRef formats a canonical page reference.
func PageRef(n int) string {
	return fmt.Sprintf("[p=%d]", n)
}

// Normalize rewrites every bullet to carry at most one canonical trailing page
// reference and at most MaxWords words, then dedups and caps each field.
// Bullets without a reference, or whose page is not in rules.Pages, are kept
// and reported as warnings.
func Normalize(s Structure, rules Rules) (Structure, []string) {
	var out Structure
	var warnings []string
	for _, name := range FieldNames {
		var bullets []string
		for i, b := range s.Get(name) {
			nb, page := normalizeBullet(b, rules.MaxWords)
			if nb == "" {
				continue
			}
			switch {
			case page == 0:
				warnings = append(warnings, fmt.Sprintf("%s[%d]: missing page reference", name, i))
			case rules.Pages != nil && !rules.Pages[page]:
				warnings = append(warnings, fmt.Sprintf("%s[%d]: page %d not in source", name, i, page))
			}
			bullets = append(bullets, nb)
		}
		*out.Field(name) = capList(dedup(bullets), rules.BulletCap)
	}
	return out, warnings
}

// normalizeBullet returns the rewritten bullet and the page it references (0 if none).
func normalizeBullet(b string, maxWords int) (string, int) {
	page := 0
	if refs := pageRefRe.FindAllStringSubmatch(b, -1); len(refs) > 0 {
		page, _ = strconv.Atoi(refs[len(refs)-1][1])
	}
	body := strayPunctRe.ReplaceAllString(pageRefRe.ReplaceAllString(b, " "), "$1")
	words := strings.Fields(body)

	limit := maxWords
	if page > 0 {
		limit--
	}
	if limit > 0 && len(words) > limit {
		words = words[:limit]
	}
	body = strings.TrimRight(strings.Join(words, " "), " ,;:")
	if body == "" {
		return "", page
	}
	if page > 0 {
		return body + " " + PageRef(page), page
	}
	return body, 0
}

// WordCount counts whitespace-separated words, a page reference counting as one.
func WordCount(b string) int {
	return len(strings.Fields(b))
}
