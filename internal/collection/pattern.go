// Package collection maps structured keys to file names inside directory
// artifacts and back again.
//
// A Pattern is data: a compiled regular expression with named groups plus a
// layout string. Every name produced by NameFor is accepted by KeyFor and
// yields the same key.
package collection

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// ComparisonSeparator joins the sample ids of a comparison tuple unless a
// pattern is built with another one.
const ComparisonSeparator = "~"

// Key identifies one member of a directory collection. Comparison patterns
// use Comparison and Suffix; round patterns use Round.
type Key struct {
	Comparison []string
	Suffix     string
	Round      int
}

// String renders a key for logs and error messages.
func (k Key) String() string {
	if len(k.Comparison) == 0 {
		return fmt.Sprintf("round %d", k.Round)
	}
	return strings.Join(k.Comparison, ComparisonSeparator) + "/" + k.Suffix
}

type patternKind int

const (
	kindComparison patternKind = iota
	kindRounds
)

// Pattern is a bidirectional naming scheme for a directory collection.
type Pattern struct {
	kind   patternKind
	layout string
	re     *regexp.Regexp
	suffix string // fixed suffix; empty means free
	ext    string
	sep    string
}

// Comparison returns the pattern {comparison}_{suffix}{ext} with sample ids
// joined by ComparisonSeparator. A non-empty suffix is fixed and must appear
// literally; an empty suffix is free and is taken from the text after the
// last underscore.
func Comparison(suffix, ext string) *Pattern {
	return JoinedComparison(ComparisonSeparator, suffix, ext)
}

// JoinedComparison is Comparison with sample ids joined by sep. An empty sep
// means ComparisonSeparator.
//
// A comparison has at least two ids, so a name holding a single id (a
// singleton replicate group) is not a member.
func JoinedComparison(sep, suffix, ext string) *Pattern {
	if sep == "" {
		sep = ComparisonSeparator
	}
	suffixGroup := `(?P<suffix>[^_]+)`
	if suffix != "" {
		suffixGroup = `(?P<suffix>` + regexp.QuoteMeta(suffix) + `)`
	}
	q := regexp.QuoteMeta(sep)
	expr := `^(?P<comparison>.+?` + q + `.+)_` + suffixGroup + regexp.QuoteMeta(ext) + `$`
	return &Pattern{
		kind:   kindComparison,
		layout: "{comparison}_{suffix}" + ext,
		re:     regexp.MustCompile(expr),
		suffix: suffix,
		ext:    ext,
		sep:    sep,
	}
}

// Rounds returns the pattern round_{round}.
func Rounds() *Pattern {
	return &Pattern{
		kind:   kindRounds,
		layout: "round_{round}",
		re:     regexp.MustCompile(`^round_(?P<round>0|[1-9][0-9]*)$`),
	}
}

// Layout returns the human readable layout string.
func (p *Pattern) Layout() string { return p.layout }

// Separator returns the string joining comparison ids, or "" for round
// patterns.
func (p *Pattern) Separator() string { return p.sep }

// Join renders a comparison the way the pattern names it.
func (p *Pattern) Join(ids []string) string { return strings.Join(ids, p.sep) }

// Regexp returns the source of the matching expression.
func (p *Pattern) Regexp() string { return p.re.String() }

// NameFor renders the file name for k. Keys that would not survive a
// round trip through KeyFor are rejected.
func (p *Pattern) NameFor(k Key) (string, error) {
	switch p.kind {
	case kindRounds:
		if len(k.Comparison) != 0 || k.Suffix != "" {
			return "", fmt.Errorf("round key must not carry a comparison or suffix")
		}
		if k.Round < 0 {
			return "", fmt.Errorf("round must be non-negative, got %d", k.Round)
		}
		return "round_" + strconv.Itoa(k.Round), nil

	default:
		if len(k.Comparison) < 2 {
			return "", fmt.Errorf("comparison needs at least two samples, got %d", len(k.Comparison))
		}
		for _, s := range k.Comparison {
			if s == "" {
				return "", fmt.Errorf("comparison contains an empty sample id")
			}
			if strings.Contains(s, p.sep) {
				return "", fmt.Errorf("sample id %q contains %q", s, p.sep)
			}
		}
		if p.suffix != "" {
			if k.Suffix != p.suffix {
				return "", fmt.Errorf("suffix must be %q, got %q", p.suffix, k.Suffix)
			}
		} else if k.Suffix == "" || strings.Contains(k.Suffix, "_") {
			return "", fmt.Errorf("suffix %q must be non-empty and contain no underscore", k.Suffix)
		}
		name := p.Join(k.Comparison) + "_" + k.Suffix + p.ext
		if got, ok := p.KeyFor(name); !ok || !slices.Equal(got.Comparison, k.Comparison) || got.Suffix != k.Suffix {
			return "", fmt.Errorf("key %s does not produce a name matching %s", k, p.layout)
		}
		return name, nil
	}
}

// KeyFor parses a file name. The second result is false for names the
// pattern does not describe.
func (p *Pattern) KeyFor(name string) (Key, bool) {
	m := p.re.FindStringSubmatch(name)
	if m == nil {
		return Key{}, false
	}
	switch p.kind {
	case kindRounds:
		n, err := strconv.Atoi(m[p.re.SubexpIndex("round")])
		if err != nil {
			return Key{}, false
		}
		return Key{Round: n}, true
	default:
		ids := strings.Split(m[p.re.SubexpIndex("comparison")], p.sep)
		for _, id := range ids {
			if id == "" {
				return Key{}, false
			}
		}
		return Key{Comparison: ids, Suffix: m[p.re.SubexpIndex("suffix")]}, true
	}
}

// Matches reports whether name belongs to the collection.
func (p *Pattern) Matches(name string) bool {
	_, ok := p.KeyFor(name)
	return ok
}
