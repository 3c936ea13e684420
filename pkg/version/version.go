// Package version parses and orders the version strings of plugins and of the host application.
//
// A version is tokenized into alternating runs of digits and letters. Runs are compared
// numerically when both are plain integers, and lexically otherwise. Unstable suffixes
// (ALPHA, BETA, PREVIEW, RC, TRUNK) rank below their base version.
package version

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/glorpus-work/plugdex/pkg/errutils"
)

var (
	// Prefixes are stripped in this order. Every matching entry is removed in turn.
	prefixes = []string{"VERSION", "VER.", "VER", "V.", "V", "REVISION", "REV.", "REV", "R.", "R"}

	unstableSuffixes = []string{"ALPHA", "BETA", "PREVIEW", "RC", "TRUNK"}

	hostPattern = regexp.MustCompile(`^(\d+)\.(\d+)(?:\.(\d+))?`)
)

const (
	trimSet = " \t\n"
	nothing = " "
)

type charClass int

const (
	classDelimiter charClass = iota
	classDigit
	classLetter
)

// Version is an immutable, parsed version string.
type Version struct {
	elements     []string
	original     string
	experimental bool
}

// New builds a version from pre-split elements.
func New(elements []string, original string, experimental bool) Version {
	if original == "" {
		original = strings.Join(elements, ".")
	}
	return Version{elements: slices.Clone(elements), original: original, experimental: experimental}
}

// ParsePlugin parses a plugin version string such as "v2.1-beta".
func ParsePlugin(s string, experimental bool) (Version, error) {
	elements, err := split(normalize(s))
	if err != nil {
		return Version{}, errutils.Wrapf(err, "version %q", s)
	}
	return Version{elements: elements, original: s, experimental: experimental}, nil
}

// MustParsePlugin is like ParsePlugin but panics on error.
func MustParsePlugin(s string) Version {
	v, err := ParsePlugin(s, false)
	if err != nil {
		panic(err)
	}
	return v
}

// ParseHost parses the leading X.Y[.Z] of a host version string. A missing Z is 0.
// With fixNextMajor, a minor version of 99 denotes a pre-release of the next major
// and yields (X+1).0.0.
func ParseHost(s string, fixNextMajor bool) (Version, error) {
	m := hostPattern.FindStringSubmatch(s)
	if m == nil {
		return Version{}, fmt.Errorf("%w: host version %q does not match X.Y.Z", errutils.ErrInvalidValue, s)
	}
	x, y, z := m[1], m[2], m[3]
	if z == "" {
		z = "0"
	}
	if fixNextMajor && y == "99" {
		major, err := strconv.Atoi(x)
		if err != nil {
			return Version{}, fmt.Errorf("%w: host version %q has no major number", errutils.ErrInvalidValue, s)
		}
		x, y, z = strconv.Itoa(major+1), "0", "0"
	}
	return Version{elements: []string{x, y, z}, original: s}, nil
}

// Elements returns a copy of the tokenized segments.
func (v Version) Elements() []string { return slices.Clone(v.elements) }

// Len returns the number of segments.
func (v Version) Len() int { return len(v.elements) }

// Original returns the string the version was parsed from.
func (v Version) Original() string { return v.original }

// Experimental reports the provenance flag given at parse time.
func (v Version) Experimental() bool { return v.experimental }

// IsZero reports whether v was never parsed.
func (v Version) IsZero() bool { return len(v.elements) == 0 && v.original == "" }

// Stable reports whether v carries no unstable suffix.
func (v Version) Stable() bool {
	for _, e := range v.elements {
		if slices.Contains(unstableSuffixes, e) {
			return false
		}
	}
	return true
}

func (v Version) String() string { return strings.Join(v.elements, ".") }

// Compare returns -1, 0 or 1. Versions with equal segments but disagreeing
// experimental flags are a logic error.
func (v Version) Compare(o Version) (int, error) {
	if v.sameElements(o) {
		if v.experimental != o.experimental {
			return 0, fmt.Errorf("%w: versions %q and %q are equal but disagree on experimental flag",
				errutils.ErrInvalidValue, v.original, o.original)
		}
		return 0, nil
	}
	if greaterThan(v, o) {
		return 1, nil
	}
	return -1, nil
}

// Cmp is Compare without the flag check. It suits slices.SortFunc.
func Cmp(a, b Version) int {
	if a.sameElements(b) {
		return 0
	}
	if greaterThan(a, b) {
		return 1
	}
	return -1
}

// Equal reports whether both versions have the same segments.
func (v Version) Equal(o Version) bool { return v.sameElements(o) }

// Less reports whether v orders before o.
func (v Version) Less(o Version) bool { return Cmp(v, o) < 0 }

// Greater reports whether v orders after o.
func (v Version) Greater(o Version) bool { return Cmp(v, o) > 0 }

func (v Version) sameElements(o Version) bool {
	return slices.Equal(v.elements, o.elements)
}

// greaterThan compares two unequal versions.
func greaterThan(a, b Version) bool {
	base := min(len(a.elements), len(b.elements))
	for i := 0; i < base; i++ {
		if rel := compareElements(a.elements[i], b.elements[i]); rel != 0 {
			return rel > 0
		}
	}
	if len(a.elements) > base {
		return compareElements(a.elements[base], nothing) > 0
	}
	if len(b.elements) > base {
		return compareElements(nothing, b.elements[base]) > 0
	}
	// Structurally undecided. Raw text keeps the order deterministic.
	return a.original > b.original
}

func compareElements(x, y string) int {
	if x == y {
		return 0
	}
	if isNumeric(x) && isNumeric(y) {
		// No leading zeros, so the longer digit string is the larger number.
		if c := cmp.Compare(len(x), len(y)); c != 0 {
			return c
		}
		return strings.Compare(x, y)
	}
	if rank(x) > rank(y) {
		return 1
	}
	return -1
}

func isNumeric(e string) bool {
	if e == "" || e[0] == '0' {
		return false
	}
	for _, r := range e {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func rank(e string) string {
	if slices.Contains(unstableSuffixes, e) {
		return e
	}
	return "Z" + e
}

func normalize(s string) string {
	if s == "" {
		return ""
	}
	s = strings.Trim(strings.ToUpper(s), trimSet)
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			s = strings.Trim(s[len(p):], trimSet)
		}
	}
	return s
}

func classOf(r rune) charClass {
	switch {
	case r == '.' || r == '-' || r == '_' || r == ' ':
		return classDelimiter
	case unicode.IsDigit(r):
		return classDigit
	default:
		return classLetter
	}
}

func split(s string) ([]string, error) {
	var (
		elements []string
		current  strings.Builder
		prev     = classDelimiter
	)
	flush := func() {
		if current.Len() > 0 {
			elements = append(elements, current.String())
			current.Reset()
		}
	}
	for _, r := range s {
		c := classOf(r)
		if c == classDelimiter {
			flush()
			prev = c
			continue
		}
		if c != prev {
			flush()
		}
		current.WriteRune(r)
		prev = c
	}
	flush()
	if len(elements) == 0 {
		return nil, fmt.Errorf("%w: no version segments", errutils.ErrInvalidValue)
	}
	return elements, nil
}
