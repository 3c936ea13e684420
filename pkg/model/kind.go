// Package model holds small value types shared by the plugdex packages.
package model

import (
	"fmt"
	"strings"

	"github.com/glorpus-work/plugdex/pkg/errutils"
)

// Kind identifies a plugin source backend.
type Kind string

const (
	// KindHostLegacy is the backend for plugins the host manages itself:
	// installed plugin directories and repositories from the host's own settings.
	KindHostLegacy Kind = "host-legacy"
	// KindNativeExtension is the mandatory backend for compiled extensions.
	KindNativeExtension Kind = "native-extension"
	// KindPackageIndex is the backend for remote plugin indexes managed by plugdex.
	KindPackageIndex Kind = "package-index"
)

// String returns the registry key of the kind.
func (k Kind) String() string { return string(k) }

// BoolStyle selects how booleans are written as text.
type BoolStyle int

const (
	StyleTrueFalseTitle BoolStyle = iota // True/False
	StyleTrueFalse                       // true/false
	StyleYesNoTitle                      // Yes/No
	StyleYesNo                           // yes/no
	StyleOneZero                         // 1/0
)

// FormatBool renders b in the given style.
func FormatBool(b bool, style BoolStyle) string {
	var t, f string
	switch style {
	case StyleTrueFalseTitle:
		t, f = "True", "False"
	case StyleYesNoTitle:
		t, f = "Yes", "No"
	case StyleYesNo:
		t, f = "yes", "no"
	case StyleOneZero:
		t, f = "1", "0"
	default:
		t, f = "true", "false"
	}
	if b {
		return t
	}
	return f
}

// ParseBool parses yes/true/1 and no/false/0 case-insensitively.
// Values starting with yes, true, no or false are accepted as well.
func ParseBool(s string) (bool, error) {
	v := strings.ToLower(s)
	switch v {
	case "yes", "true", "1":
		return true, nil
	case "no", "false", "0":
		return false, nil
	}
	if strings.HasPrefix(v, "yes") || strings.HasPrefix(v, "true") {
		return true, nil
	}
	if strings.HasPrefix(v, "no") || strings.HasPrefix(v, "false") {
		return false, nil
	}
	return false, fmt.Errorf("%w: can not convert %q to bool", errutils.ErrInvalidValue, s)
}
