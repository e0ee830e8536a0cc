// Package validate checks raw playlist entries and turns the good ones into
// typed screen specs. Nothing here performs I/O.
package validate

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf16"

	"github.com/abelbrown/signage/internal/screen"
)

// Field limits.
const (
	MaxNameLen        = 50
	MinResourceLen    = 10
	MaxResourceLen    = 200
	MinRefreshMinutes = 5
	MaxRefreshMinutes = 24 * 60
	MinDisplaySecs    = 5
	MaxDisplaySecs    = 60
)

// Raw is one undecoded entry of the "screens" array.
type Raw map[string]any

// Document decodes a playlist document of the form {"screens": [...]}.
// A missing or non-array "screens" field yields an empty list. Elements that
// are not JSON objects come back as empty Raw values, which fail validation.
func Document(data []byte) ([]Raw, error) {
	var doc struct {
		Screens json.RawMessage `json:"screens"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode playlist document: %w", err)
	}

	var elems []json.RawMessage
	if len(doc.Screens) == 0 || json.Unmarshal(doc.Screens, &elems) != nil {
		return nil, nil
	}

	out := make([]Raw, 0, len(elems))
	for _, e := range elems {
		var r Raw
		if err := json.Unmarshal(e, &r); err != nil || r == nil {
			r = Raw{}
		}
		out = append(out, r)
	}
	return out, nil
}

// Validate runs the field rules against raw and returns the errors found.
// Rules stop at the first failure, so at most one error is returned. A
// disabled entry with a valid name is not an error.
func Validate(raw Raw, index int) []error {
	_, errs := Parse(raw, index)
	return errs
}

// Parse validates raw and, when it passes, returns the typed spec. Callers
// must still check spec.Enabled: a disabled entry parses without error but
// its remaining fields are not inspected.
func Parse(raw Raw, index int) (screen.Spec, []error) {
	fail := func(name, reason string) (screen.Spec, []error) {
		return screen.Spec{}, []error{&screen.ValidationError{Index: index, Name: name, Reason: reason}}
	}

	enabled, ok := raw["enabled"].(bool)
	if !ok {
		return fail("", "invalid enabled element")
	}

	name, ok := raw["friendlyName"].(string)
	if !ok || name == "" || textLen(name) > MaxNameLen {
		return fail("", "invalid friendlyName")
	}

	if !enabled {
		return screen.Spec{Enabled: false, FriendlyName: name}, nil
	}

	resource, ok := raw["resource"].(string)
	if n := textLen(resource); !ok || n < MinResourceLen || n > MaxResourceLen {
		return fail(name, fmt.Sprintf("invalid resource, length must be %d-%d", MinResourceLen, MaxResourceLen))
	}

	var month string
	if v, present := raw["month"]; present {
		if month, ok = v.(string); !ok {
			return fail(name, "month not a string")
		}
	}

	refresh, reason := boundedInt(raw, "refreshMinutes", MinRefreshMinutes, MaxRefreshMinutes)
	if reason != "" {
		return fail(name, reason)
	}

	display, reason := boundedInt(raw, "displaySecs", MinDisplaySecs, MaxDisplaySecs)
	if reason != "" {
		return fail(name, reason)
	}

	var timeBug string
	if v, present := raw["timeBug"]; present {
		if timeBug, ok = v.(string); !ok {
			return fail(name, "timeBug not a string")
		}
	}

	return screen.Spec{
		Enabled:        true,
		FriendlyName:   name,
		Resource:       resource,
		DisplaySecs:    display,
		RefreshMinutes: refresh,
		TimeBug:        timeBug,
		Month:          month,
	}, nil
}

// boundedInt reads a numeric-text field and checks its range. It returns a
// non-empty reason on failure.
func boundedInt(raw Raw, key string, lo, hi int) (int, string) {
	s, ok := raw[key].(string)
	if !ok {
		return 0, key + " is not a string"
	}
	n, ok := leadingInt(s)
	if !ok || n < lo || n > hi {
		return 0, key + " is invalid"
	}
	return n, ""
}

// textLen measures s in UTF-16 code units, the unit playlist editors count
// in. Characters outside the Basic Multilingual Plane, such as most emoji,
// count twice.
func textLen(s string) int {
	n := 0
	for _, r := range s {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}

// leadingInt parses the integer prefix of s the way playlist authors expect:
// leading whitespace and a sign are allowed, a "0x" prefix switches to hex
// and trailing garbage ("30min", "10.5") is ignored.
func leadingInt(s string) (int, bool) {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	neg := false
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		neg = s[i] == '-'
		i++
	}
	base := 10
	if rest := s[i:]; len(rest) >= 2 && strings.EqualFold(rest[:2], "0x") {
		base = 16
		i += 2
	}
	start := i
	n := 0
	for i < len(s) {
		d := digitVal(s[i])
		if d >= base {
			break
		}
		if n > 1<<30 {
			break
		}
		n = n*base + d
		i++
	}
	if i == start {
		return 0, false
	}
	if neg {
		n = -n
	}
	return n, true
}

// digitVal returns the value of hex digit c, or 16 if c is not one.
func digitVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return 16
}
