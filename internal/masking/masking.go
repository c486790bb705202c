// Package masking hides identifying numbers (RUTs and account numbers) in
// text that leaves the process: reports, console output and record fields.
package masking

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	rutPattern     = regexp.MustCompile(`\b\d{7,12}-[0-9kK]\b`)
	accountPattern = regexp.MustCompile(`\b\d{10,20}\b`)
)

// MaskRUT keeps the last three characters of a RUT
func MaskRUT(rut string) string {
	rut = strings.TrimSpace(rut)
	if len(rut) <= 3 {
		return "***"
	}
	return "***" + rut[len(rut)-3:]
}

// MaskAccount keeps the last four characters of an account number and
// replaces the rest with '*'. Whitespace is removed first.
func MaskAccount(account string) string {
	compact := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, account)
	if len(compact) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(compact)-4) + compact[len(compact)-4:]
}

// MaskSensitiveText masks every RUT and then every long digit run in text
func MaskSensitiveText(text string) string {
	if text == "" {
		return text
	}
	text = rutPattern.ReplaceAllStringFunc(text, MaskRUT)
	return accountPattern.ReplaceAllStringFunc(text, MaskAccount)
}

// Masker applies masking only when enabled, so callers can pass values
// through unconditionally.
type Masker struct {
	Enabled bool
}

// Text masks text when enabled
func (m Masker) Text(text string) string {
	if !m.Enabled {
		return text
	}
	return MaskSensitiveText(text)
}

// Account masks an account number when enabled
func (m Masker) Account(account string) string {
	if !m.Enabled || account == "" {
		return account
	}
	return MaskAccount(account)
}
