// Package canonical produces the byte-stable JSON form used for hashing and
// for the run artifact: object keys sorted, no insignificant whitespace, no
// HTML escaping, and every non-ASCII character written as a \u escape.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"unicode/utf16"
	"unicode/utf8"
)

// Marshal returns the canonical encoding of v without a trailing newline.
//
// v is first encoded with encoding/json, so struct tags and custom
// marshalers apply. The result is decoded into generic values, with numbers
// kept verbatim, and re-encoded; maps are written with sorted keys.
func Marshal(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: encode: %w", err)
	}
	return Canonicalize(raw)
}

// MarshalLine is Marshal followed by a single newline.
func MarshalLine(v interface{}) ([]byte, error) {
	out, err := Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// Canonicalize rewrites an arbitrary JSON document into canonical form.
func Canonicalize(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var generic interface{}
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonical: decode: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("canonical: trailing data after JSON value")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, fmt.Errorf("canonical: re-encode: %w", err)
	}
	// Encoder.Encode always appends a newline.
	compact := bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
	return escapeNonASCII(compact), nil
}

// escapeNonASCII replaces every rune >= 0x80 with its \uXXXX escape, using a
// surrogate pair outside the Basic Multilingual Plane. Non-ASCII bytes can
// only occur inside JSON strings, so the document structure is unaffected.
func escapeNonASCII(in []byte) []byte {
	ascii := true
	for _, b := range in {
		if b >= utf8.RuneSelf {
			ascii = false
			break
		}
	}
	if ascii {
		return in
	}

	out := make([]byte, 0, len(in)+16)
	for len(in) > 0 {
		if in[0] < utf8.RuneSelf {
			out = append(out, in[0])
			in = in[1:]
			continue
		}
		r, size := utf8.DecodeRune(in)
		in = in[size:]
		if r > 0xFFFF {
			hi, lo := utf16.EncodeRune(r)
			out = append(out, fmt.Sprintf(`\u%04x\u%04x`, hi, lo)...)
			continue
		}
		out = append(out, fmt.Sprintf(`\u%04x`, r)...)
	}
	return out
}

// SHA256Hex returns the hex SHA-256 of the canonical encoding of v.
func SHA256Hex(v interface{}) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
