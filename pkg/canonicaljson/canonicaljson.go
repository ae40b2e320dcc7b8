// Package canonicaljson renders values as compact JSON with object keys in
// byte order, so structurally equal documents always serialize identically.
// Credential proofs and revocation hashes are computed over this form.
package canonicaljson

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Marshal returns the canonical encoding of v. Numbers keep their original
// textual form and HTML characters are not escaped.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicaljson: marshal: %w", err)
	}
	return Canonicalize(raw)
}

// Canonicalize re-encodes an existing JSON document.
func Canonicalize(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonicaljson: decode: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// encoding/json sorts map keys, which is what makes the output canonical.
	if err := enc.Encode(generic); err != nil {
		return nil, fmt.Errorf("canonicaljson: encode: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// ToMap converts v into a generic JSON object. It fails when v does not encode
// to an object.
func ToMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicaljson: marshal: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("canonicaljson: not an object: %w", err)
	}
	return m, nil
}
