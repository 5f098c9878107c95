// Package canonical produces a stable byte representation of a value so
// that content hashes are independent of field order and map iteration.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Marshal encodes v as key-sorted JSON. The value is first marshalled
// normally, then decoded into generic maps (preserving number literals)
// and re-encoded: encoding/json writes map keys in sorted order, which
// gives us the canonical form for free.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshalling value: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decoding intermediate form: %w", err)
	}

	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("marshalling canonical form: %w", err)
	}

	return out, nil
}

// Hash returns the hex-encoded SHA-256 digest of the canonical form of v.
func Hash(v any) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(b)

	return hex.EncodeToString(sum[:]), nil
}
