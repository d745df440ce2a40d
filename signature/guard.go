// Package signature makes stored session records tamper-evident.
//
// A signature has the form "v1.<kid>.<mac>" where mac is the base64url HMAC of the
// session's canonical payload under the key identified by kid. The key id fixes both the
// secret and the HMAC algorithm, so either can rotate without invalidating sessions already
// in flight.
package signature

import (
	"encoding/base64"
	"strings"

	"github.com/pkg/errors"
)

const formatVersion = "v1"

// Signable is anything that exposes a canonical payload for signing.
type Signable interface {
	SignaturePayload() ([]byte, error)
}

// Guard computes and verifies session signatures.
type Guard struct {
	keys *Keyring
}

// NewGuard creates a Guard over the keyring.
func NewGuard(keys *Keyring) (*Guard, error) {
	if keys == nil {
		return nil, errors.New("[NewGuard] keyring is required")
	}
	return &Guard{keys: keys}, nil
}

// Generate signs the current state of s with the active key.
func (g *Guard) Generate(s Signable) (string, error) {
	payload, err := s.SignaturePayload()
	if err != nil {
		return "", errors.Wrap(err, "[Guard.Generate] payload")
	}
	kid, key := g.keys.Active()
	mac, err := key.method.Sign(string(payload), key.key)
	if err != nil {
		return "", errors.Wrap(err, "[Guard.Generate] sign")
	}
	return strings.Join([]string{formatVersion, kid, base64.RawURLEncoding.EncodeToString(mac)}, "."), nil
}

// Verify reports whether signature matches the current state of s. Any malformed, unknown-key
// or mismatching signature yields false; callers report it as "not found".
func (g *Guard) Verify(s Signable, signature string) bool {
	parts := strings.Split(signature, ".")
	if len(parts) != 3 || parts[0] != formatVersion {
		return false
	}
	key, ok := g.keys.Key(parts[1])
	if !ok {
		return false
	}
	mac, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return false
	}
	payload, err := s.SignaturePayload()
	if err != nil {
		return false
	}
	return key.method.Verify(string(payload), mac, key.key) == nil
}
