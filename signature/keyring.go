package signature

import (
	"crypto/sha256"
	"io"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/go-payx-gateway/internal/errors"
	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"
)

const keyInfoPrefix = "payx-session-signature:"

// SigningKey is a derived MAC key bound to the HMAC algorithm of its key id.
type SigningKey struct {
	method *jwt.SigningMethodHMAC
	key    []byte
}

// Algorithm returns the JWA name of the key's algorithm.
func (k SigningKey) Algorithm() string {
	return k.method.Alg()
}

// Keyring holds the signing keys by key id. Keys are derived from the configured secrets so a
// raw secret is never used directly as a MAC key.
type Keyring struct {
	keys      map[string]SigningKey
	activeKID string
}

// KeyringOption configures NewKeyring.
type KeyringOption func(*keyringOptions)

type keyringOptions struct {
	defaultAlgorithm string
	algorithms       map[string]string
}

// WithDefaultAlgorithm sets the algorithm (HS256, HS384 or HS512) for key ids that are not
// pinned with WithKeyAlgorithms. HS256 is used otherwise.
func WithDefaultAlgorithm(alg string) KeyringOption {
	return func(o *keyringOptions) {
		if alg != "" {
			o.defaultAlgorithm = alg
		}
	}
}

// WithKeyAlgorithms pins the algorithm of individual key ids. A pinned key keeps verifying with
// its algorithm whatever the default becomes.
func WithKeyAlgorithms(algs map[string]string) KeyringOption {
	return func(o *keyringOptions) {
		for kid, alg := range algs {
			o.algorithms[kid] = alg
		}
	}
}

// NewKeyring derives one signing key per configured secret. activeKID selects the key used for new
// signatures; the remaining keys stay valid for verification only.
func NewKeyring(secrets map[string]string, activeKID string, options ...KeyringOption) (*Keyring, error) {
	if len(secrets) == 0 {
		return nil, errors.New("[NewKeyring] at least one signing secret is required")
	}
	if _, ok := secrets[activeKID]; !ok {
		return nil, errors.Wrapf(apperrors.ErrUnknownSigningKey, "[NewKeyring] active key id %q", activeKID)
	}

	opts := keyringOptions{
		defaultAlgorithm: jwt.SigningMethodHS256.Alg(),
		algorithms:       map[string]string{},
	}
	for _, opt := range options {
		opt(&opts)
	}
	for kid := range opts.algorithms {
		if _, ok := secrets[kid]; !ok {
			return nil, errors.Wrapf(apperrors.ErrUnknownSigningKey, "[NewKeyring] algorithm pinned for key id %q", kid)
		}
	}

	kr := &Keyring{
		keys:      make(map[string]SigningKey, len(secrets)),
		activeKID: activeKID,
	}
	for kid, secret := range secrets {
		if kid == "" || strings.Contains(kid, ".") {
			return nil, errors.Errorf("[NewKeyring] invalid key id %q", kid)
		}
		if secret == "" {
			return nil, errors.Errorf("[NewKeyring] empty secret for key id %q", kid)
		}
		alg, ok := opts.algorithms[kid]
		if !ok {
			alg = opts.defaultAlgorithm
		}
		method, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
		if !ok {
			return nil, errors.Errorf("[NewKeyring] unsupported signing algorithm %q for key id %q", alg, kid)
		}
		key, err := deriveKey([]byte(secret), kid, method.Hash.Size())
		if err != nil {
			return nil, errors.Wrapf(err, "[NewKeyring] derive key %q", kid)
		}
		kr.keys[kid] = SigningKey{method: method, key: key}
	}
	return kr, nil
}

// deriveKey stretches the secret to the hash size of the key's algorithm.
func deriveKey(secret []byte, kid string, length int) ([]byte, error) {
	h := hkdf.New(sha256.New, secret, nil, []byte(keyInfoPrefix+kid))
	out := make([]byte, length)
	if _, err := io.ReadFull(h, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Active returns the key id and key used to sign.
func (k *Keyring) Active() (string, SigningKey) {
	return k.activeKID, k.keys[k.activeKID]
}

// Key looks up a verification key by id.
func (k *Keyring) Key(kid string) (SigningKey, bool) {
	key, ok := k.keys[kid]
	return key, ok
}
