package config

import "strings"

type SecurityConfig interface {
	GetSigningKeys() map[string]string
	GetActiveSigningKeyID() string
	GetSigningAlgorithm() string
	GetSigningKeyAlgorithms() map[string]string
}

type Security struct {
	source
}

var _ SecurityConfig = Security{}

// GetSigningKeys returns key id -> secret. SIGNING_KEYS takes "kid:secret,kid:secret".
func (s Security) GetSigningKeys() map[string]string {
	return s.keyMap("signature.keys", "SIGNING_KEYS")
}

func (s Security) GetActiveSigningKeyID() string {
	return s.get("signature.active_kid", "SIGNING_KEY_ID", "")
}

// GetSigningAlgorithm is the algorithm for key ids without an entry in GetSigningKeyAlgorithms.
func (s Security) GetSigningAlgorithm() string {
	return s.get("signature.algorithm", "SIGNING_ALGORITHM", "HS256")
}

// GetSigningKeyAlgorithms returns key id -> algorithm. SIGNING_KEY_ALGORITHMS takes "kid:alg,kid:alg".
func (s Security) GetSigningKeyAlgorithms() map[string]string {
	return s.keyMap("signature.algorithms", "SIGNING_KEY_ALGORITHMS")
}

func (s Security) keyMap(key, envVar string) map[string]string {
	env := GetEnv(envVar, "")
	if env == "" {
		return s.stringMap(key)
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(env, ",") {
		kid, value, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if ok {
			out[kid] = value
		}
	}
	return out
}
