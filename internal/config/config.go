package config

import (
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

type Config interface {
	EnvConfig
	CorsConfig
	PaymentsConfig
	OAuthConfig
	SecurityConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	Payments
	OAuth
	Security
}

// New returns a Config backed by environment variables and defaults only.
func New() Config {
	return newMainConfig(koanf.New("."))
}

// Load reads the optional YAML file at path, then the flags that were set on the command line.
// Environment variables override both.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "[config.Load] read %s", path)
		}
	}
	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, errors.Wrap(err, "[config.Load] flags")
		}
	}
	return newMainConfig(k), nil
}

func newMainConfig(k *koanf.Koanf) mainConfig {
	s := source{k: k}
	return mainConfig{
		EnvVars:  EnvVars{s},
		Cors:     Cors{s},
		Payments: Payments{s},
		OAuth:    OAuth{s},
		Security: Security{s},
	}
}

// source resolves a setting from the environment, then koanf, then the default.
type source struct {
	k *koanf.Koanf
}

func (s source) get(key, envVar, defaultValue string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	if s.k != nil && s.k.Exists(key) {
		if v := s.k.String(key); v != "" {
			return v
		}
	}
	return defaultValue
}

func (s source) strings(key string) []string {
	if s.k == nil || !s.k.Exists(key) {
		return nil
	}
	return s.k.Strings(key)
}

func (s source) stringMap(key string) map[string]string {
	if s.k == nil || !s.k.Exists(key) {
		return nil
	}
	return s.k.StringMap(key)
}
