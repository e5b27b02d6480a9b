package config

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

var (
	mu sync.Mutex
	v  = newViper()
)

func newViper() *viper.Viper {
	vp := viper.New()
	vp.AutomaticEnv()
	return vp
}

// LoadFile merges an optional YAML config file (e.g. slotbook.yaml) under the environment.
// Environment variables always win over file values. A missing file is not an error.
func LoadFile(name string, paths ...string) error {
	mu.Lock()
	defer mu.Unlock()

	vp := newViper()
	vp.SetConfigName(name)
	vp.SetConfigType("yaml")
	for _, p := range paths {
		vp.AddConfigPath(p)
	}
	if err := vp.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("read config %s: %w", name, err)
		}
	}
	v = vp
	return nil
}

func lookup(key string) string {
	mu.Lock()
	defer mu.Unlock()
	return strings.TrimSpace(v.GetString(key))
}

func String(key, fallback string) string {
	if s := lookup(key); s != "" {
		return s
	}
	return fallback
}

func RequiredString(key string) (string, error) {
	s := lookup(key)
	if s == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return s, nil
}

func Port(key, fallback string) (string, error) {
	s := String(key, fallback)
	p, err := strconv.Atoi(s)
	if err != nil || p < 1 || p > 65535 {
		return "", fmt.Errorf("%s must be a valid TCP port (got %q)", key, s)
	}
	return s, nil
}

func Int(key string, fallback int) (int, error) {
	s := lookup(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got %q)", key, s)
	}
	return n, nil
}

func Bool(key string, fallback bool) bool {
	s := lookup(key)
	if s == "" {
		return fallback
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return fallback
	}
	return b
}

// Duration accepts Go duration strings ("1500ms", "2s").
func Duration(key string, fallback time.Duration) (time.Duration, error) {
	s := lookup(key)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%s must be a non-negative duration (got %q)", key, s)
	}
	return d, nil
}

// Set overrides a key in-process. Intended for tests and CLI flags.
func Set(key string, value any) {
	mu.Lock()
	defer mu.Unlock()
	v.Set(key, value)
}
