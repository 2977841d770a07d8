package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrSecretNotFound is returned for a secret set neither in the
// environment nor in the secrets section.
var ErrSecretNotFound = errors.New("secret not found")

// Secrets maps secret names, such as YOUTUBE_CLIENT_ID, to values.
type Secrets map[string]string

// Secret returns the named secret. An environment variable of the same
// name wins over the configured value.
func (s Secrets) Secret(name string) (string, error) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v, nil
	}
	if v := strings.TrimSpace(s[name]); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
}
