// Package platform names the external social media platforms handles are
// connected to.
package platform

import (
	"fmt"
	"strings"
)

// Platform identifies an external social media platform.
type Platform string

const (
	Instagram Platform = "instagram"
	YouTube   Platform = "youtube"
)

// All lists the supported platforms in a stable order.
var All = []Platform{Instagram, YouTube}

// Parse normalizes s and validates it names a supported platform.
func Parse(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case Instagram, YouTube:
		return p, nil
	}
	return "", fmt.Errorf("unsupported platform %q", s)
}

func (p Platform) String() string { return string(p) }
