package accounts

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// Domain errors surfaced to API callers.
var (
	ErrAccountAlreadyExists  = errors.New("account already exists")
	ErrAccountDoesNotExist   = errors.New("account does not exist")
	ErrHandleAlreadyExists   = errors.New("social media handle already connected to another account")
	ErrNoSocialMediaHandle   = errors.New("no social media handle exists")
	ErrPlatformAuthorization = errors.New("platform authorization failed")
	ErrUnsupportedPlatform   = errors.New("unsupported platform")
)

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
