package market

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	usernameMinLength = 3
	usernameMaxLength = 32
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// NormalizeUsername lowercases and validates the supplied username. Allowed
// are 3 to 32 characters from [A-Za-z0-9_]; the lowercase form is what gets
// derived into the record address, so claims differing only in case collide.
func NormalizeUsername(username string) (string, error) {
	trimmed := strings.TrimSpace(username)
	lower := strings.ToLower(trimmed)
	length := len(lower)
	if length < usernameMinLength || length > usernameMaxLength {
		return "", fmt.Errorf("%w: must be between %d and %d characters", ErrInvalidUsername, usernameMinLength, usernameMaxLength)
	}
	if !usernamePattern.MatchString(lower) {
		return "", fmt.Errorf("%w: allowed characters are [A-Za-z0-9_]", ErrInvalidUsername)
	}
	return lower, nil
}
