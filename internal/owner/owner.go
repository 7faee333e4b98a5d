package owner

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalid is returned when an owner identifier cannot be used as a key.
var ErrInvalid = errors.New("invalid owner")

// Owner ids end up in container names, file names and JetStream KV keys, so
// the alphabet is the intersection of all three.
var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,62}$`)

// ID identifies a player across the instance and island namespaces.
type ID string

func (id ID) String() string {
	return string(id)
}

// Parse canonicalizes raw (trimmed, lowercase) and validates it.
func Parse(raw string) (ID, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", fmt.Errorf("%w: owner is required", ErrInvalid)
	}
	if !idPattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q must be alphanumeric, '-' or '_'", ErrInvalid, raw)
	}
	return ID(s), nil
}

// MustParse is Parse for constants and tests.
func MustParse(raw string) ID {
	id, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return id
}
