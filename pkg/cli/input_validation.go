package cli

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrInvalidIdentifier is returned for ids that could not have been minted by the service
	ErrInvalidIdentifier = errors.New("invalid identifier")

	identifierPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]*$`)
)

const maxIdentifierLen = 64

// ValidateIdentifier checks a shop, player or transaction id passed on the
// command line before it reaches a query
func ValidateIdentifier(kind, value string) error {
	if value == "" {
		return fmt.Errorf("%s id is empty: %w", kind, ErrInvalidIdentifier)
	}
	if len(value) > maxIdentifierLen {
		return fmt.Errorf("%s id longer than %d characters: %w", kind, maxIdentifierLen, ErrInvalidIdentifier)
	}
	if !identifierPattern.MatchString(value) {
		return fmt.Errorf("%s id %q has unsupported characters: %w", kind, value, ErrInvalidIdentifier)
	}
	return nil
}
