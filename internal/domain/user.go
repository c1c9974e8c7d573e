package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hilthontt/buzzer/internal/infrastructure/validate"
)

const maxUsernameLength = 32

var ErrInvalidUsername = errors.New("invalid username")

var validateUsername = validate.Field("username",
	validate.Required(),
	validate.MaxLength(maxUsernameLength),
	validate.Printable(),
)

// NormalizeUsername trims surrounding whitespace and validates what is left.
func NormalizeUsername(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if err := validateUsername(name); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidUsername, err)
	}
	return name, nil
}
