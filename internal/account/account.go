// Package account validates external-platform account identifiers.
package account

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var ErrInvalidAccountID = errors.New("invalid account id")

var accountIDPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("accountid", func(fl validator.FieldLevel) bool {
		return accountIDPattern.MatchString(fl.Field().String())
	})
	return v
}

// Validator returns the shared validator with the "accountid" tag registered.
func Validator() *validator.Validate {
	return validate
}

// Validate checks an account id is 2-32 characters of letters, digits and
// underscores. Ids are case-sensitive.
func Validate(id string) error {
	if err := validate.Var(id, "required,min=2,max=32,accountid"); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidAccountID, id)
	}
	return nil
}

// HashClientIP returns the hex SHA-256 of ip, or "" when ip is empty. Spin
// logs keep only the hash.
func HashClientIP(ip string) string {
	if ip == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:])
}
