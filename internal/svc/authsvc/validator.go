package authsvc

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/mkrupp/streamhub/internal/domain"
)

// MinPasswordLength is the minimum number of characters of a password.
const MinPasswordLength = 6

// Name length bounds, in characters.
const (
	MinNameLength = 2
	MaxNameLength = 100
)

//nolint:gochecknoglobals
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func validationError(message string) error {
	return domain.NewError(domain.KindValidation, message)
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks the shape of a normalized email address.
func ValidateEmail(email string) error {
	if !emailPattern.MatchString(email) {
		return validationError("please provide a valid email address")
	}

	return nil
}

// ValidateName checks the length of a trimmed display name.
func ValidateName(name string) error {
	if n := utf8.RuneCountInString(name); n < MinNameLength || n > MaxNameLength {
		return validationError("name must be between 2 and 100 characters")
	}

	return nil
}

// ValidatePassword checks the length of a new password and that the
// confirmation, if given, matches.
func ValidatePassword(password, confirmPassword string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return validationError("password must be at least 6 characters long")
	}

	if confirmPassword != "" && confirmPassword != password {
		return validationError("passwords do not match")
	}

	return nil
}

// ValidateRegistration checks the input of a self registration or an admin
// created account. Email must already be normalized.
func ValidateRegistration(name, email, password, confirmPassword string) error {
	if name == "" || email == "" || password == "" {
		return validationError("please provide name, email, and password")
	}

	if err := ValidateName(name); err != nil {
		return err
	}

	if err := ValidateEmail(email); err != nil {
		return err
	}

	return ValidatePassword(password, confirmPassword)
}
