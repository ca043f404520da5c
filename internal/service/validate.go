package service

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/Karinaskol06/webchat-microservices/internal/apperror"
	"github.com/Karinaskol06/webchat-microservices/internal/model"
)

// Field limits shared by registration, profile updates and password changes.
const (
	minUsernameLen = 3
	maxUsernameLen = 50
	minPasswordLen = 5
)

func validateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	switch {
	case strings.TrimSpace(username) == "":
		return apperror.ValidationFailed("username", "Username is required")
	case n < minUsernameLen || n > maxUsernameLen:
		return apperror.ValidationFailed("username", "Username must be between 3 and 50 characters")
	}
	return nil
}

func validatePassword(field, password string) error {
	if utf8.RuneCountInString(password) < minPasswordLen {
		return apperror.ValidationFailed(field, "Password must be at least 5 characters")
	}
	return nil
}

// validateEmail accepts a bare address only; display names such as
// "Alice <a@example.com>" are rejected.
func validateEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return apperror.ValidationFailed("email", "Email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return apperror.ValidationFailed("email", "Email should be valid")
	}
	return nil
}

func validateRegistration(req model.RegisterRequest) error {
	if err := validateUsername(req.Username); err != nil {
		return err
	}
	if err := validatePassword("password", req.Password); err != nil {
		return err
	}
	return validateEmail(req.Email)
}
