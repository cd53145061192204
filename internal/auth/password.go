package auth

import (
	"errors"
	"fmt"
	"unicode"

	"github.com/worldstream/server/internal/config"
	"golang.org/x/crypto/bcrypt"
)

// PasswordService checks the admin credential.
type PasswordService struct {
	bcryptCost int
	adminHash  string
}

// NewPasswordService creates a new password service with configuration
func NewPasswordService(cfg *config.Config) *PasswordService {
	cost := cfg.Auth.BCryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &PasswordService{
		bcryptCost: cost,
		adminHash:  cfg.Auth.AdminPasswordHash,
	}
}

// HashPassword hashes a password using bcrypt. It is used to produce
// ADMIN_PASSWORD_HASH values.
func (s *PasswordService) HashPassword(password string) (string, error) {
	if err := s.ValidatePasswordStrength(password); err != nil {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword verifies a password against a hash
func (s *PasswordService) VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// AdminEnabled reports whether an admin hash is configured.
func (s *PasswordService) AdminEnabled() bool {
	return s.adminHash != ""
}

// VerifyAdmin checks password against the configured admin hash.
func (s *PasswordService) VerifyAdmin(password string) bool {
	if !s.AdminEnabled() {
		return false
	}
	return s.VerifyPassword(password, s.adminHash)
}

// ValidatePasswordStrength requires at least 8 characters with upper and
// lower case letters, a digit and a symbol.
func (s *PasswordService) ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters long")
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsNumber(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}

	switch {
	case !hasUpper:
		return errors.New("password must contain at least one uppercase letter")
	case !hasLower:
		return errors.New("password must contain at least one lowercase letter")
	case !hasNumber:
		return errors.New("password must contain at least one number")
	case !hasSpecial:
		return errors.New("password must contain at least one special character")
	}
	return nil
}
