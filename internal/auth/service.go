package auth

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned when username/password don't match.
var ErrInvalidCredentials = errors.New("invalid credentials")

const bcryptCost = 10

// Operator is a staff account configured with a bcrypt password hash.
type Operator struct {
	Username     string
	PasswordHash string
}

// HashPassword generates a bcrypt hash suitable for an Operator entry.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("empty password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Service issues and validates identity tokens.
type Service struct {
	jwtConfig *JWTConfig
	operators map[string]string
}

// NewService creates a new authentication service.
func NewService(jwtConfig *JWTConfig, operators []Operator) *Service {
	byName := make(map[string]string, len(operators))
	for _, op := range operators {
		byName[strings.TrimSpace(op.Username)] = op.PasswordHash
	}
	return &Service{jwtConfig: jwtConfig, operators: byName}
}

// Login checks operator credentials and returns a staff token.
func (s *Service) Login(username, password string) (string, error) {
	username = strings.TrimSpace(username)
	hash, ok := s.operators[username]
	if !ok || hash == "" {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return s.IssueToken(username, true)
}

// IssueToken signs a token for username.
func (s *Service) IssueToken(username string, isStaff bool) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", errors.New("empty username")
	}
	return GenerateToken(s.jwtConfig, username, isStaff)
}

// ValidateToken validates a token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}
