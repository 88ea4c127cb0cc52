package service

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stemsi/wellcheck-backend/internal/config"
)

// TokenType distinguishes student vs admin tokens.
type TokenType string

const (
	TokenTypeStudent TokenType = "student"
	TokenTypeAdmin   TokenType = "admin"
)

// Permission codes carried by admin tokens.
const (
	PermissionInstrumentsRead  = "instruments:read"
	PermissionInstrumentsWrite = "instruments:write"
	PermissionAnalyticsRead    = "analytics:read"
	PermissionStudentsRead     = "students:read"
)

// Claims extends JWT standard claims with app-specific fields.
// Tokens are issued by the identity service; this service only verifies them.
type Claims struct {
	jwt.RegisteredClaims
	TokenType TokenType `json:"token_type"`
	UserID    int       `json:"user_id"`
	// SchoolID scopes a student, or a school administrator, to one school.
	// Zero on a platform admin token.
	SchoolID    int      `json:"school_id,omitempty"`
	Permissions []string `json:"permissions,omitempty"` // Admin only
}

// AuthService verifies bearer tokens.
type AuthService struct {
	cfg *config.Config
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{cfg: cfg}
}

// GenerateStudentToken signs a student token. Used by tooling and tests.
func (s *AuthService) GenerateStudentToken(studentID, schoolID int) (string, error) {
	return s.sign(Claims{
		TokenType: TokenTypeStudent,
		UserID:    studentID,
		SchoolID:  schoolID,
	})
}

// GenerateAdminToken signs an admin token with permissions embedded.
// A non-zero schoolID restricts the admin to that school.
func (s *AuthService) GenerateAdminToken(adminID, schoolID int, permissions []string) (string, error) {
	return s.sign(Claims{
		TokenType:   TokenTypeAdmin,
		UserID:      adminID,
		SchoolID:    schoolID,
		Permissions: permissions,
	})
}

func (s *AuthService) sign(claims Claims) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.New().String(),
		Subject:   strconv.Itoa(claims.UserID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
