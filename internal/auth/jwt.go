// Package auth validates the identity tokens issued by the marketplace's
// session service. Tokens carry the user id and marketplace role.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/ammar1510/tutorchat/internal/logger"
	"github.com/ammar1510/tutorchat/internal/models"
)

// TokenTTL is the lifetime of tokens minted by GenerateToken
const TokenTTL = 24 * time.Hour

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrInvalidRole  = errors.New("invalid role in token")

	jwtKey []byte
	log    = logger.New("auth")
)

// InitJWTKey sets the HMAC secret shared with the session service
func InitJWTKey(key []byte) {
	jwtKey = key
}

// JWTClaims represents the claims in the JWT
type JWTClaims struct {
	UserID string      `json:"user_id"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken mints a token for user. The server itself never issues
// tokens; this serves tooling and tests.
func GenerateToken(user *models.User) (string, time.Time, error) {
	if user == nil {
		return "", time.Time{}, errors.New("user cannot be nil")
	}
	if user.ID == uuid.Nil {
		return "", time.Time{}, errors.New("user ID cannot be empty")
	}
	if !user.Role.Valid() {
		return "", time.Time{}, ErrInvalidRole
	}

	now := time.Now()
	expirationTime := now.Add(TokenTTL)

	claims := &JWTClaims{
		UserID: user.ID.String(),
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(jwtKey)

	return tokenString, expirationTime, err
}

// ValidateToken validates a JWT token and returns the claims
func ValidateToken(tokenString string) (*JWTClaims, error) {
	if tokenString == "" {
		log.Warn("Validating empty token")
		return nil, ErrInvalidToken
	}
	if len(jwtKey) == 0 {
		log.Error("JWT key is not initialized")
		return nil, ErrInvalidToken
	}

	claims := &JWTClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return jwtKey, nil
	})

	if err != nil {
		log.Debug("Token validation error: %v", err)
		return nil, err
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// GetUserIDFromToken extracts the UserID from claims
func GetUserIDFromToken(claims *JWTClaims) (uuid.UUID, error) {
	if claims == nil {
		return uuid.Nil, errors.New("claims cannot be nil")
	}
	return uuid.Parse(claims.UserID)
}

// Identity validates tokenString and returns the user it proves
func Identity(tokenString string) (uuid.UUID, models.Role, error) {
	claims, err := ValidateToken(tokenString)
	if err != nil {
		return uuid.Nil, "", err
	}

	userID, err := GetUserIDFromToken(claims)
	if err != nil {
		return uuid.Nil, "", ErrInvalidToken
	}
	if !claims.Role.Valid() {
		return uuid.Nil, "", ErrInvalidRole
	}
	return userID, claims.Role, nil
}
