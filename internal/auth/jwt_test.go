package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar1510/tutorchat/internal/models"
)

var testKey = []byte("test-secret-key-for-jwt-tests")

func testUser(role models.Role) *models.User {
	return &models.User{
		ID:    uuid.New(),
		Name:  "testuser",
		Email: "test@example.com",
		Role:  role,
	}
}

func TestGenerateToken(t *testing.T) {
	InitJWTKey(testKey)

	tests := []struct {
		name    string
		user    *models.User
		wantErr bool
	}{
		{
			name:    "student",
			user:    testUser(models.RoleStudent),
			wantErr: false,
		},
		{
			name:    "teacher",
			user:    testUser(models.RoleTeacher),
			wantErr: false,
		},
		{
			name:    "missing user ID",
			user:    &models.User{Role: models.RoleStudent},
			wantErr: true,
		},
		{
			name:    "unknown role",
			user:    testUser(models.Role("admin")),
			wantErr: true,
		},
		{
			name:    "nil user",
			user:    nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, expiry, err := GenerateToken(tt.user)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Empty(t, token)
				return
			}

			require.NoError(t, err)
			assert.NotEmpty(t, token)
			assert.True(t, expiry.After(time.Now()))

			claims, err := ValidateToken(token)
			require.NoError(t, err)
			assert.Equal(t, tt.user.ID.String(), claims.UserID)
			assert.Equal(t, tt.user.Role, claims.Role)
		})
	}
}

func TestValidateToken(t *testing.T) {
	InitJWTKey(testKey)

	user := testUser(models.RoleStudent)
	validToken, _, err := GenerateToken(user)
	require.NoError(t, err)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &JWTClaims{
		UserID: user.ID.String(),
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	expiredToken, err := expired.SignedString(testKey)
	require.NoError(t, err)

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, &JWTClaims{UserID: user.ID.String(), Role: user.Role})
	foreignToken, err := foreign.SignedString([]byte("some-other-secret"))
	require.NoError(t, err)

	tests := []struct {
		name        string
		tokenString string
		wantErr     bool
	}{
		{name: "valid token", tokenString: validToken},
		{name: "empty token", tokenString: "", wantErr: true},
		{name: "invalid token format", tokenString: "not.a.valid.jwt.token", wantErr: true},
		{name: "tampered token", tokenString: validToken + "tampered", wantErr: true},
		{name: "expired token", tokenString: expiredToken, wantErr: true},
		{name: "wrong secret", tokenString: foreignToken, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := ValidateToken(tt.tokenString)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, claims)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, user.ID.String(), claims.UserID)
		})
	}
}

func TestGetUserIDFromToken(t *testing.T) {
	user := testUser(models.RoleTeacher)

	tests := []struct {
		name    string
		claims  *JWTClaims
		want    uuid.UUID
		wantErr bool
	}{
		{name: "valid claims", claims: &JWTClaims{UserID: user.ID.String()}, want: user.ID},
		{name: "invalid UUID format", claims: &JWTClaims{UserID: "not-a-valid-uuid"}, wantErr: true},
		{name: "nil claims", claims: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userID, err := GetUserIDFromToken(tt.claims)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, uuid.Nil, userID)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, userID)
		})
	}
}

func TestIdentity(t *testing.T) {
	InitJWTKey(testKey)

	user := testUser(models.RoleTeacher)
	token, _, err := GenerateToken(user)
	require.NoError(t, err)

	userID, role, err := Identity(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, userID)
	assert.Equal(t, models.RoleTeacher, role)

	noRole := jwt.NewWithClaims(jwt.SigningMethodHS256, &JWTClaims{UserID: user.ID.String()})
	noRoleToken, err := noRole.SignedString(testKey)
	require.NoError(t, err)

	_, _, err = Identity(noRoleToken)
	assert.ErrorIs(t, err, ErrInvalidRole)
}
