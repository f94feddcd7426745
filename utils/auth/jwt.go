package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

const (
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"

	accessTokenType = "access"
	clockSkew       = 30 * time.Second
)

type JWTConfig struct {
	Secret string
	Expiry time.Duration
	Issuer string
}

// Claims carried by access tokens. The account service signs them with a
// shared HMAC secret; this API only ever verifies.
type Claims struct {
	UserID    uint   `json:"user_id"`
	Role      string `json:"role"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// CanSeeAllSessions reports whether the holder may read other users' sessions
func (c *Claims) CanSeeAllSessions() bool {
	return c.Role == RoleAdmin || c.Role == RoleSuperAdmin
}

type JWTManager struct {
	secret []byte
	expiry time.Duration
	parser *jwt.Parser
	issuer string
}

func NewJWTManager(config JWTConfig) *JWTManager {
	if config.Expiry == 0 {
		config.Expiry = 15 * time.Minute
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(clockSkew),
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}

	return &JWTManager{
		secret: []byte(config.Secret),
		expiry: config.Expiry,
		parser: jwt.NewParser(opts...),
		issuer: config.Issuer,
	}
}

// Issue signs an access token for userID. Used by the CLIs and tests; in
// production tokens come from the account service.
func (j *JWTManager) Issue(userID uint, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:    userID,
		Role:      role,
		TokenType: accessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatUint(uint64(userID), 10),
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.expiry)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}

// Verify parses an access token. Refresh tokens and tokens without a user
// are rejected.
func (j *JWTManager) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := j.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return j.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case err != nil:
		return nil, ErrInvalidToken
	case claims.TokenType != accessTokenType, claims.UserID == 0:
		return nil, ErrInvalidToken
	}
	return claims, nil
}
