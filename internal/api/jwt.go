package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"stayfinder/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

var errUnauthenticated = errors.New("missing or invalid bearer token")

// Claims carries the caller identity. Subject is the numeric user id.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the authenticated caller of an HTTP request.
type Identity struct {
	UserID int64
	Role   string
}

// JWTAuth verifies HS256 bearer tokens. Tokens are issued by the identity provider;
// IssueToken exists for tooling and tests.
type JWTAuth struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

func NewJWTAuth(cfg config.JWTConfig) *JWTAuth {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	return &JWTAuth{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		parser: jwt.NewParser(opts...),
	}
}

func (a *JWTAuth) IssueToken(userID int64, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Authenticate reads the bearer token of r.
func (a *JWTAuth) Authenticate(r *http.Request) (Identity, error) {
	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return Identity{}, errUnauthenticated
	}

	claims := &Claims{}
	_, err := a.parser.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", errUnauthenticated, err)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return Identity{}, fmt.Errorf("%w: subject %q is not a user id", errUnauthenticated, claims.Subject)
	}
	return Identity{UserID: userID, Role: claims.Role}, nil
}
