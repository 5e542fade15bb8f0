package security

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	bcryptCost       = 12
	downloadAudience = "declaration-download"
	downloadRoute    = "/api/download-pdf/"
)

var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrInvalidPassword = errors.New("invalid credentials")
)

// TokenService signs and verifies download links for generated documents.
type TokenService struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

func NewTokenService(secret string, expiry time.Duration) *TokenService {
	if expiry <= 0 {
		expiry = 30 * time.Minute
	}
	return &TokenService{secret: []byte(secret), expiry: expiry, now: time.Now}
}

// GenerateDownloadToken signs a token valid for filename only.
func (s *TokenService) GenerateDownloadToken(filename string) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub": filename,
		"aud": downloadAudience,
		"exp": now.Add(s.expiry).Unix(),
		"iat": now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateDownloadToken checks that tokenString is a live download token for filename.
func (s *TokenService) ValidateDownloadToken(tokenString, filename string) error {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	},
		jwt.WithAudience(downloadAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return ErrInvalidToken
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub != filename {
		return fmt.Errorf("%w: token does not grant this file", ErrInvalidToken)
	}
	return nil
}

// DownloadURL returns the relative, signed download link for filename.
func (s *TokenService) DownloadURL(filename string) (string, error) {
	token, err := s.GenerateDownloadToken(filename)
	if err != nil {
		return "", err
	}
	return downloadRoute + url.PathEscape(filename) + "?token=" + url.QueryEscape(token), nil
}

// AdminAuth checks operator credentials against a bcrypt hash.
type AdminAuth struct {
	user         string
	passwordHash []byte
}

func NewAdminAuth(user, passwordHash string) *AdminAuth {
	return &AdminAuth{user: user, passwordHash: []byte(passwordHash)}
}

// HashPassword produces a hash suitable for ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify returns nil when user and password match. An unconfigured hash
// rejects everything.
func (a *AdminAuth) Verify(user, password string) error {
	if a == nil || len(a.passwordHash) == 0 {
		return ErrInvalidPassword
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(a.user)) == 1
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil || !userOK {
		return ErrInvalidPassword
	}
	return nil
}
