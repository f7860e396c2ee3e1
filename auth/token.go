package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "client-portal"

// ObjectClaims grants read access to one object of one bucket.
type ObjectClaims struct {
	Bucket string `json:"bucket"`
	Path   string `json:"path"`
	jwt.RegisteredClaims
}

// URLSigner issues and checks the tokens embedded in signed object URLs.
type URLSigner struct {
	key []byte
	now func() time.Time
}

func NewURLSigner(key []byte) *URLSigner {
	return &URLSigner{key: key, now: time.Now}
}

// Sign creates an HS256 token valid for ttl.
func (s *URLSigner) Sign(bucket, path string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := &ObjectClaims{
		Bucket: bucket,
		Path:   path,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// Verify checks signature, algorithm and expiry of a token.
func (s *URLSigner) Verify(tokenString string) (*ObjectClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ObjectClaims{},
		func(token *jwt.Token) (interface{}, error) {
			return s.key, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*ObjectClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}

// BearerToken extracts the credential of an "Authorization: Bearer <token>"
// header value, the scheme is matched case-insensitively.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
