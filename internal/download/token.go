// Package download mints and verifies download grants: signed, time-scoped
// capabilities permitting retrieval of a purchased e-book in one format.
// Grants are not persisted; verification is stateless (signature + expiry).
package download

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidGrant = errors.New("download: invalid grant")
	ErrBadFormat    = errors.New("download: unsupported format")
)

// Formats every purchased e-book is delivered in.
var Formats = []string{"pdf", "epub", "mobi"}

// Grant identifies one (user, ebook, format) download capability.
type Grant struct {
	UserID  string
	EbookID string
	Format  string
}

type claims struct {
	UserID  string `json:"uid"`
	EbookID string `json:"ebook"`
	Format  string `json:"fmt"`
	jwt.RegisteredClaims
}

// Minter signs and verifies grants with an HMAC secret.
type Minter struct {
	secret []byte
	ttl    time.Duration
}

func NewMinter(secret string, ttl time.Duration) *Minter {
	return &Minter{secret: []byte(secret), ttl: ttl}
}

// Mint returns a signed token for the grant.
func (m *Minter) Mint(g Grant) (string, error) {
	if !validFormat(g.Format) {
		return "", ErrBadFormat
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID:  g.UserID,
		EbookID: g.EbookID,
		Format:  g.Format,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("download: sign grant: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry and returns the embedded grant.
func (m *Minter) Verify(token string) (Grant, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Grant{}, ErrInvalidGrant
	}
	if c.UserID == "" || c.EbookID == "" || !validFormat(c.Format) {
		return Grant{}, ErrInvalidGrant
	}
	return Grant{UserID: c.UserID, EbookID: c.EbookID, Format: c.Format}, nil
}

func validFormat(f string) bool {
	for _, known := range Formats {
		if f == known {
			return true
		}
	}
	return false
}
