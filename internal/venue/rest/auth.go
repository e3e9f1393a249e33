package rest

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenLifetime is how long a minted bearer token is considered valid
// before BearerAuth mints a fresh one. Venues typically accept a shorter
// window than this; refreshing early avoids racing a request against
// server-side clock skew.
const tokenLifetime = 5 * time.Minute

// BearerAuth mints and caches HS256 bearer tokens for venue REST calls,
// replacing the EIP-712/HMAC signing scheme a Polymarket-specific client
// would use: a generic venue only needs a signed bearer credential per
// request, not a wallet-derived L1/L2 handshake.
type BearerAuth struct {
	secret []byte
	issuer string
	keyID  string

	mu        sync.Mutex
	cached    string
	expiresAt time.Time
}

// NewBearerAuth creates an auth provider signing with the given shared
// secret. issuer and keyID are carried as JWT claims identifying this
// client to the venue.
func NewBearerAuth(secret []byte, issuer, keyID string) *BearerAuth {
	return &BearerAuth{secret: secret, issuer: issuer, keyID: keyID}
}

// Token returns a valid bearer token, minting a new one if the cached
// token has expired or is within its final minute.
func (a *BearerAuth) Token() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cached != "" && time.Until(a.expiresAt) > time.Minute {
		return a.cached, nil
	}

	now := time.Now()
	expires := now.Add(tokenLifetime)
	claims := jwt.RegisteredClaims{
		Issuer:    a.issuer,
		Subject:   a.keyID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign bearer token: %w", err)
	}

	a.cached = signed
	a.expiresAt = expires
	return signed, nil
}
