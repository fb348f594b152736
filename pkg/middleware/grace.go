package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/warden/pkg/identity"
)

// DefaultGraceWindow covers the moment a session is rotated: the old
// token keeps working for this long after its last successful
// verification, so a request racing the rotation does not flap to 401.
const DefaultGraceWindow = 3 * time.Second

const graceCacheSize = 4096

// GraceTracker remembers recently verified tokens for a bounded window.
type GraceTracker struct {
	window time.Duration
	cache  *expirable.LRU[string, *identity.Identity]
}

// NewGraceTracker creates a tracker. window <= 0 uses the default.
func NewGraceTracker(window time.Duration) *GraceTracker {
	if window <= 0 {
		window = DefaultGraceWindow
	}
	return &GraceTracker{
		window: window,
		cache:  expirable.NewLRU[string, *identity.Identity](graceCacheSize, nil, window),
	}
}

// Window returns the configured grace duration.
func (g *GraceTracker) Window() time.Duration {
	return g.window
}

func tokenKey(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return hex.EncodeToString(sum[:])
}

// Remember records a successful verification.
func (g *GraceTracker) Remember(rawToken string, ident *identity.Identity) {
	g.cache.Add(tokenKey(rawToken), ident)
}

// Lookup returns the identity a now-failing token verified as within the
// grace window, if any.
func (g *GraceTracker) Lookup(rawToken string) (*identity.Identity, bool) {
	return g.cache.Get(tokenKey(rawToken))
}
