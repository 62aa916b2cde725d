package credcache

import (
	"fmt"
	"time"

	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// IdentityClaims are the claims of the identity token issued alongside the
// temporary credentials. Subject is the anonymous identity.
type IdentityClaims struct {
	jwt.RegisteredClaims
	AppID string `json:"app_id,omitempty"`
}

// ParseIdentityToken reads the claims of an identity token. The signature is
// not checked: the token is only used to scope staging paths, and the
// storage service authorizes the actual writes.
func ParseIdentityToken(tokenString string) (*IdentityClaims, error) {
	claims := &IdentityClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("%w: identity token: %v", common.ErrServerRejected, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: identity token has no subject", common.ErrServerRejected)
	}
	return claims, nil
}

// expiry returns the token expiry, or the zero time when absent.
func (c *IdentityClaims) expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}
