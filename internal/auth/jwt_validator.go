package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/backend-pdv/internal/common"
)

const (
	claimRole   = "role"
	claimBranch = "filial"
	claimName   = "name"
)

// TokenValidator validates structural and contextual properties of JWT tokens.
type TokenValidator struct {
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Algorithm jwa.SignatureAlgorithm
}

// Validate checks issuer, audience, expiry and algorithm.
func (v TokenValidator) Validate(tok jwt.Token, algorithm jwa.SignatureAlgorithm, now time.Time) error {
	if tok == nil {
		return errors.New("auth: token is nil")
	}
	if algorithm == "" {
		return errors.New("auth: token missing algorithm")
	}
	if v.Algorithm != "" && algorithm != v.Algorithm {
		return fmt.Errorf("auth: unexpected token algorithm %s", algorithm)
	}
	options := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
		jwt.WithRequiredClaim(claimRole),
	}
	if v.ClockSkew > 0 {
		options = append(options, jwt.WithAcceptableSkew(v.ClockSkew))
	}
	if v.Issuer != "" {
		options = append(options, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		options = append(options, jwt.WithAudience(v.Audience))
	}
	return jwt.Validate(tok, options...)
}

// Principal validates tok and reads the operator it was issued to. Sellers and
// managers must carry a branch; administrators may pick one per request.
func (v TokenValidator) Principal(tok jwt.Token, algorithm jwa.SignatureAlgorithm, now time.Time) (common.Principal, error) {
	if err := v.Validate(tok, algorithm, now); err != nil {
		return common.Principal{}, err
	}
	p := common.Principal{UserID: tok.Subject()}
	if p.UserID == "" {
		return common.Principal{}, errors.New("auth: token missing subject")
	}
	p.Role = common.Role(stringClaim(tok, claimRole))
	if !p.Role.Valid() {
		return common.Principal{}, fmt.Errorf("auth: unknown role %q", p.Role)
	}
	p.BranchID = stringClaim(tok, claimBranch)
	p.Name = stringClaim(tok, claimName)
	if p.BranchID == "" && p.Role != common.RoleAdmin {
		return common.Principal{}, errors.New("auth: token missing branch")
	}
	return p, nil
}

func stringClaim(tok jwt.Token, name string) string {
	raw, ok := tok.Get(name)
	if !ok {
		return ""
	}
	s, _ := raw.(string)
	return s
}
