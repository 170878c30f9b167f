package auth

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Verifier checks HS256 bearer tokens minted by the identity provider. The
// gateway never issues tokens itself.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

type VerifierConfig struct {
	Secret string
	// Issuer is enforced when set.
	Issuer string
	Leeway time.Duration
}

func NewVerifier(cfg VerifierConfig) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	return &Verifier{secret: []byte(cfg.Secret), parser: jwt.NewParser(opts...)}
}

func (v *Verifier) Verify(raw string) (VerifiedToken, error) {
	if len(v.secret) == 0 {
		return VerifiedToken{}, fmt.Errorf("jwt secret is empty")
	}
	if strings.TrimSpace(raw) == "" {
		return VerifiedToken{}, ErrUnauthorized
	}

	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return VerifiedToken{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	subject, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || subject <= 0 {
		return VerifiedToken{}, fmt.Errorf("%w: bad subject %q", ErrUnauthorized, claims.Subject)
	}

	role := strings.ToLower(strings.TrimSpace(claims.Role))
	switch role {
	case "":
		role = RoleSender
	case RoleSender:
	case RoleAdmin:
		if strings.TrimSpace(claims.Reviewer) == "" {
			return VerifiedToken{}, fmt.Errorf("%w: admin token without reviewer", ErrUnauthorized)
		}
	default:
		return VerifiedToken{}, fmt.Errorf("%w: unknown role %q", ErrUnauthorized, claims.Role)
	}

	return VerifiedToken{
		SubjectID: subject,
		Role:      role,
		Reviewer:  strings.TrimSpace(claims.Reviewer),
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
