package jwt

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoKeys       = errors.New("jwt: no public keys configured")
	ErrInvalidToken = errors.New("jwt: invalid token")
)

// Validator checks bearer tokens against a set of PEM certificates. The
// token's kid header selects the certificate by subject common name.
type Validator struct {
	keys   map[string]any
	first  any
	parser *jwt.Parser
}

func NewValidator(pubPemPaths []string, issuer, audience string) (*Validator, error) {
	v := &Validator{keys: make(map[string]any)}
	for _, p := range pubPemPaths {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		c, err := parseCertificate(b)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		v.keys[c.Subject.CommonName] = c.PublicKey
		if v.first == nil {
			v.first = c.PublicKey
		}
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "EdDSA"})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	v.parser = jwt.NewParser(opts...)
	return v, nil
}

func parseCertificate(b []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, errors.New("invalid pem")
	}
	return x509.ParseCertificate(block.Bytes)
}

// Verify parses tokenStr and returns its claims when signature, issuer and
// audience all check out.
func (v *Validator) Verify(tokenStr string) (jwt.MapClaims, error) {
	if v == nil || v.first == nil {
		return nil, ErrNoKeys
	}
	claims := jwt.MapClaims{}
	tok, err := v.parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if kid, _ := t.Header["kid"].(string); kid != "" {
			if k, ok := v.keys[kid]; ok {
				return k, nil
			}
		}
		return v.first, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tok.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
