package httpapi

import (
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/Srijan10011/Business-Calc-sub000/internal/domain"
)

const tokenIssuer = "business-ledger"

// Verifier checks bearer tokens issued by the surrounding application and
// turns them into a BusinessContext. Issuing login tokens is not its job;
// Sign exists for tooling and tests.
type Verifier struct {
	secret []byte
}

type ledgerClaims struct {
	jwtlib.RegisteredClaims
	BusinessID string `json:"business_id"`
	Role       string `json:"role"`
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

func (v *Verifier) ParseToken(tokenStr string) (domain.BusinessContext, error) {
	if len(v.secret) == 0 {
		return domain.BusinessContext{}, errors.New("token verification is not configured")
	}
	claims := &ledgerClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithExpirationRequired())
	if err != nil || !token.Valid {
		return domain.BusinessContext{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.BusinessContext{}, errors.New("invalid token subject")
	}
	if strings.TrimSpace(claims.BusinessID) == "" {
		return domain.BusinessContext{}, errors.New("token carries no business")
	}
	return domain.BusinessContext{BusinessID: claims.BusinessID, UserID: sub, Role: claims.Role}, nil
}

func (v *Verifier) Sign(bc domain.BusinessContext, ttl time.Duration) (string, error) {
	if len(v.secret) == 0 {
		return "", errors.New("token signing is not configured")
	}
	now := time.Now().UTC()
	claims := ledgerClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   bc.UserID,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
			Issuer:    tokenIssuer,
		},
		BusinessID: bc.BusinessID,
		Role:       bc.Role,
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(v.secret)
}
