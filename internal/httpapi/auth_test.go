package httpapi

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/Srijan10011/Business-Calc-sub000/internal/domain"
)

func TestVerifierRoundTrip(t *testing.T) {
	v := NewVerifier(testSecret)
	want := domain.BusinessContext{BusinessID: "biz-9", UserID: "user-3", Role: "manager"}

	token, err := v.Sign(want, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	got, err := v.ParseToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestVerifierRejectsForeignAndExpiredTokens(t *testing.T) {
	v := NewVerifier(testSecret)
	bc := domain.BusinessContext{BusinessID: "biz-1", UserID: "user-1"}

	foreign, err := NewVerifier("another-secret-another-secret-xx").Sign(bc, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := v.ParseToken(foreign); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}

	expired, err := v.Sign(bc, -time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := v.ParseToken(expired); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestVerifierRequiresBusinessClaim(t *testing.T) {
	v := NewVerifier(testSecret)
	token, err := v.Sign(domain.BusinessContext{UserID: "user-1"}, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := v.ParseToken(token); err == nil {
		t.Fatalf("expected token without business_id to be rejected")
	}
}

func TestVerifierRejectsNoneAlgorithm(t *testing.T) {
	v := NewVerifier(testSecret)
	claims := ledgerClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Minute)),
		},
		BusinessID: "biz-1",
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, claims).SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := v.ParseToken(token); err == nil {
		t.Fatalf("expected unsigned token to be rejected")
	}
}
