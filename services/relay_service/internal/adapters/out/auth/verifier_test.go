package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestHMACVerifier(t *testing.T) {
	v, err := NewHMACVerifier("s3cret", "relay-test")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	token, err := v.Issue("alice", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	uid, err := v.Verify(ctx, token)
	if err != nil || uid != "alice" {
		t.Fatalf("Verify = %q, %v", uid, err)
	}

	expired, _ := v.Issue("alice", -time.Minute)
	if _, err := v.Verify(ctx, expired); err == nil {
		t.Fatal("expired token accepted")
	}

	other, _ := NewHMACVerifier("other", "relay-test")
	forged, _ := other.Issue("alice", time.Minute)
	if _, err := v.Verify(ctx, forged); err == nil {
		t.Fatal("token signed with another secret accepted")
	}

	wrongIss, _ := NewHMACVerifier("s3cret", "someone-else")
	foreign, _ := wrongIss.Issue("alice", time.Minute)
	if _, err := v.Verify(ctx, foreign); err == nil {
		t.Fatal("token from another issuer accepted")
	}

	noSub, _ := v.Issue("", time.Minute)
	if _, err := v.Verify(ctx, noSub); err == nil {
		t.Fatal("token without subject accepted")
	}

	if _, err := v.Verify(ctx, "garbage"); err == nil {
		t.Fatal("garbage accepted")
	}
}

func TestHMACVerifierNeedsSecret(t *testing.T) {
	if _, err := NewHMACVerifier("", ""); err == nil {
		t.Fatal("empty secret accepted")
	}
}

func TestHMACVerifierRejectsNoneAlg(t *testing.T) {
	v, _ := NewHMACVerifier("s3cret", "")
	claims := jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.Verify(context.Background(), unsigned); err == nil {
		t.Fatal("alg=none accepted")
	}
}

func TestJWKSVerifier(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": "k1",
				"alg": "RS256",
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
			}},
		})
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	v, err := NewJWKSVerifier(ctx, srv.URL, "https://issuer.test")
	if err != nil {
		t.Fatalf("NewJWKSVerifier: %v", err)
	}
	defer v.Close()

	sign := func(sub, iss string) string {
		tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    iss,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		})
		tok.Header["kid"] = "k1"
		s, err := tok.SignedString(key)
		if err != nil {
			t.Fatal(err)
		}
		return s
	}

	uid, err := v.Verify(ctx, sign("user_2abc", "https://issuer.test"))
	if err != nil || uid != "user_2abc" {
		t.Fatalf("Verify = %q, %v", uid, err)
	}
	if _, err := v.Verify(ctx, sign("user_2abc", "https://evil.test")); err == nil {
		t.Fatal("wrong issuer accepted")
	}
}
