package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestValidateToken(t *testing.T) {
	userID := primitive.NewObjectID()
	good, err := GenerateAccessToken(userID, "driver", "secret", "tripchat", time.Hour)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &JWTClaims{
		UserID: userID.Hex(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			Issuer:    "tripchat",
		},
	})
	expiredToken, err := expired.SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign expired: %v", err)
	}

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &JWTClaims{UserID: userID.Hex()}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	tests := []struct {
		name    string
		token   string
		secret  string
		issuer  string
		wantErr bool
	}{
		{name: "valid", token: good, secret: "secret", issuer: "tripchat"},
		{name: "issuer not enforced when empty", token: good, secret: "secret", issuer: ""},
		{name: "wrong secret", token: good, secret: "nope", issuer: "tripchat", wantErr: true},
		{name: "wrong issuer", token: good, secret: "secret", issuer: "someone-else", wantErr: true},
		{name: "expired", token: expiredToken, secret: "secret", issuer: "tripchat", wantErr: true},
		{name: "alg none", token: unsigned, secret: "secret", issuer: "", wantErr: true},
		{name: "malformed", token: "abc", secret: "secret", issuer: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := ValidateToken(tt.token, tt.secret, tt.issuer)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateToken: %v", err)
			}
			if claims.UserID != userID.Hex() || claims.Role != "driver" {
				t.Errorf("claims = %+v", claims)
			}
		})
	}
}

func TestExtractUserIDFromToken(t *testing.T) {
	userID := primitive.NewObjectID()

	// tokens minted elsewhere may only carry the subject
	subjectOnly, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.Hex(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	got, err := ExtractUserIDFromToken(subjectOnly, "secret", "")
	if err != nil {
		t.Fatalf("ExtractUserIDFromToken: %v", err)
	}
	if got != userID {
		t.Errorf("user id = %s, want %s", got.Hex(), userID.Hex())
	}

	bad, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &JWTClaims{
		UserID: "not-an-object-id",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ExtractUserIDFromToken(bad, "secret", ""); err == nil {
		t.Error("expected error for a non object id subject")
	}
}

func TestGenerateAccessTokenDefaultTTL(t *testing.T) {
	token, err := GenerateAccessToken(primitive.NewObjectID(), "", "secret", "", 0)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	claims, err := ValidateToken(token, "secret", "")
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time)
	if ttl != JWTAccessTokenTTL {
		t.Errorf("ttl = %v, want %v", ttl, JWTAccessTokenTTL)
	}
}
