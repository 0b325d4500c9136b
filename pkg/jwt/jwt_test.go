package jwt

import (
	"errors"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

func TestGenerateToken(t *testing.T) {
	tests := []struct {
		name       string
		editorID   string
		expiration time.Duration
		secret     string
		wantErr    bool
	}{
		{
			name:       "valid token generation",
			editorID:   "editor-123",
			expiration: 15 * time.Minute,
			secret:     "test-secret-key-32-characters!",
			wantErr:    false,
		},
		{
			name:       "short expiration",
			editorID:   "editor-456",
			expiration: 1 * time.Second,
			secret:     "test-secret",
			wantErr:    false,
		},
		{
			name:       "long expiration",
			editorID:   "editor-789",
			expiration: 24 * time.Hour,
			secret:     "test-secret",
			wantErr:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := GenerateToken(tt.editorID, tt.expiration, tt.secret)

			if tt.wantErr {
				if err == nil {
					t.Error("GenerateToken() expected error but got none")
				}
				return
			}

			if err != nil {
				t.Errorf("GenerateToken() error = %v", err)
				return
			}

			if token == "" {
				t.Error("GenerateToken() returned empty token")
			}

			if len(token) < 100 {
				t.Errorf("GenerateToken() token too short, len = %d", len(token))
			}
		})
	}
}

func TestGenerateToken_EmptyEditor(t *testing.T) {
	if _, err := GenerateToken("", time.Minute, "secret"); err == nil {
		t.Error("GenerateToken() expected error for empty editor id")
	}
}

func TestValidateToken(t *testing.T) {
	editorID := "test-editor-id"
	secret := "validation-secret-key-32-chars"

	validToken, _ := GenerateToken(editorID, 1*time.Hour, secret)
	expiredToken, _ := GenerateToken(editorID, -1*time.Hour, secret)

	tests := []struct {
		name    string
		token   string
		secret  string
		wantErr bool
		checkID bool
	}{
		{
			name:    "valid token",
			token:   validToken,
			secret:  secret,
			wantErr: false,
			checkID: true,
		},
		{
			name:    "expired token",
			token:   expiredToken,
			secret:  secret,
			wantErr: true,
			checkID: false,
		},
		{
			name:    "wrong secret",
			token:   validToken,
			secret:  "wrong-secret",
			wantErr: true,
			checkID: false,
		},
		{
			name:    "invalid token format",
			token:   "invalid.token.format",
			secret:  secret,
			wantErr: true,
			checkID: false,
		},
		{
			name:    "none algorithm",
			token:   "eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0.eyJlZGl0b3JfaWQiOiJ4IiwiaXNzIjoiZmFicmljYSJ9.",
			secret:  secret,
			wantErr: true,
			checkID: false,
		},
		{
			name:    "empty token",
			token:   "",
			secret:  secret,
			wantErr: true,
			checkID: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := ValidateToken(tt.token, tt.secret)

			if tt.wantErr {
				if err == nil {
					t.Error("ValidateToken() expected error but got none")
				}
				return
			}

			if err != nil {
				t.Errorf("ValidateToken() error = %v", err)
				return
			}

			if claims == nil {
				t.Error("ValidateToken() returned nil claims")
				return
			}

			if tt.checkID && claims.EditorID != editorID {
				t.Errorf("ValidateToken() editorID = %v, want %v", claims.EditorID, editorID)
			}
		})
	}
}

// sign builds a token the way another service might, bypassing
// GenerateToken's fixed issuer and algorithm.
func sign(t *testing.T, method jwtlib.SigningMethod, claims Claims, key interface{}) string {
	t.Helper()
	signed, err := jwtlib.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return signed
}

func claimsFor(editorID, iss string) Claims {
	now := time.Now()
	return Claims{
		EditorID: editorID,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    iss,
			Subject:   editorID,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

func TestValidateToken_IssuerAndAlgorithm(t *testing.T) {
	secret := "shared-secret-between-services"
	key := []byte(secret)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{
			name:  "own issuer with HS256",
			token: sign(t, jwtlib.SigningMethodHS256, claimsFor("editor-1", issuer), key),
		},
		{
			name:    "foreign issuer",
			token:   sign(t, jwtlib.SigningMethodHS256, claimsFor("editor-1", "inkdown"), key),
			wantErr: jwtlib.ErrTokenInvalidIssuer,
		},
		{
			name:    "missing issuer",
			token:   sign(t, jwtlib.SigningMethodHS256, claimsFor("editor-1", ""), key),
			wantErr: jwtlib.ErrTokenInvalidClaims,
		},
		{
			name:    "HS384 with the same secret",
			token:   sign(t, jwtlib.SigningMethodHS384, claimsFor("editor-1", issuer), key),
			wantErr: jwtlib.ErrTokenSignatureInvalid,
		},
		{
			name:    "HS512 with the same secret",
			token:   sign(t, jwtlib.SigningMethodHS512, claimsFor("editor-1", issuer), key),
			wantErr: jwtlib.ErrTokenSignatureInvalid,
		},
		{
			name:    "unsigned",
			token:   sign(t, jwtlib.SigningMethodNone, claimsFor("editor-1", issuer), jwtlib.UnsafeAllowNoneSignatureType),
			wantErr: jwtlib.ErrTokenSignatureInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := ValidateToken(tt.token, secret)

			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("ValidateToken() error = %v", err)
				}
				if claims.EditorID != "editor-1" {
					t.Errorf("ValidateToken() editorID = %v, want editor-1", claims.EditorID)
				}
				return
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateToken() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateToken_RequiresEditorID(t *testing.T) {
	secret := "editorless-secret"
	token := sign(t, jwtlib.SigningMethodHS256, claimsFor("", issuer), []byte(secret))

	if _, err := ValidateToken(token, secret); err == nil {
		t.Error("ValidateToken() expected error for token without editor id")
	}
}

func TestClaimsTimestamps(t *testing.T) {
	editorID := "timestamp-test-editor"
	secret := "timestamp-test-secret"
	expiration := 1 * time.Hour

	before := time.Now().Add(-1 * time.Second)
	token, err := GenerateToken(editorID, expiration, secret)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	after := time.Now().Add(1 * time.Second)

	claims, err := ValidateToken(token, secret)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}

	issuedAt := claims.IssuedAt.Time
	if issuedAt.Before(before) || issuedAt.After(after) {
		t.Errorf("IssuedAt timestamp out of expected range: got %v, range [%v, %v]",
			issuedAt, before, after)
	}

	notBefore := claims.NotBefore.Time
	if notBefore.Before(before) || notBefore.After(after) {
		t.Errorf("NotBefore timestamp out of expected range: got %v, range [%v, %v]",
			notBefore, before, after)
	}

	expiresAt := claims.ExpiresAt.Time
	expectedExpiry := before.Add(expiration)
	upperBound := after.Add(expiration)
	if expiresAt.Before(expectedExpiry) || expiresAt.After(upperBound) {
		t.Errorf("ExpiresAt timestamp out of expected range: got %v, range [%v, %v]",
			expiresAt, expectedExpiry, upperBound)
	}
}

func BenchmarkGenerateToken(b *testing.B) {
	editorID := "benchmark-editor"
	expiration := 15 * time.Minute
	secret := "benchmark-secret-key"

	for i := 0; i < b.N; i++ {
		_, err := GenerateToken(editorID, expiration, secret)
		if err != nil {
			b.Fatalf("GenerateToken() error = %v", err)
		}
	}
}

func BenchmarkValidateToken(b *testing.B) {
	editorID := "benchmark-editor"
	expiration := 15 * time.Minute
	secret := "benchmark-secret-key"

	token, _ := GenerateToken(editorID, expiration, secret)

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_, err := ValidateToken(token, secret)
		if err != nil {
			b.Fatalf("ValidateToken() error = %v", err)
		}
	}
}
