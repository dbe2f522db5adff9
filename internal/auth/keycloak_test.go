package auth_test

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/mautops/certificate-gin/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIssuer = "https://sso.example.com/realms/test"

// jwksServer 提供测试用 JWKS
func jwksServer(t *testing.T, key *rsa.PrivateKey, kid string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"keys": []map[string]string{{
				"kid": kid,
				"kty": "RSA",
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
			}},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss":                testIssuer,
		"sub":                "user-1",
		"preferred_username": "alice",
		"name":               "Alice Smith",
		"email":              "alice@example.com",
		"exp":                time.Now().Add(time.Hour).Unix(),
		"realm_access":       map[string]interface{}{"roles": []string{"manager"}},
		"tenant_id":          "7",
	}
}

// TestKeycloakTokenValidator_Valid 测试有效 token
func TestKeycloakTokenValidator_Valid(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	server := jwksServer(t, key, "k1")

	v := auth.NewKeycloakTokenValidator(testIssuer, server.URL, "tenant_id")
	claims, err := v.ValidateToken(signToken(t, key, "k1", validClaims()))
	require.NoError(t, err)

	p := claims.Principal()
	assert.Equal(t, "user-1", p.UserID)
	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, "Alice Smith", p.FullName)
	assert.Equal(t, []string{"manager"}, p.Roles)
	assert.Equal(t, int64(7), p.TenantID)
}

// TestKeycloakTokenValidator_Rejects 测试无效 token
func TestKeycloakTokenValidator_Rejects(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	server := jwksServer(t, key, "k1")
	v := auth.NewKeycloakTokenValidator(testIssuer, server.URL, "tenant_id")

	expired := validClaims()
	expired["exp"] = time.Now().Add(-time.Hour).Unix()

	wrongIssuer := validClaims()
	wrongIssuer["iss"] = "https://evil.example.com"

	cases := map[string]string{
		"expired":       signToken(t, key, "k1", expired),
		"wrong issuer":  signToken(t, key, "k1", wrongIssuer),
		"unknown kid":   signToken(t, key, "k2", validClaims()),
		"bad signature": signToken(t, other, "k1", validClaims()),
		"garbage":       "not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.ValidateToken(token)
			assert.Error(t, err)
		})
	}
}

// TestKeycloakAuthMiddleware 测试认证中间件
func TestKeycloakAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	server := jwksServer(t, key, "k1")
	v := auth.NewKeycloakTokenValidator(testIssuer, server.URL, "tenant_id")

	router := gin.New()
	router.Use(auth.KeycloakAuthMiddleware(v))
	router.GET("/me", func(c *gin.Context) {
		p, ok := auth.PrincipalFrom(c.Request.Context())
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": p.UserID, "tenant": p.TenantID})
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, key, "k1", validClaims()))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":"user-1","tenant":7}`, w.Body.String())
}
