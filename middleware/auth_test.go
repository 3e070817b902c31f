package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Luisfeliz3/sporty-urban-ecommerce/common/auth"
)

const testSecret = "test-secret"

func token(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func authRouter(trustGateway bool, extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers := append([]gin.HandlerFunc{AuthMiddleware(auth.NewVerifier(testSecret), trustGateway, zap.NewNop())}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok {
			c.Status(http.StatusTeapot)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": p.AccountID, "admin": p.IsAdmin})
	})
	r.GET("/me", handlers...)
	return r
}

func do(r *gin.Engine, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware_Bearer(t *testing.T) {
	r := authRouter(false)
	tok := token(t, jwt.MapClaims{"user_id": "acct-1", "typ": "access", "exp": time.Now().Add(time.Hour).Unix()})

	w := do(r, map[string]string{"Authorization": "Bearer " + tok})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"acct-1","admin":false}`, w.Body.String())
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	r := authRouter(false)
	refresh := token(t, jwt.MapClaims{"user_id": "acct-1", "typ": "refresh"})

	for name, headers := range map[string]map[string]string{
		"no token":        {},
		"not bearer":      {"Authorization": "Token abc"},
		"garbage":         {"Authorization": "Bearer abc.def.ghi"},
		"refresh token":   {"Authorization": "Bearer " + refresh},
		"gateway headers": {"X-User-ID": "acct-1", "X-User-Role": "admin"},
	} {
		t.Run(name, func(t *testing.T) {
			w := do(r, headers)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), `"success":false`)
		})
	}
}

func TestAuthMiddleware_TrustedGatewayHeaders(t *testing.T) {
	r := authRouter(true)

	w := do(r, map[string]string{"X-User-ID": "acct-9", "X-User-Role": "admin"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"acct-9","admin":true}`, w.Body.String())

	w = do(r, map[string]string{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAdmin(t *testing.T) {
	r := authRouter(false, RequireAdmin())
	user := token(t, jwt.MapClaims{"user_id": "acct-1"})
	admin := token(t, jwt.MapClaims{"user_id": "acct-2", "role": "admin"})

	w := do(r, map[string]string{"Authorization": "Bearer " + user})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(r, map[string]string{"Authorization": "Bearer " + admin})
	assert.Equal(t, http.StatusOK, w.Code)
}
