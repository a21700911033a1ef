package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func newProtectedRouter() *gin.Engine {
	r := gin.New()
	r.GET("/me", JWTAuth(testSecret), func(c *gin.Context) {
		id, _ := IdentityFrom(c)
		c.String(http.StatusOK, string(id))
	})
	return r
}

func TestIssueAndParseToken(t *testing.T) {
	token, err := IssueToken(testSecret, "alice", time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserID)

	_, err = ParseToken("other-secret", token)
	require.ErrorIs(t, err, ErrInvalidToken)

	expired, err := IssueToken(testSecret, "alice", -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(testSecret, expired)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseToken_RejectsOtherAlgorithms(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, JWTClaims{UserID: "mallory"})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = ParseToken(testSecret, signed)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTAuth(t *testing.T) {
	token, err := IssueToken(testSecret, "bob", time.Hour)
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		query  string
		status int
		body   string
	}{
		{name: "bearer header", header: "Bearer " + token, status: http.StatusOK, body: "bob"},
		{name: "query param", query: "?token=" + token, status: http.StatusOK, body: "bob"},
		{name: "missing", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + token, status: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer nope", status: http.StatusUnauthorized},
	}

	router := newProtectedRouter()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tc.status, w.Code)
			if tc.body != "" {
				assert.Equal(t, tc.body, w.Body.String())
			}
		})
	}
}
