package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/farellandr/storefront/internal/services"
)

const testSecret = "test-secret"

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery(zap.NewNop()), RequestLogger(zap.NewNop()))
	handlers = append(handlers, func(c *gin.Context) {
		actor := GetActor(c)
		c.JSON(http.StatusOK, gin.H{"user_id": actor.UserID, "is_staff": actor.IsStaff})
	})
	r.GET("/whoami", handlers...)
	r.GET("/panic", func(c *gin.Context) { panic("boom") })
	return r
}

func get(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuthMiddleware(t *testing.T) {
	r := newRouter(JWTAuthMiddleware(testSecret))
	actor := services.Actor{UserID: uuid.New(), Email: "a@example.com"}

	token, err := IssueToken(testSecret, actor, time.Hour)
	require.NoError(t, err)
	w := get(r, "/whoami", token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), actor.UserID.String())

	assert.Equal(t, http.StatusUnauthorized, get(r, "/whoami", "").Code)

	forged, err := IssueToken("other-secret", actor, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/whoami", forged).Code)

	expired, err := IssueToken(testSecret, actor, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/whoami", expired).Code)
}

func TestJWTAuthRejectsMissingSubject(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"role": "staff",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	r := newRouter(JWTAuthMiddleware(testSecret))
	assert.Equal(t, http.StatusUnauthorized, get(r, "/whoami", signed).Code)
}

func TestRequireStaff(t *testing.T) {
	r := newRouter(JWTAuthMiddleware(testSecret), RequireStaff())

	customer, err := IssueToken(testSecret, services.Actor{UserID: uuid.New()}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, get(r, "/whoami", customer).Code)

	staff, err := IssueToken(testSecret, services.Actor{UserID: uuid.New(), IsStaff: true}, time.Hour)
	require.NoError(t, err)
	w := get(r, "/whoami", staff)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"is_staff":true`)
}

func TestOptionalAuthAllowsGuests(t *testing.T) {
	r := newRouter(OptionalAuthMiddleware(testSecret))
	w := get(r, "/whoami", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), uuid.Nil.String())

	assert.Equal(t, http.StatusUnauthorized, get(r, "/whoami", "garbage").Code)
}

func TestRecoveryReturns500(t *testing.T) {
	r := newRouter()
	w := get(r, "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
