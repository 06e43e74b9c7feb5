package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/farellandr/storefront/internal/helpers"
	"github.com/farellandr/storefront/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const actorKey = "actor"

// IssueToken signs an access token for the actor. Used by tooling and tests;
// the service itself never logs anyone in.
func IssueToken(secret string, actor services.Actor, ttl time.Duration) (string, error) {
	role := "customer"
	if actor.IsStaff {
		role = "staff"
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": actor.UserID.String(),
		"email":   actor.Email,
		"role":    role,
		"exp":     time.Now().Add(ttl).Unix(),
	})
	return token.SignedString([]byte(secret))
}

func parseActor(secret, header string) (services.Actor, error) {
	raw, found := strings.CutPrefix(header, "Bearer ")
	if !found || strings.TrimSpace(raw) == "" {
		return services.Actor{}, fmt.Errorf("missing bearer token")
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return services.Actor{}, err
	}

	subject, _ := claims["user_id"].(string)
	userID, err := uuid.Parse(subject)
	if err != nil {
		return services.Actor{}, fmt.Errorf("invalid user_id claim")
	}
	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)

	return services.Actor{
		UserID:  userID,
		Email:   email,
		IsStaff: role == "staff" || role == "admin",
	}, nil
}

func JWTAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := parseActor(secret, c.GetHeader("Authorization"))
		if err != nil {
			helpers.RespondWithError(c, http.StatusUnauthorized, "Invalid or missing token.")
			return
		}
		c.Set(actorKey, actor)
		c.Set("user_id", actor.UserID)
		c.Next()
	}
}

// OptionalAuthMiddleware resolves the actor when a token is present and
// otherwise lets the request through as a guest.
func OptionalAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if header := c.GetHeader("Authorization"); header != "" {
			actor, err := parseActor(secret, header)
			if err != nil {
				helpers.RespondWithError(c, http.StatusUnauthorized, "Invalid token.")
				return
			}
			c.Set(actorKey, actor)
			c.Set("user_id", actor.UserID)
		}
		c.Next()
	}
}

func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !GetActor(c).IsStaff {
			helpers.RespondWithError(c, http.StatusForbidden, "Staff access required.")
			return
		}
		c.Next()
	}
}

// GetActor returns the zero Actor (a guest) when no token was presented.
func GetActor(c *gin.Context) services.Actor {
	actor, exists := c.Get(actorKey)
	if !exists {
		return services.Actor{}
	}
	return actor.(services.Actor)
}
