package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Context keys set by JWTMiddleware.
const (
	ContextUserID = "user_id"
	ContextRole   = "role"
)

const (
	RoleClient     = "client"
	RoleFreelancer = "freelancer"
)

var errInvalidClaims = errors.New("invalid token claims")

// Actor is the identity carried by a verified token.
type Actor struct {
	ID   int64
	Role string
}

// ParseToken verifies an HS256 token and extracts the actor from its
// user_id and role claims.
func ParseToken(tokenStr string, secret []byte) (Actor, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return Actor{}, err
	}
	if !token.Valid {
		return Actor{}, errInvalidClaims
	}

	id, err := claimID(claims["user_id"])
	if err != nil {
		return Actor{}, err
	}
	role, _ := claims["role"].(string)
	if role != RoleClient && role != RoleFreelancer {
		return Actor{}, errInvalidClaims
	}
	return Actor{ID: id, Role: role}, nil
}

// claimID accepts the id as a JSON number or a decimal string.
func claimID(v any) (int64, error) {
	switch id := v.(type) {
	case float64:
		if id <= 0 || id != float64(int64(id)) {
			return 0, errInvalidClaims
		}
		return int64(id), nil
	case string:
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil || n <= 0 {
			return 0, errInvalidClaims
		}
		return n, nil
	}
	return 0, errInvalidClaims
}

func tokenFromRequest(c echo.Context) string {
	if h := c.Request().Header.Get(echo.HeaderAuthorization); h != "" {
		const prefix = "Bearer "
		if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
			return strings.TrimSpace(h[len(prefix):])
		}
		return ""
	}
	if ck, err := c.Cookie("token"); err == nil {
		return ck.Value
	}
	return ""
}

// JWTMiddleware rejects requests without a valid token and stores the actor
// id and role on the context.
func JWTMiddleware(secret string) echo.MiddlewareFunc {
	key := []byte(secret)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenStr := tokenFromRequest(c)
			if tokenStr == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "message": "Please log in to continue"})
			}
			actor, err := ParseToken(tokenStr, key)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "message": "Invalid or expired token"})
			}
			c.Set(ContextUserID, actor.ID)
			c.Set(ContextRole, actor.Role)
			return next(c)
		}
	}
}

// ActorID returns the id JWTMiddleware stored, or false when there is none.
func ActorID(c echo.Context) (int64, bool) {
	id, ok := c.Get(ContextUserID).(int64)
	return id, ok && id > 0
}
