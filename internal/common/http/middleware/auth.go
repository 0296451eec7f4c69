package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pkgerrors "recruitoj/pkg/errors"
	"recruitoj/pkg/utils/contextkey"
	"recruitoj/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// AuthConfig configures access token verification. Tokens are issued elsewhere.
type AuthConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

// Identity is the caller identity carried by an access token.
type Identity struct {
	UserID string
	Year   int
}

type accessClaims struct {
	Year int `json:"year"`
	jwt.RegisteredClaims
}

// JWTAuth verifies the bearer token and stores the caller identity on the request.
func JWTAuth(cfg AuthConfig) gin.HandlerFunc {
	secret := []byte(cfg.Secret)
	return func(c *gin.Context) {
		token := extractBearerToken(c.GetHeader("Authorization"))
		identity, err := parseAccessToken(token, secret, cfg.Issuer)
		if err != nil {
			response.AbortWithError(c, err)
			return
		}

		ctx := context.WithValue(c.Request.Context(), contextkey.UserID, identity.UserID)
		ctx = context.WithValue(ctx, contextkey.UserYear, identity.Year)
		c.Request = c.Request.WithContext(ctx)
		c.Set(string(contextkey.UserID), identity.UserID)
		c.Set(string(contextkey.UserYear), identity.Year)
		c.Next()
	}
}

// IdentityFrom returns the identity stored by JWTAuth.
func IdentityFrom(c *gin.Context) (Identity, bool) {
	userID, ok := c.Request.Context().Value(contextkey.UserID).(string)
	if !ok || userID == "" {
		return Identity{}, false
	}
	year, _ := c.Request.Context().Value(contextkey.UserYear).(int)
	return Identity{UserID: userID, Year: year}, true
}

func parseAccessToken(raw string, secret []byte, issuer string) (Identity, error) {
	if raw == "" || len(secret) == 0 {
		return Identity{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	parsed, err := jwt.ParseWithClaims(raw, &accessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, pkgerrors.New(pkgerrors.TokenExpired)
		}
		return Identity{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	claims, ok := parsed.Claims.(*accessClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return Identity{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if issuer != "" && claims.Issuer != issuer {
		return Identity{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	return Identity{UserID: claims.Subject, Year: claims.Year}, nil
}

func extractBearerToken(authHeader string) string {
	parts := strings.SplitN(strings.TrimSpace(authHeader), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
