package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/custody_settlement/apperrors"
	"github.com/custody_settlement/model"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const principalKey = "principal"

type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type IdentityConfig struct {
	// JWTSecret verifies HS256 bearer tokens. Empty disables bearer auth.
	JWTSecret string
	// TrustGatewayHeaders accepts X-User-Id / X-User-Role set by an upstream gateway.
	TrustGatewayHeaders bool
}

// Identity resolves the acting principal for every request and aborts with
// 401 when none can be established.
func Identity(cfg IdentityConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := resolve(c.Request, cfg)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": "UNAUTHENTICATED"})
			return
		}
		c.Set(principalKey, p)
		c.Set("user_id", p.UserID)
		c.Next()
	}
}

// RequireAdmin short-circuits non-admin callers on admin route groups. The
// services check the role again.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !Principal(c).IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required", "code": apperrors.KindNotAuthorized})
			return
		}
		c.Next()
	}
}

// Principal returns the identity set by Identity, or the zero Principal.
func Principal(c *gin.Context) model.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(model.Principal); ok {
			return p
		}
	}
	return model.Principal{}
}

func resolve(r *http.Request, cfg IdentityConfig) (model.Principal, error) {
	if h := r.Header.Get("Authorization"); h != "" && cfg.JWTSecret != "" {
		raw, ok := strings.CutPrefix(h, "Bearer ")
		if !ok {
			return model.Principal{}, errors.New("malformed authorization header")
		}
		return ParseToken(strings.TrimSpace(raw), cfg.JWTSecret)
	}
	if cfg.TrustGatewayHeaders {
		uid := strings.TrimSpace(r.Header.Get("X-User-Id"))
		if uid != "" {
			return model.Principal{UserID: uid, Role: strings.TrimSpace(r.Header.Get("X-User-Role"))}, nil
		}
	}
	return model.Principal{}, errors.New("missing credentials")
}

func ParseToken(raw, secret string) (model.Principal, error) {
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(30*time.Second))
	if err != nil {
		return model.Principal{}, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return model.Principal{}, errors.New("invalid token claims")
	}
	if claims.UserID == "" {
		return model.Principal{}, errors.New("token has no user_id")
	}
	return model.Principal{UserID: claims.UserID, Role: claims.Role}, nil
}

// SignToken issues an HS256 token. Tokens normally come from the auth
// service; this is used by tooling and tests.
func SignToken(p model.Principal, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: p.UserID,
		Role:   p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString([]byte(secret))
}
