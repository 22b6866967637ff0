// README: Firebase bearer-token auth with role claims (admin, chauffeur).
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"livraison/internal/infra"
)

const (
	RoleAdmin     = "admin"
	RoleChauffeur = "chauffeur"

	ctxUID         = "auth.uid"
	ctxRole        = "auth.role"
	ctxChauffeurID = "auth.chauffeur_id"
)

type errorBody struct {
	Error string `json:"error"`
}

// Auth rejects requests without a valid Firebase ID token.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authenticate(c, verifier) {
			return
		}
		if CallerUID(c) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{"missing bearer token"})
			return
		}
		c.Next()
	}
}

// OptionalAuth identifies the caller when a token is sent and lets anonymous
// requests through. A bad token is still rejected.
func OptionalAuth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authenticate(c, verifier) {
			c.Next()
		}
	}
}

// authenticate stores the caller in c. It returns false after aborting.
func authenticate(c *gin.Context, verifier infra.TokenVerifier) bool {
	header := c.GetHeader("Authorization")
	if header == "" {
		return true
	}
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{"authorization header must be a bearer token"})
		return false
	}
	tok, err := verifier.VerifyIDToken(c.Request.Context(), strings.TrimSpace(raw))
	if err != nil {
		log.Debug().Err(err).Str("component", "auth").Msg("token rejected")
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{"invalid token"})
		return false
	}
	c.Set(ctxUID, tok.UID)
	if role, ok := tok.Claims["role"].(string); ok {
		c.Set(ctxRole, role)
	}
	if id, ok := tok.Claims["chauffeur_id"].(string); ok {
		c.Set(ctxChauffeurID, id)
	}
	return true
}

// RequireRole lets the request through when the caller holds one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := CallerRole(c)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, errorBody{"forbidden"})
	}
}

func CallerUID(c *gin.Context) string {
	return c.GetString(ctxUID)
}

func CallerRole(c *gin.Context) string {
	return c.GetString(ctxRole)
}

// CallerChauffeurID is the driver record bound to the caller's token, if any.
func CallerChauffeurID(c *gin.Context) string {
	return c.GetString(ctxChauffeurID)
}
