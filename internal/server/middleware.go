package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/counselkit/letterflow/internal/principal"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderUserID    = "X-User-ID"
	HeaderUserRole  = "X-User-Role"
	HeaderRequestID = "X-Request-ID"
)

// RequestID propagates the caller's request id or mints one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// PrincipalRequired resolves the authenticated caller from the headers the
// auth layer in front of this service sets, and stores it in the request
// context for the core's ownership and claim checks.
func PrincipalRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		rawID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		role := strings.TrimSpace(c.GetHeader(HeaderUserRole))
		if rawID == "" || role == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		id, err := snowflake.ParseString(rawID)
		if err != nil || id == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		switch role {
		case principal.RoleSubscriber, principal.RoleEmployee, principal.RoleReviewer, principal.RoleAdmin:
		default:
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := principal.WithPrincipal(c.Request.Context(), principal.Principal{ID: id, Role: role})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireRole gates a route to the listed roles. Admins pass every gate.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principal.FromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if p.Role == principal.RoleAdmin {
			c.Next()
			return
		}
		for _, role := range roles {
			if p.Role == role {
				c.Next()
				return
			}
		}
		AbortWithError(c, ErrForbidden)
	}
}

func mustPrincipal(c *gin.Context) (principal.Principal, bool) {
	p, ok := principal.FromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return principal.Principal{}, false
	}
	return p, true
}

func parseIDParam(c *gin.Context, name string) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param(name)))
	if err != nil || id == 0 {
		AbortWithError(c, newValidationError(name, "invalid_"+name, "invalid "+name))
		return 0, false
	}
	return id, true
}
