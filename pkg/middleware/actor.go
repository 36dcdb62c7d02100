package middleware

import (
	"payouts-controlplane/pkg/access"

	"github.com/gin-gonic/gin"
)

// Gateway headers carrying the authenticated caller.
const (
	HeaderUserID     = "X-USER-ID"
	HeaderUserHandle = "X-USER-HANDLE"
	HeaderUserRoles  = "X-USER-ROLES"
)

// Actor copies the gateway identity headers into the request context.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := access.Actor{
			UserID: c.GetHeader(HeaderUserID),
			Handle: c.GetHeader(HeaderUserHandle),
			Roles:  access.ParseRoles(c.GetHeader(HeaderUserRoles)),
		}

		c.Request = c.Request.WithContext(access.WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

// GetActor returns the caller stored by Actor, or the zero Actor.
func GetActor(c *gin.Context) access.Actor {
	actor, _ := access.ActorFrom(c.Request.Context())
	return actor
}
