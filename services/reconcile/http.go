package reconcile

import (
	"net/http"

	"payouts-controlplane/pkg/access"
	"payouts-controlplane/pkg/middleware"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine, svc *Service, reg *access.Registry) {
	r.POST("/v1/users/:id/reconcile", func(c *gin.Context) {
		ctx := c.Request.Context()
		userID := c.Param("id")

		if err := reg.VerifyAccess(ctx, middleware.GetActor(c), access.ResourceReconcile, access.ActionUpdate, userID); err != nil {
			_ = c.Error(err)
			return
		}

		results, err := svc.Reconcile(ctx, userID)
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, results[0])
	})
}
