package settlement

import (
	"net/http"

	"payouts-controlplane/pkg/access"
	"payouts-controlplane/pkg/errutil"
	"payouts-controlplane/pkg/middleware"

	"github.com/gin-gonic/gin"
)

type withdrawBody struct {
	WinningIDs []string `json:"winning_ids"`
}

func RegisterRoutes(r *gin.Engine, svc *Service, reg *access.Registry) {
	r.POST("/v1/withdraw", func(c *gin.Context) {
		ctx := c.Request.Context()
		actor := middleware.GetActor(c)

		if err := reg.VerifyAccess(ctx, actor, access.ResourceWithdrawal, access.ActionCreate, actor.UserID); err != nil {
			_ = c.Error(err)
			return
		}

		var body withdrawBody
		if err := c.ShouldBindJSON(&body); err != nil {
			_ = c.Error(errutil.InvalidRequest("malformed request body", err))
			return
		}

		release, err := svc.Withdraw(ctx, actor.UserID, actor.Handle, body.WinningIDs)
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusAccepted, release)
	})
}
