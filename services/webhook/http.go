package webhook

import (
	"io"
	"net/http"

	"payouts-controlplane/pkg/errutil"

	"github.com/gin-gonic/gin"
)

const maxBodyBytes = 1 << 20

// RegisterRoutes mounts the public provider endpoint. It carries no gateway
// auth; the ingestor checks the signature itself.
func RegisterRoutes(r *gin.Engine, ing *Ingestor) {
	r.POST("/v1/webhooks/provider", func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes+1))
		if err != nil {
			_ = c.Error(errutil.InvalidRequest("failed to read body", err))
			return
		}
		if len(body) > maxBodyBytes {
			_ = c.Error(errutil.InvalidRequest("body too large", nil))
			return
		}

		outcome, err := ing.Handle(c.Request.Context(), c.Request.Header, body, nil)
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"outcome": outcome})
	})
}
