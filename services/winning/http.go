package winning

import (
	"net/http"
	"time"

	"payouts-controlplane/pkg/access"
	"payouts-controlplane/pkg/db/pagination"
	"payouts-controlplane/pkg/errutil"
	"payouts-controlplane/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type handler struct {
	svc    *Service
	access *access.Registry
}

func RegisterRoutes(r *gin.Engine, svc *Service, reg *access.Registry) {
	h := &handler{svc: svc, access: reg}

	g := r.Group("/v1/winnings")
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.GET("/:id/audits", h.audits)
	g.PATCH("/:id", h.update)
}

type installmentBody struct {
	Amount      decimal.Decimal `json:"amount"`
	ReleaseDate *time.Time      `json:"release_date"`
}

type createBody struct {
	WinnerID       string            `json:"winner_id"`
	Type           WinningType       `json:"type"`
	Category       string            `json:"category"`
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	ExternalID     string            `json:"external_id"`
	Origin         string            `json:"origin"`
	Attributes     map[string]any    `json:"attributes"`
	Currency       string            `json:"currency"`
	BillingAccount string            `json:"billing_account"`
	Installments   []installmentBody `json:"installments"`
}

type updateBody struct {
	PaymentID   string           `json:"payment_id"`
	Status      *PaymentStatus   `json:"status"`
	ReleaseDate *time.Time       `json:"release_date"`
	Amount      *decimal.Decimal `json:"amount"`
	Description *string          `json:"description"`
	Note        string           `json:"note"`
	Version     *int64           `json:"version"`
}

func (h *handler) create(c *gin.Context) {
	actor := middleware.GetActor(c)
	if err := h.access.VerifyAccess(c.Request.Context(), actor, access.ResourceWinning, access.ActionCreate, ""); err != nil {
		_ = c.Error(err)
		return
	}

	var body createBody
	if err := c.ShouldBindJSON(&body); err != nil {
		_ = c.Error(errutil.InvalidRequest("malformed request body", err))
		return
	}

	req := CreateWinningRequest{
		WinnerID:       body.WinnerID,
		Type:           body.Type,
		Category:       body.Category,
		Title:          body.Title,
		Description:    body.Description,
		ExternalID:     body.ExternalID,
		Origin:         body.Origin,
		Attributes:     body.Attributes,
		Currency:       body.Currency,
		BillingAccount: body.BillingAccount,
		CreatedBy:      actor.UserID,
	}
	for _, in := range body.Installments {
		req.Installments = append(req.Installments, InstallmentRequest{Amount: in.Amount, ReleaseDate: in.ReleaseDate})
	}

	w, err := h.svc.CreateWinning(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

func (h *handler) list(c *gin.Context) {
	ctx := c.Request.Context()
	actor := middleware.GetActor(c)

	if err := h.access.VerifyAccess(ctx, actor, access.ResourceWinning, access.ActionRead, actor.UserID); err != nil {
		_ = c.Error(err)
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		_ = c.Error(errutil.InvalidRequest("invalid pagination", err))
		return
	}

	rows, info, err := h.svc.ListWinnings(ctx, ListFilter{
		WinnerID: c.Query("winner_id"),
		Type:     WinningType(c.Query("type")),
		Scope:    h.access.Scope(ctx, actor),
		Page:     page,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rows, "page_info": info})
}

func (h *handler) load(c *gin.Context, action string) (*Winning, bool) {
	w, err := h.svc.GetWinning(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return nil, false
	}
	if err := h.access.VerifyAccess(c.Request.Context(), middleware.GetActor(c), access.ResourceWinning, action, w.WinnerID); err != nil {
		_ = c.Error(err)
		return nil, false
	}
	return w, true
}

func (h *handler) get(c *gin.Context) {
	w, ok := h.load(c, access.ActionRead)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, w)
}

func (h *handler) audits(c *gin.Context) {
	w, ok := h.load(c, access.ActionRead)
	if !ok {
		return
	}

	audits, err := h.svc.Audits(c.Request.Context(), w.ID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": audits})
}

func (h *handler) update(c *gin.Context) {
	if _, ok := h.load(c, access.ActionUpdate); !ok {
		return
	}

	var body updateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		_ = c.Error(errutil.InvalidRequest("malformed request body", err))
		return
	}

	w, err := h.svc.ApplyUpdate(c.Request.Context(), c.Param("id"), UpdateRequest{
		PaymentID:       body.PaymentID,
		Status:          body.Status,
		ReleaseDate:     body.ReleaseDate,
		Amount:          body.Amount,
		Description:     body.Description,
		Note:            body.Note,
		ActingUserID:    middleware.GetActor(c).UserID,
		ExpectedVersion: body.Version,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, w)
}
