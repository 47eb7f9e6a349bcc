package trade

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/payflow/server/internal/shared/middleware"
	"github.com/payflow/server/internal/shared/response"
)

// Handler handles merchant-facing HTTP requests for charges and
// refunds.
type Handler struct {
	chargeService *ChargeService
	refundService *RefundService
}

// NewHandler creates a new trade handler.
func NewHandler(chargeService *ChargeService, refundService *RefundService) *Handler {
	return &Handler{
		chargeService: chargeService,
		refundService: refundService,
	}
}

// RegisterRoutes registers the trade routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	charges := r.Group("/charges")
	{
		charges.POST("", h.CreateCharge)
		charges.GET("", h.ListCharges)
		charges.GET("/:charge_no", h.GetCharge)
		charges.POST("/:charge_no/refunds", h.CreateRefund)
		charges.GET("/:charge_no/refunds", h.ListRefunds)
	}
	r.GET("/refunds/:refund_no", h.GetRefund)
	r.GET("/stats/charges", h.ChargeStats)
}

var tradeErrorMappings = []response.ErrorMapping{
	{Err: ErrChargeNotFound, Status: http.StatusNotFound, Code: "charge_not_found"},
	{Err: ErrRefundNotFound, Status: http.StatusNotFound, Code: "refund_not_found"},
	{Err: ErrInvalidChannel, Status: http.StatusUnprocessableEntity, Code: "invalid_channel"},
	{Err: ErrChannelNotEnabled, Status: http.StatusUnprocessableEntity, Code: "channel_not_enabled"},
	{Err: ErrOrderAlreadyPaid, Status: http.StatusConflict, Code: "order_already_paid"},
	{Err: ErrChargeNotRefundable, Status: http.StatusConflict, Code: "charge_not_refundable"},
	{Err: ErrConcurrentModification, Status: http.StatusConflict, Code: "concurrent_modification"},
}

// CreateCharge creates a charge for an order.
func (h *Handler) CreateCharge(c *gin.Context) {
	appID := middleware.AppID(c)
	if appID == 0 {
		response.Unauthorized(c, "")
		return
	}

	var req CreateChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	charge, err := h.chargeService.Create(c.Request.Context(), appID, &req)
	if err != nil {
		response.HandleErrorWithDefault(c, err, tradeErrorMappings)
		return
	}

	c.JSON(http.StatusCreated, charge.ToResponse())
}

// GetCharge returns a charge, refreshing non-terminal charges against
// the platform first.
func (h *Handler) GetCharge(c *gin.Context) {
	appID := middleware.AppID(c)
	if appID == 0 {
		response.Unauthorized(c, "")
		return
	}

	charge, err := h.chargeService.QueryAndRefresh(c.Request.Context(), appID, c.Param("charge_no"), RefreshSourceAPI)
	if err != nil {
		response.HandleErrorWithDefault(c, err, tradeErrorMappings)
		return
	}

	c.JSON(http.StatusOK, charge.ToResponse())
}

// ListCharges returns the app's charges.
func (h *Handler) ListCharges(c *gin.Context) {
	appID := middleware.AppID(c)
	if appID == 0 {
		response.Unauthorized(c, "")
		return
	}

	var query ListChargesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	charges, total, err := h.chargeService.List(c.Request.Context(), appID, &query)
	if err != nil {
		response.HandleErrorWithDefault(c, err, tradeErrorMappings)
		return
	}

	items := make([]*ChargeResponse, len(charges))
	for i, charge := range charges {
		items[i] = charge.ToResponse()
	}
	c.JSON(http.StatusOK, gin.H{
		"charges": items,
		"total":   total,
	})
}

// CreateRefund requests a refund against a charge.
func (h *Handler) CreateRefund(c *gin.Context) {
	appID := middleware.AppID(c)
	if appID == 0 {
		response.Unauthorized(c, "")
		return
	}

	var req CreateRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	refund, err := h.refundService.Request(c.Request.Context(), appID, c.Param("charge_no"), &req)
	if err != nil {
		response.HandleErrorWithDefault(c, err, tradeErrorMappings)
		return
	}

	c.JSON(http.StatusCreated, refund.ToResponse())
}

// ListRefunds returns the refunds of a charge.
func (h *Handler) ListRefunds(c *gin.Context) {
	appID := middleware.AppID(c)
	if appID == 0 {
		response.Unauthorized(c, "")
		return
	}

	refunds, err := h.refundService.ListByCharge(c.Request.Context(), appID, c.Param("charge_no"))
	if err != nil {
		response.HandleErrorWithDefault(c, err, tradeErrorMappings)
		return
	}

	items := make([]*RefundResponse, len(refunds))
	for i, refund := range refunds {
		items[i] = refund.ToResponse()
	}
	c.JSON(http.StatusOK, gin.H{"refunds": items})
}

// GetRefund returns a refund, refreshing non-terminal refunds against
// the platform first.
func (h *Handler) GetRefund(c *gin.Context) {
	appID := middleware.AppID(c)
	if appID == 0 {
		response.Unauthorized(c, "")
		return
	}

	refund, err := h.refundService.QueryAndRefresh(c.Request.Context(), appID, c.Param("refund_no"))
	if err != nil {
		response.HandleErrorWithDefault(c, err, tradeErrorMappings)
		return
	}

	c.JSON(http.StatusOK, refund.ToResponse())
}

// ChargeStats returns the charge status aggregation for the app's
// group.
func (h *Handler) ChargeStats(c *gin.Context) {
	appID := middleware.AppID(c)
	if appID == 0 {
		response.Unauthorized(c, "")
		return
	}

	stats, err := h.chargeService.Stats(c.Request.Context(), appID)
	if err != nil {
		response.HandleErrorWithDefault(c, err, tradeErrorMappings)
		return
	}

	c.JSON(http.StatusOK, stats)
}
