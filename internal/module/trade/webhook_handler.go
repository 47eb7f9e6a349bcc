package trade

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/payflow/server/internal/module/trade/channel"
	"github.com/payflow/server/internal/shared/response"
)

// WebhookHandler receives platform notifications and hands them to the
// router. Responses follow each platform's acknowledgment protocol, so
// bodies are written verbatim rather than as JSON envelopes.
type WebhookHandler struct {
	router *NotifyRouter
	logger *zap.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(router *NotifyRouter, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		router: router,
		logger: logger,
	}
}

// RegisterRoutes registers the webhook routes.
func (h *WebhookHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/:platform", h.HandleChargeNotify)
	r.POST("/:platform/refunds", h.HandleRefundNotify)
}

// HandleChargeNotify handles an inbound payment notification.
func (h *WebhookHandler) HandleChargeNotify(c *gin.Context) {
	h.handle(c, h.router.HandleChargeNotify)
}

// HandleRefundNotify handles an inbound refund notification.
func (h *WebhookHandler) HandleRefundNotify(c *gin.Context) {
	h.handle(c, h.router.HandleRefundNotify)
}

func (h *WebhookHandler) handle(c *gin.Context, route func(ctx context.Context, platform string, params map[string]string) (string, error)) {
	platform := c.Param("platform")

	params, err := h.collectParams(c)
	if err != nil {
		h.logger.Error("failed to read notify request",
			zap.String("platform", platform),
			zap.Error(err),
		)
		response.AckFailure(c, http.StatusBadRequest, "bad request")
		return
	}

	resp, err := route(c.Request.Context(), platform, params)
	if err != nil {
		h.respondError(c, platform, err)
		return
	}

	response.Ack(c, resp)
}

// collectParams flattens the notification into the adapter param map:
// form fields for form-encoded platforms, the raw body plus signature
// headers for the rest.
func (h *WebhookHandler) collectParams(c *gin.Context) (map[string]string, error) {
	params := make(map[string]string)

	contentType := c.ContentType()
	if strings.Contains(contentType, "application/x-www-form-urlencoded") {
		if err := c.Request.ParseForm(); err != nil {
			return nil, err
		}
		for key, values := range c.Request.PostForm {
			if len(values) > 0 {
				params[key] = values[0]
			}
		}
		return params, nil
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, err
	}
	params[channel.RawBodyKey] = string(body)

	for _, header := range []string{
		"Stripe-Signature",
		"Wechatpay-Timestamp",
		"Wechatpay-Nonce",
		"Wechatpay-Signature",
		"Wechatpay-Serial",
	} {
		if v := c.GetHeader(header); v != "" {
			params[header] = v
		}
	}
	return params, nil
}

func (h *WebhookHandler) respondError(c *gin.Context, platform string, err error) {
	switch {
	case errors.Is(err, ErrNotifyNotVerified):
		h.logger.Warn("rejected unverified notification",
			zap.String("platform", platform),
		)
		response.AckFailure(c, http.StatusBadRequest, "invalid signature")
	case errors.Is(err, ErrNotifyNotHandled), errors.Is(err, ErrChannelNotEnabled):
		h.logger.Warn("notification not handled",
			zap.String("platform", platform),
			zap.Error(err),
		)
		response.AckFailure(c, http.StatusNotFound, "not handled")
	default:
		// Non-2xx makes the platform redeliver; the dedupe log keeps
		// redelivery safe.
		h.logger.Error("failed to process notification",
			zap.String("platform", platform),
			zap.Error(err),
		)
		response.AckFailure(c, http.StatusInternalServerError, "error")
	}
}
