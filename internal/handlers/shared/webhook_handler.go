package shared

import (
	"io"
	"net/http"

	"tripchat/internal/services"
	"tripchat/internal/utils"

	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	paymentService *services.PaymentService
}

func NewWebhookHandler(paymentService *services.PaymentService) *WebhookHandler {
	return &WebhookHandler{paymentService: paymentService}
}

// HandlePaymentWebhook verifies and applies one gateway delivery. The raw
// body is required for signature checks, so it is read before any binding.
func (h *WebhookHandler) HandlePaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		utils.BadRequestResponse(c, "Unreadable webhook body")
		return
	}

	result, err := h.paymentService.HandleWebhook(c.Request.Context(), c.Param("provider"), payload, c.Request.Header)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Webhook processed", result)
}
