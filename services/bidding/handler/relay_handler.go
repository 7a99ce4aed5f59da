package handler

import (
	"net/http"

	"marketplace-bidding/internal/notify"
	"marketplace-bidding/services/bidding/helpers"
	"marketplace-bidding/utils"

	"github.com/gin-gonic/gin"
)

// RelayHandler serves the two thin endpoints mobile clients call directly.
// Their bodies are not wrapped in the JSON envelope.
type RelayHandler struct {
	accounts AccountServiceInterface
	sender   notify.Sender
}

func NewRelayHandler(accounts AccountServiceInterface, sender notify.Sender) *RelayHandler {
	return &RelayHandler{accounts: accounts, sender: sender}
}

// PaymentMethodHandler handles POST /payment-method
func (h *RelayHandler) PaymentMethodHandler(c *gin.Context) {
	var req helpers.PaymentMethodRelayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		utils.Warn("PaymentMethodHandler: binding error", map[string]any{"error": err.Error()})
		return
	}

	id, err := h.accounts.CreatePaymentMethod(c.Request.Context(), req.CardToken)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		utils.Error("PaymentMethodHandler: payment method creation failed", map[string]any{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, helpers.PaymentMethodRelayResponse{PaymentMethodID: id})
	helpers.LogSuccess("PaymentMethodHandler", "payment method created", map[string]any{"payment_method_id": id})
}

// SendEmailHandler handles POST /send-email
func (h *RelayHandler) SendEmailHandler(c *gin.Context) {
	var req helpers.SendEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusInternalServerError, "Error sending email")
		utils.Warn("SendEmailHandler: binding error", map[string]any{"error": err.Error()})
		return
	}

	msg := notify.Message{Email: req.Email, BidPrice: req.BidPrice, Status: req.Status}
	if err := h.sender.Send(c.Request.Context(), msg); err != nil {
		c.String(http.StatusInternalServerError, "Error sending email")
		utils.Error("SendEmailHandler: error sending email", map[string]any{
			"email":  req.Email,
			"status": req.Status,
			"error":  err.Error(),
		})
		return
	}

	c.String(http.StatusOK, "Email sent")
	helpers.LogSuccess("SendEmailHandler", "email sent", map[string]any{"email": req.Email, "status": req.Status})
}
