package handler

import (
	"context"
	"net/http"

	account "marketplace-bidding/internal/accountService"
	"marketplace-bidding/internal/auth"
	model "marketplace-bidding/internal/models"
	"marketplace-bidding/services/bidding/helpers"
	"marketplace-bidding/utils"

	"github.com/gin-gonic/gin"
)

type AccountServiceInterface interface {
	SaveProfile(ctx context.Context, userID string, p account.Profile) (model.User, error)
	GetProfile(ctx context.Context, userID string) (model.User, error)
	CreatePaymentMethod(ctx context.Context, cardToken string) (string, error)
	AddPaymentMethod(ctx context.Context, userID, cardToken string) (model.PaymentMethod, error)
	ListPaymentMethods(ctx context.Context, userID string) ([]model.PaymentMethod, error)
}

type AccountHandler struct {
	service AccountServiceInterface
}

func NewAccountHandler(service AccountServiceInterface) *AccountHandler {
	return &AccountHandler{service: service}
}

// SaveProfileHandler handles PUT /me
func (h *AccountHandler) SaveProfileHandler(c *gin.Context) {
	var req helpers.ProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "SaveProfileHandler", err)
		return
	}

	caller, _ := auth.Caller(c)
	user, err := h.service.SaveProfile(c.Request.Context(), caller.UserID, account.Profile{
		Email:     req.Email,
		FirstName: req.FirstName,
	})
	if err != nil {
		helpers.RespondError(c, "SaveProfileHandler", err, map[string]any{"user_id": caller.UserID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToProfileResponse(user), "profile saved")
	helpers.LogSuccess("SaveProfileHandler", "profile saved", map[string]any{"user_id": user.UserID})
}

// GetProfileHandler handles GET /me
func (h *AccountHandler) GetProfileHandler(c *gin.Context) {
	caller, _ := auth.Caller(c)
	user, err := h.service.GetProfile(c.Request.Context(), caller.UserID)
	if err != nil {
		helpers.RespondError(c, "GetProfileHandler", err, map[string]any{"user_id": caller.UserID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToProfileResponse(user), "profile retrieved")
}

// AddPaymentMethodHandler handles POST /me/payment-methods
func (h *AccountHandler) AddPaymentMethodHandler(c *gin.Context) {
	var req helpers.AddPaymentMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "AddPaymentMethodHandler", err)
		return
	}

	caller, _ := auth.Caller(c)
	pm, err := h.service.AddPaymentMethod(c.Request.Context(), caller.UserID, req.CardToken)
	if err != nil {
		helpers.RespondError(c, "AddPaymentMethodHandler", err, map[string]any{"user_id": caller.UserID})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.ToPaymentMethodResponse(pm), "payment method added")
	helpers.LogSuccess("AddPaymentMethodHandler", "payment method added", map[string]any{
		"user_id":           caller.UserID,
		"payment_method_id": pm.PaymentMethodID,
	})
}

// ListPaymentMethodsHandler handles GET /me/payment-methods
func (h *AccountHandler) ListPaymentMethodsHandler(c *gin.Context) {
	caller, _ := auth.Caller(c)
	methods, err := h.service.ListPaymentMethods(c.Request.Context(), caller.UserID)
	if err != nil {
		helpers.RespondError(c, "ListPaymentMethodsHandler", err, map[string]any{"user_id": caller.UserID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToPaymentMethodResponses(methods), "payment methods retrieved")
}
