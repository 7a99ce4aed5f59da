package helpers

import (
	"errors"
	"fmt"
	"net/http"

	"marketplace-bidding/internal/biddingerrors"
	"marketplace-bidding/utils"

	"github.com/gin-gonic/gin"
)

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	wrappedErr := fmt.Errorf("invalid request payload: %w", err)
	utils.JSONError(c, http.StatusBadRequest, wrappedErr, "invalid request payload")
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// MapErrorToHTTP maps domain/service errors to HTTP status code and message
func MapErrorToHTTP(err error) (int, string) {
	switch {
	case errors.Is(err, biddingerrors.ErrNotAuthenticated):
		return http.StatusUnauthorized, "not authenticated"
	case errors.Is(err, biddingerrors.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, biddingerrors.ErrProductNotFound):
		return http.StatusNotFound, "product not found"
	case errors.Is(err, biddingerrors.ErrBidNotFound):
		return http.StatusNotFound, "bid not found"
	case errors.Is(err, biddingerrors.ErrUserNotFound):
		return http.StatusNotFound, "user not found"
	case errors.Is(err, biddingerrors.ErrNotProductOwner):
		return http.StatusForbidden, "only the product owner can do this"
	case errors.Is(err, biddingerrors.ErrSelfBid):
		return http.StatusConflict, "cannot bid on your own product"
	case errors.Is(err, biddingerrors.ErrDuplicateBid):
		return http.StatusConflict, "already placed a bid on this product"
	case errors.Is(err, biddingerrors.ErrBidAlreadyDecided):
		return http.StatusConflict, "bid already decided"
	case errors.Is(err, biddingerrors.ErrEmailLookupFailed):
		return http.StatusUnprocessableEntity, "bidder email lookup failed"
	case errors.Is(err, biddingerrors.ErrNotificationFailed):
		return http.StatusBadGateway, "notification failed"
	case errors.Is(err, biddingerrors.ErrPartialWrite):
		return http.StatusInternalServerError, "partial write failure"
	case errors.Is(err, biddingerrors.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable, "upstream unavailable"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// RespondError maps err, writes the error envelope and logs the failure
func RespondError(c *gin.Context, handlerName string, err error, fields map[string]any) {
	status, message := MapErrorToHTTP(err)
	utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)

	if fields == nil {
		fields = map[string]any{}
	}
	fields["handler"] = handlerName
	fields["status"] = status
	fields["error"] = err.Error()
	if status >= http.StatusInternalServerError {
		utils.Error(handlerName+": "+message, fields)
	} else {
		utils.Warn(handlerName+": "+message, fields)
	}
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}
