package handler

import (
	"context"
	"errors"
	"net/http"

	"storefront-api/internal/fulfillment"
	"storefront-api/internal/ledger"
	"storefront-api/internal/pkg/logging"
	"storefront-api/pkg/apierror"
	"storefront-api/pkg/response"

	"go.uber.org/zap"
)

// toAPIError maps service errors onto the response taxonomy.
func toAPIError(err error) *apierror.Error {
	var apiErr *apierror.Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var fe *fulfillment.Error
	if errors.As(err, &fe) {
		switch fe.Kind {
		case fulfillment.KindInvalidRequest:
			return apierror.InvalidRequest(fe.Message)
		case fulfillment.KindUserNotFound:
			return apierror.UserNotFound("")
		case fulfillment.KindProductNotFound:
			return apierror.ProductNotFound(fe.ProductID)
		case fulfillment.KindInsufficientStock:
			return apierror.InsufficientStock(fe.ProductID)
		case fulfillment.KindInsufficientBalance:
			return apierror.InsufficientBalance()
		case fulfillment.KindStoreUnavailable:
			return apierror.StoreUnavailable("")
		case fulfillment.KindUnknown:
			return apierror.OutcomeUnknown(fe.IdempotencyKey)
		default:
			return apierror.InternalError("")
		}
	}

	var pnf *ledger.ProductNotFoundError
	switch {
	case errors.As(err, &pnf):
		return apierror.ProductNotFound(pnf.ProductID)
	case errors.Is(err, ledger.ErrUserNotFound):
		return apierror.UserNotFound("")
	case errors.Is(err, ledger.ErrStoreUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return apierror.StoreUnavailable("")
	default:
		return apierror.InternalError("")
	}
}

// writeError sends err and logs anything the caller cannot fix.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := toAPIError(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("code", apiErr.Code),
			zap.Error(err),
		)
	}
	response.Error(w, apiErr)
}
