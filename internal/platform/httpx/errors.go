package httpx

import (
	"errors"
	"net/http"

	"github.com/caldera-erp/caldera-erp/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusUnprocessableEntity, "Validation Failed", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrAlreadyCancelled):
		Problem(w, http.StatusConflict, "Already Cancelled", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrConcurrencyConflict):
		JSON(w, http.StatusConflict, ProblemDetail{
			Title:     "Conflict",
			Status:    http.StatusConflict,
			Detail:    shared.UserSafeMessage(err),
			Retryable: true,
		})
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Duplicate Request", "This request was already processed.")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
