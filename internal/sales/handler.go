package sales

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/caldera-erp/caldera-erp/internal/platform/httpx"
	"github.com/caldera-erp/caldera-erp/internal/shared"
)

// Handler is the order-entry HTTP boundary. Authentication is handled
// upstream; the request carries tenant and actor ids directly.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	validate    *validator.Validate
	idempotency *shared.IdempotencyStore
}

func NewHandler(logger *slog.Logger, service *Service, idempotency *shared.IdempotencyStore) *Handler {
	return &Handler{
		logger:      logger,
		service:     service,
		validate:    validator.New(),
		idempotency: idempotency,
	}
}

const idempotencyModule = "sales"

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}

	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(r.Context(), idemKey, idempotencyModule); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}

	res, err := h.service.CreateSale(r.Context(), req.toInput(), h.actorID(r))
	if err != nil {
		if idemKey != "" && h.idempotency != nil {
			// Release the key so the caller can retry the same request.
			if delErr := h.idempotency.Delete(r.Context(), idemKey, idempotencyModule); delErr != nil {
				h.logger.Warn("release idempotency key failed", "error", delErr)
			}
		}
		h.logger.Error("create sale failed", "error", err, "tenant_id", req.TenantID)
		httpx.RespondError(w, err)
		return
	}

	httpx.JSON(w, http.StatusCreated, CreateSaleResponse{
		SaleID:         res.SaleID,
		SequenceNumber: res.SequenceNumber,
		TotalAmount:    res.TotalAmount,
	})
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	saleID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid sale id")
		return
	}
	tenantID := h.tenantID(r)
	if tenantID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "tenant_id required")
		return
	}

	if err := h.service.CancelSale(r.Context(), tenantID, saleID); err != nil {
		h.logger.Error("cancel sale failed", "error", err, "sale_id", saleID, "tenant_id", tenantID)
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	saleID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid sale id")
		return
	}
	tenantID := h.tenantID(r)
	if tenantID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "tenant_id required")
		return
	}

	sale, err := h.service.GetSale(r.Context(), tenantID, saleID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSaleResponse(sale))
}

func (h *Handler) tenantID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.URL.Query().Get("tenant_id"), 10, 64)
	return id
}

func (h *Handler) actorID(r *http.Request) int64 {
	if id, err := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64); err == nil && id > 0 {
		return id
	}
	return 1
}
