package payment

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/wsplatform/checkout-api/internal/common"
)

// Handler exposes the storefront payment endpoints.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type preferenceReq struct {
	ExternalReference string `json:"externalReference" validate:"required,max=254"`
}

// Preference serves POST /payment/preference.
func (h *Handler) Preference(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	var req preferenceReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid body", nil)
		return
	}
	req.ExternalReference = strings.TrimSpace(req.ExternalReference)
	if err := h.validator().Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "externalReference is required and must be at most 254 characters", nil)
		return
	}

	res, err := h.Svc.CreatePreference(r.Context(), req.ExternalReference)
	if err != nil {
		common.WriteError(w, mapError(err))
		return
	}
	common.JSON(w, http.StatusOK, res)
}

// Status serves GET /payment/status/{externalReference}. It always answers
// 200 with a definite approved flag.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "externalReference")
	// chi routes on RawPath when it is set, leaving the param escaped once.
	if r.URL.RawPath != "" {
		if unescaped, err := url.PathUnescape(ref); err == nil {
			ref = unescaped
		}
	}
	if h == nil || h.Svc == nil {
		common.JSON(w, http.StatusOK, ApprovalStatus{ExternalReference: ref})
		return
	}
	common.JSON(w, http.StatusOK, h.Svc.IsApproved(r.Context(), ref))
}

func (h *Handler) validator() *validator.Validate {
	if h.Validate != nil {
		return h.Validate
	}
	return defaultValidator
}

var defaultValidator = validator.New(validator.WithRequiredStructEnabled())

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidReference):
		return common.NewAppError("VALIDATION_ERROR", "externalReference is required", http.StatusBadRequest, err)
	case errors.Is(err, ErrGatewayUnavailable):
		return common.NewAppError("GATEWAY_UNAVAILABLE", "payment provider unavailable, try again", http.StatusServiceUnavailable, err)
	case errors.Is(err, ErrGateway):
		return common.NewAppError("GATEWAY_ERROR", "payment provider rejected the request", http.StatusBadGateway, err)
	default:
		return common.NewAppError("INTERNAL", "internal error", http.StatusInternalServerError, err)
	}
}
