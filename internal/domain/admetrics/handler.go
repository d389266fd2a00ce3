package admetrics

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/shopads/ads-api/internal/pkg/response"
	"github.com/shopads/ads-api/internal/pkg/validator"
)

// Handler serves campaign reporting
type Handler struct {
	service *Service
}

// NewHandler creates a new reporting handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes registers reporting endpoints on r. Access control is applied by the caller.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/compare", h.Compare)
	r.Get("/{id}/performance", h.Performance)
	r.Get("/{id}/insights", h.Insights)
}

// Performance returns the 30-day summary of an advertisement
// GET /api/v1/ads/{id}/performance
func (h *Handler) Performance(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid advertisement ID")
		return
	}

	summary, err := h.service.GetPerformanceSummary(r.Context(), id)
	if err != nil {
		h.handleError(w, err)
		return
	}

	response.OK(w, summary)
}

// Insights returns rule-based insights and recommended actions
// GET /api/v1/ads/{id}/insights
func (h *Handler) Insights(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid advertisement ID")
		return
	}

	insights, err := h.service.GenerateInsights(r.Context(), id)
	if err != nil {
		h.handleError(w, err)
		return
	}

	response.OK(w, insights)
}

// Compare compares several campaigns
// POST /api/v1/ads/compare
func (h *Handler) Compare(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	ids := make([]uuid.UUID, 0, len(req.AdIDs))
	for _, raw := range req.AdIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.BadRequest(w, "Invalid advertisement ID")
			return
		}
		ids = append(ids, id)
	}

	result, err := h.service.GetAdCampaignComparison(r.Context(), ids)
	if err != nil {
		h.handleError(w, err)
		return
	}

	response.OK(w, result)
}

func (h *Handler) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrAdNotFound):
		response.NotFound(w, "Advertisement not found")
	case errors.Is(err, ErrNoAdsToCompare):
		response.BadRequest(w, err.Error())
	default:
		response.InternalError(w)
	}
}
