package ads

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shopads/ads-api/internal/domain/admetrics"
	"github.com/shopads/ads-api/internal/middleware"
	"github.com/shopads/ads-api/internal/pkg/response"
	"github.com/shopads/ads-api/internal/pkg/validator"
)

// Handler handles advertisement HTTP requests
type Handler struct {
	service *Service
	media   *MediaUploader
}

// NewHandler creates advertisement handler
func NewHandler(service *Service, media *MediaUploader) *Handler {
	return &Handler{
		service: service,
		media:   media,
	}
}

// Routes registers the following endpoints:
//
//	GET    /active/{placement}   - eligible ads for a placement
//	GET    /dynamic/{placement}  - eligible ads re-ranked by page context
//	POST   /interaction          - log an impression, click or conversion
//	GET    /{id}                 - campaign with recent metrics
//
// and, behind authMiddleware + adminMiddleware, campaign management plus the
// routes registered by reporting.
func (h *Handler) Routes(authMiddleware, adminMiddleware func(http.Handler) http.Handler, reporting func(chi.Router)) chi.Router {
	r := chi.NewRouter()

	// Public
	r.Get("/active/{placement}", h.Active)
	r.Get("/dynamic/{placement}", h.Dynamic)
	r.Post("/interaction", h.LogInteraction)
	r.Get("/{id}", h.GetByID)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Use(adminMiddleware)

		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Post("/upload/images", h.UploadImages)
		r.Get("/jobs", h.Jobs)
		r.Patch("/{id}", h.Update)
		r.Patch("/{id}/status", h.UpdateStatus)
		r.Delete("/{id}", h.Delete)

		if reporting != nil {
			reporting(r)
		}
	})

	return r
}

// Create handles POST /ads
// @Summary Create an advertisement campaign
// @Tags Ads
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateRequest true "Campaign"
// @Success 201 {object} response.Response{data=Response}
// @Failure 400,422,500 {object} response.Response
// @Router /ads [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	ad, err := h.service.Create(r.Context(), middleware.GetUserID(r.Context()), &req)
	if err != nil {
		h.handleError(w, err)
		return
	}

	response.Created(w, ad.ToResponse())
}

// List handles GET /ads
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	items, err := h.service.FindAll(r.Context(), filter)
	if err != nil {
		h.handleError(w, err)
		return
	}

	response.WithMeta(w, items, response.Meta{Total: len(items)})
}

// GetByID handles GET /ads/{id}
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid advertisement ID")
		return
	}

	detail, err := h.service.FindOne(r.Context(), id)
	if err != nil {
		h.handleError(w, err)
		return
	}

	response.OK(w, detail)
}

// Update handles PATCH /ads/{id}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid advertisement ID")
		return
	}

	var req UpdateRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	ad, err := h.service.Update(r.Context(), id, &req)
	if err != nil {
		h.handleError(w, err)
		return
	}

	response.OK(w, ad.ToResponse())
}

// UpdateStatus handles PATCH /ads/{id}/status
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid advertisement ID")
		return
	}

	var req StatusRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	ad, err := h.service.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		h.handleError(w, err)
		return
	}

	response.OK(w, ad.ToResponse())
}

// Delete handles DELETE /ads/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid advertisement ID")
		return
	}

	if err := h.service.Remove(r.Context(), id); err != nil {
		h.handleError(w, err)
		return
	}

	response.NoContent(w)
}

// Active handles GET /ads/active/{placement}
// @Summary Eligible ads for a placement
// @Tags Ads
// @Produce json
// @Param placement path string true "Placement"
// @Param user_id query string false "Customer ID"
// @Param path query string false "Current page path"
// @Param cart_items query []string false "productId:price:quantity" collectionFormat(multi)
// @Success 200 {object} response.Response{data=[]Response}
// @Router /ads/active/{placement} [get]
func (h *Handler) Active(w http.ResponseWriter, r *http.Request) {
	placement := chi.URLParam(r, "placement")
	userID, sc, err := parseSelection(r)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	ads, err := h.service.FindActive(r.Context(), placement, userID, sc)
	if err != nil {
		h.handleError(w, err)
		return
	}

	response.OK(w, toResponses(ads))
}

// Dynamic handles GET /ads/dynamic/{placement}
func (h *Handler) Dynamic(w http.ResponseWriter, r *http.Request) {
	placement := chi.URLParam(r, "placement")
	userID, sc, err := parseSelection(r)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	count := defaultDynamicCount
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 50 {
			response.BadRequest(w, "count must be between 1 and 50")
			return
		}
		count = n
	}

	ads, err := h.service.GetDynamicAds(r.Context(), placement, count, userID, sc)
	if err != nil {
		h.handleError(w, err)
		return
	}

	response.OK(w, toResponses(ads))
}

// LogInteraction handles POST /ads/interaction
func (h *Handler) LogInteraction(w http.ResponseWriter, r *http.Request) {
	var req InteractionRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	adID, err := uuid.Parse(req.AdvertisementID)
	if err != nil {
		response.BadRequest(w, "Invalid advertisement ID")
		return
	}

	ev := admetrics.Interaction{
		AdvertisementID: adID,
		Type:            admetrics.InteractionType(req.InteractionType),
		UserID:          req.UserID,
	}
	if md := req.Metadata; md != nil {
		if md.Value != nil {
			ev.Metadata.Value = decimal.NewNullDecimal(*md.Value)
		}
		ev.Metadata.Demographics = md.Demographics
		ev.Metadata.CustomMetrics = md.CustomMetrics
	}

	if err := h.service.LogInteraction(r.Context(), ev); err != nil {
		h.handleError(w, err)
		return
	}

	response.OK(w, map[string]bool{"success": true})
}

// UploadImages handles POST /ads/upload/images
// Multipart form: one or more "files"
func (h *Handler) UploadImages(w http.ResponseWriter, r *http.Request) {
	if h.media == nil {
		h.handleError(w, ErrMediaUnavailable)
		return
	}

	limit := int64(h.media.MaxFiles())*h.media.MaxSize() + 1<<20
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		response.BadRequest(w, "Files too large or invalid form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	files := make([]MediaFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			response.BadRequest(w, "Failed to upload media files")
			return
		}
		defer func(f multipart.File) { _ = f.Close() }(f)
		files = append(files, MediaFile{Name: fh.Filename, Reader: f})
	}

	uploaded, err := h.media.UploadAdMedia(r.Context(), files)
	if err != nil {
		h.handleError(w, err)
		return
	}

	response.Created(w, uploaded)
}

// Jobs handles GET /ads/jobs
func (h *Handler) Jobs(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.service.ActiveJobs())
}

func (h *Handler) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrAdNotFound):
		response.NotFound(w, "Advertisement not found")
	case errors.Is(err, ErrInvalidDateRange):
		response.BadRequest(w, "End date must be after start date")
	case errors.Is(err, ErrInvalidBudget):
		response.BadRequest(w, "Budget must be a positive value")
	case errors.Is(err, ErrInvalidContent):
		response.BadRequest(w, strings.TrimPrefix(err.Error(), ErrInvalidContent.Error()+": "))
	case errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrInvalidInteraction):
		response.BadRequest(w, err.Error())
	case errors.Is(err, ErrNoMediaFiles):
		response.BadRequest(w, "No files provided")
	case errors.Is(err, ErrTooManyMediaFiles):
		response.BadRequest(w, fmt.Sprintf("At most %d files can be uploaded at once", h.media.MaxFiles()))
	case isMediaError(err):
		response.BadRequest(w, "Failed to upload media files")
	case errors.Is(err, ErrMediaUnavailable):
		response.Error(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Media uploads are not configured")
	default:
		response.InternalError(w)
	}
}

func toResponses(ads []Advertisement) []*Response {
	items := make([]*Response, 0, len(ads))
	for i := range ads {
		items = append(items, ads[i].ToResponse())
	}
	return items
}

// parseSelection reads the optional user and page context. The context is
// nil when the request carries none of its parameters.
func parseSelection(r *http.Request) (string, *SelectionContext, error) {
	q := r.URL.Query()
	userID := q.Get("user_id")

	sc := &SelectionContext{
		CurrentPath:       q.Get("path"),
		CurrentProductID:  q.Get("product_id"),
		CurrentCategoryID: q.Get("category_id"),
		CurrentBrandID:    q.Get("brand_id"),
		SearchQuery:       q.Get("q"),
	}

	for _, raw := range q["cart_items"] {
		item, err := parseCartItem(raw)
		if err != nil {
			return "", nil, err
		}
		sc.CartItems = append(sc.CartItems, item)
	}

	if sc.CurrentPath == "" && sc.CurrentProductID == "" && sc.CurrentCategoryID == "" &&
		sc.CurrentBrandID == "" && sc.SearchQuery == "" && len(sc.CartItems) == 0 {
		return userID, nil, nil
	}
	return userID, sc, nil
}

// parseCartItem parses productId:price:quantity
func parseCartItem(raw string) (CartItem, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 3 || parts[0] == "" {
		return CartItem{}, fmt.Errorf("invalid cart item %q, expected productId:price:quantity", raw)
	}
	price, err := strconv.ParseFloat(parts[1], 64)
	if err != nil || price < 0 {
		return CartItem{}, fmt.Errorf("invalid price in cart item %q", raw)
	}
	qty, err := strconv.Atoi(parts[2])
	if err != nil || qty < 0 {
		return CartItem{}, fmt.Errorf("invalid quantity in cart item %q", raw)
	}
	return CartItem{ProductID: parts[0], Price: price, Quantity: qty}, nil
}

func parseListFilter(r *http.Request) (ListFilter, error) {
	q := r.URL.Query()
	var f ListFilter

	if v := q.Get("type"); v != "" {
		if validator.ValidateVar(v, "ad_type") != nil {
			return f, fmt.Errorf("invalid type %q", v)
		}
		t := AdType(v)
		f.Type = &t
	}
	if v := q.Get("placement"); v != "" {
		f.Placement = &v
	}
	if v := q.Get("status"); v != "" {
		if validator.ValidateVar(v, "ad_status") != nil {
			return f, fmt.Errorf("invalid status %q", v)
		}
		s := Status(v)
		f.Status = &s
	}
	if v := q.Get("target_type"); v != "" {
		if validator.ValidateVar(v, "target_type") != nil {
			return f, fmt.Errorf("invalid target_type %q", v)
		}
		t := TargetType(v)
		f.TargetType = &t
	}
	if v := q.Get("product_id"); v != "" {
		f.ProductID = &v
	}
	if v := q.Get("category_id"); v != "" {
		f.CategoryID = &v
	}
	if v := q.Get("brand_id"); v != "" {
		f.BrandID = &v
	}
	if v := q.Get("is_ab_test"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("invalid is_ab_test %q", v)
		}
		f.IsAbTest = &b
	}
	if v := q.Get("active_from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("invalid active_from %q, expected RFC 3339", v)
		}
		f.ActiveFrom = &t
	}
	if v := q.Get("active_to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("invalid active_to %q, expected RFC 3339", v)
		}
		f.ActiveTo = &t
	}

	return f, nil
}
