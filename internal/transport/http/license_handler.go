package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"

	apiErrors "poscli/internal/errors"
	"poscli/internal/license"
)

// LicenseHandler exposes the license core over the local HTTP API the
// POS UI talks to.
type LicenseHandler struct {
	service        *license.Service
	logger         *slog.Logger
	validate       *validator.Validate
	activateLimit  *rate.Limiter
	enableResetAPI bool
}

// HandlerOptions configures the license handler.
type HandlerOptions struct {
	ActivationRPS   float64
	ActivationBurst int
	EnableResetAPI  bool
}

// NewLicenseHandler creates a new license handler
func NewLicenseHandler(service *license.Service, opts HandlerOptions, logger *slog.Logger) *LicenseHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ActivationRPS <= 0 {
		opts.ActivationRPS = 1
	}
	if opts.ActivationBurst <= 0 {
		opts.ActivationBurst = 5
	}

	return &LicenseHandler{
		service:        service,
		logger:         logger.With(slog.String("handler", "license")),
		validate:       validator.New(),
		activateLimit:  rate.NewLimiter(rate.Limit(opts.ActivationRPS), opts.ActivationBurst),
		enableResetAPI: opts.EnableResetAPI,
	}
}

// Routes returns a chi router for the license endpoints.
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/status", h.GetStatus)
	r.Post("/activate", h.Activate)
	if h.enableResetAPI {
		r.Post("/reset", h.Reset)
	}

	return r
}

// LicenseStatusResponse is the status payload for the UI banner.
type LicenseStatusResponse struct {
	Status        string    `json:"status"`
	Message       string    `json:"message"`
	RemainingDays int       `json:"remaining_days"`
	Timestamp     time.Time `json:"timestamp"`
}

// ActivationRequest is the POST /activate payload.
type ActivationRequest struct {
	LicenseKey string `json:"license_key" validate:"required,len=19"`
}

// Bind implements the render.Binder interface
func (a *ActivationRequest) Bind(r *http.Request) error {
	a.LicenseKey = license.NormalizeKey(a.LicenseKey)
	return nil
}

// ActivationResponse is the POST /activate result payload.
type ActivationResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// GetStatus handles GET /api/license/status
func (h *LicenseHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	response := &LicenseStatusResponse{
		Status:        string(h.service.GetLicenseStatus()),
		Message:       h.service.GetStatusMessage(),
		RemainingDays: h.service.GetRemainingTrialDays(),
		Timestamp:     time.Now().UTC(),
	}

	render.JSON(w, r, response)
}

// Activate handles POST /api/license/activate
func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	if !h.activateLimit.Allow() {
		render.Render(w, r, apiErrors.ErrRateLimited)
		return
	}

	var req ActivationRequest
	if err := render.Bind(r, &req); err != nil {
		render.Render(w, r, apiErrors.InvalidRequestWithError(err))
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		render.Render(w, r, apiErrors.ErrValidation("license_key", "must be a 19 character key of the form XXXX-XXXX-XXXX-XXXX"))
		return
	}

	if err := license.ValidateKeyFormat(req.LicenseKey); err != nil {
		render.Render(w, r, apiErrors.LicenseAPIError(err))
		return
	}

	if !h.service.ActivateLicense(req.LicenseKey) {
		h.logger.Warn("activation via API rejected",
			slog.String("key", license.MaskKey(req.LicenseKey)),
		)
		render.Render(w, r, apiErrors.LicenseAPIError(apiErrors.ErrInvalidLicenseKey))
		return
	}

	render.JSON(w, r, &ActivationResponse{
		Success: true,
		Status:  string(license.StatusActivated),
		Message: h.service.GetStatusMessage(),
	})
}

// Reset handles POST /api/license/reset. Only mounted when the reset API
// is enabled in configuration; intended for support tooling.
func (h *LicenseHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.service.ResetLicense()
	h.logger.Info("license reset via API")
	render.JSON(w, r, map[string]bool{"success": true})
}
