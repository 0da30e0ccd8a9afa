package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"poscli/internal/middleware"
)

// RestrictedRoutes maps mutating POS API routes to the license feature
// names gating them. The POS screens themselves live outside this
// module; they consume these routes.
var RestrictedRoutes = map[string]string{
	"POST /api/orders":            "CreateOrder",
	"PUT /api/orders":             "EditOrder",
	"DELETE /api/orders":          "CancelOrder",
	"POST /api/products":          "AddProduct",
	"PUT /api/products":           "EditProduct",
	"DELETE /api/products":        "DeleteProduct",
	"POST /api/categories":        "AddCategory",
	"PUT /api/categories":         "EditCategory",
	"DELETE /api/categories":      "DeleteCategory",
	"POST /api/customers":         "AddCustomer",
	"PUT /api/customers":          "EditCustomer",
	"DELETE /api/customers":       "DeleteCustomer",
	"POST /api/discounts":         "ManageDiscounts",
}

// NewRouter assembles the local HTTP API: license endpoints, the metrics
// endpoint, and the feature gate applied to everything under /api.
func NewRouter(licenseHandler *LicenseHandler, gate middleware.FeatureChecker, metricsHandler http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.FeatureGate(gate, RestrictedRoutes, nil))

	r.Mount("/api/license", licenseHandler.Routes())
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	return r
}
