package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	apiErrors "poscli/internal/errors"
)

// FeatureChecker is the gating surface consumed by the middleware;
// license.Service is the production implementation.
type FeatureChecker interface {
	IsFeatureAllowed(featureName string) bool
}

// FeatureGate blocks requests to routes mapped to restricted features
// when the license state no longer allows them. Map entries gate the
// named path and everything below it, so "POST /api/orders" also covers
// "POST /api/orders/42". Routes with no mapped feature pass through
// untouched.
func FeatureGate(checker FeatureChecker, features map[string]string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "feature_gate"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			feature, gated := matchFeature(features, r.Method, r.URL.Path)
			if !gated || checker.IsFeatureAllowed(feature) {
				next.ServeHTTP(w, r)
				return
			}

			logger.Warn("feature request blocked",
				slog.String("feature", feature),
				slog.String("path", r.URL.Path),
			)
			render.Render(w, r, apiErrors.FeatureRestricted(feature))
		})
	}
}

// matchFeature resolves the feature gating a request, walking the path
// up segment by segment so parameterized routes hit their parent entry.
func matchFeature(features map[string]string, method, path string) (string, bool) {
	p := strings.TrimSuffix(path, "/")
	for p != "" {
		if feature, ok := features[method+" "+p]; ok {
			return feature, true
		}
		i := strings.LastIndex(p, "/")
		if i < 1 {
			break
		}
		p = p[:i]
	}
	return "", false
}
