//go:build swagger

package httpapi

import (
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
)

// MountSwagger serves the synchronizer's OpenAPI UI at /swagger/, backed by
// the spec registered in docs.go. Built only with -tags=swagger so the
// default daemon binary stays lean.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
}
