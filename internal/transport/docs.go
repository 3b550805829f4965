package transport

import (
	_ "embed"
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"
)

//go:embed docs/chaos_openapi.json
var chaosOpenAPI []byte

//go:embed docs/action_openapi.json
var actionOpenAPI []byte

// docSpecHandler serves a hand-maintained OpenAPI document for
// swaggerUIHandler to render, mounted the way the teacher's router wires
// httpSwagger.WrapHandler against a PathPrefix, rather than one emitted
// by a code generator.
func docSpecHandler(spec []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	}
}

var swaggerUIHandler = httpSwagger.WrapHandler
