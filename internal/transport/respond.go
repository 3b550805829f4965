// Package transport wires the gorilla/mux routers, JSON (de)serialization,
// and middleware stack shared by chaosd and actiond.
package transport

import (
	"encoding/json"
	"net/http"

	"github.com/chaoslab/faultplane/internal/apierrors"
)

// writeJSON encodes v as the response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to its apierrors status code and body, falling back
// to a generic AdapterError (502) for an error this layer doesn't recognize.
func writeError(w http.ResponseWriter, err error) {
	if apiErr, ok := err.(*apierrors.Error); ok {
		apierrors.Write(w, apiErr)
		return
	}
	apierrors.Write(w, apierrors.AdapterErrorf("%s", err.Error()))
}

// decodeParams merges the request's query string into its JSON body (when
// present) into one map, matching spec.md §6's "parameters either in the
// query string or body" rule. Body values win on key collision.
func decodeParams(r *http.Request) (map[string]any, error) {
	params := make(map[string]any)
	for key, values := range r.URL.Query() {
		if len(values) == 1 {
			params[key] = values[0]
		} else {
			params[key] = values
		}
	}

	if r.Body == nil || r.ContentLength == 0 {
		return params, nil
	}

	var body map[string]any
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&body); err != nil {
		if err.Error() == "EOF" {
			return params, nil
		}
		return nil, apierrors.InvalidParamsf("malformed JSON body: %s", err.Error())
	}
	for key, value := range body {
		params[key] = value
	}
	return params, nil
}

func queryBool(r *http.Request, key string) bool {
	return r.URL.Query().Get(key) == "true"
}
