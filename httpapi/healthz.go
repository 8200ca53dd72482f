package httpapi

import (
	"encoding/json"
	"net/http"
)

// writeJSON marshals v as the /healthz response body. Plain
// encoding/json: a small flat status object needs no library.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	_ = enc.Encode(v)
}
