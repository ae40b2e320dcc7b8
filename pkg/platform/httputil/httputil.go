// Package httputil holds the JSON response helpers shared by every handler.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "titulaciones/pkg/domain-errors"
)

// WriteJSON encodes body with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteError renders err as an OAuth-style envelope. Internal failures never
// expose their description.
func WriteError(w http.ResponseWriter, err error) {
	WriteErrorWith(w, err, nil)
}

// WriteErrorWith is WriteError with extra top-level fields (e.g. c_nonce on
// invalid_proof, retry hints on ledger failures).
func WriteErrorWith(w http.ResponseWriter, err error, extra map[string]any) {
	status := http.StatusInternalServerError
	code := dErrors.CodeInternal
	description := ""
	if de, ok := dErrors.From(err); ok {
		status = dErrors.ToHTTPStatus(de.Code)
		code = de.Code
		if !dErrors.IsInternal(de.Code) {
			description = de.Message
		}
	}

	body := map[string]any{"error": string(code)}
	if description != "" {
		body["error_description"] = description
	}
	for k, v := range extra {
		body[k] = v
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer error="`+string(code)+`"`)
	}
	WriteJSON(w, status, body)
}
