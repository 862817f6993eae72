// Package httpkit holds the JSON plumbing shared by the thumbnail API
// handlers: request decoding, response writing and the error envelope that
// carries taxonomy codes to clients.
package httpkit

import (
	"encoding/json"
	"net/http"
)

// maxBodyBytes caps request bodies. Render requests are small id/width
// payloads; the documents themselves never travel through this API.
const maxBodyBytes = 1 << 20

// ErrorEnvelope is the uniform error shape of the API. Code is either a
// transport-level code (VALIDATION_ERROR, NOT_FOUND) or a pipeline
// taxonomy code.
type ErrorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details,omitempty"`
	} `json:"error"`
}

// DecodeJSON strictly decodes a request body: unknown fields are rejected
// so client typos surface as 400s instead of silently dropped options.
func DecodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func WriteErr(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	var env ErrorEnvelope
	env.Error.Code = code
	env.Error.Message = msg
	env.Error.Details = details

	_ = json.NewEncoder(w).Encode(env)
}
