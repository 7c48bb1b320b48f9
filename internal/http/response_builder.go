package http

import (
	"encoding/json"
	"net/http"

	"pesa/internal/log"
	"pesa/internal/middleware/trace"
)

// JSONResponse is a small fluent builder for API replies.
type JSONResponse struct {
	status  int
	headers map[string]string
	body    any
}

func NewJSONResponse() *JSONResponse {
	return &JSONResponse{status: http.StatusOK, headers: make(map[string]string)}
}

func (b *JSONResponse) Status(code int) *JSONResponse {
	b.status = code
	return b
}

func (b *JSONResponse) Header(key, value string) *JSONResponse {
	b.headers[key] = value
	return b
}

func (b *JSONResponse) Body(v any) *JSONResponse {
	b.body = v
	return b
}

// Write sends the response. A nil body sends only the status line.
func (b *JSONResponse) Write(w http.ResponseWriter, r *http.Request) {
	for k, v := range b.headers {
		w.Header().Set(k, v)
	}
	if b.body == nil {
		w.WriteHeader(b.status)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.status)
	if err := json.NewEncoder(w).Encode(b.body); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Failed writing response", log.FieldError, err)
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	NewJSONResponse().Status(status).Body(v).Write(w, r)
}

// writeError sends {"error": msg} tagged with the request id.
func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, ErrorResponse{Error: msg, RequestID: trace.GetRequestID(r.Context())})
}

// writeUnavailable answers 503 with a Retry-After hint.
func writeUnavailable(w http.ResponseWriter, r *http.Request, msg string) {
	NewJSONResponse().
		Status(http.StatusServiceUnavailable).
		Header("Retry-After", "5").
		Body(ErrorResponse{Error: msg, RequestID: trace.GetRequestID(r.Context())}).
		Write(w, r)
}

// writeInternal logs err and hides it from the client.
func writeInternal(w http.ResponseWriter, r *http.Request, op string, err error) {
	log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
		log.FieldOperation, op,
		log.FieldError, err)
	writeError(w, r, http.StatusInternalServerError, "internal error")
}
