// Package httpx provides HTTP response utilities following RFC7807 problem details.
package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/aegis-admin/aegis/internal/shared"
)

// ProblemDetail represents RFC7807 problem details.
type ProblemDetail struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// ListEnvelope is the shape of every paginated collection response.
type ListEnvelope struct {
	Data       any               `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

// List sends a paginated collection response.
func List(w http.ResponseWriter, data any, pagination shared.Pagination) {
	if data == nil {
		data = []any{}
	}
	JSON(w, http.StatusOK, ListEnvelope{Data: data, Pagination: pagination})
}

// Problem sends an RFC7807 problem details response.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	JSON(w, status, ProblemDetail{
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// DecodeJSON decodes the JSON request body into target. Bodies are capped at
// 1 MiB; payloads here are small admin mutations, never uploads.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)).Decode(target)
}
