package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/medora/medora/pkg/apierr"
	"github.com/medora/medora/pkg/observability"
)

// Envelope is the body of every API response
type Envelope struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message"`
	Data       interface{} `json:"data"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// Pagination describes one page of a list result
type Pagination struct {
	CurrentPage int `json:"currentPage"`
	TotalPages  int `json:"totalPages"`
	ResultCount int `json:"resultCount"`
}

// NewPagination computes page metadata for total rows split into pages of limit
func NewPagination(page, limit, total int) *Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return &Pagination{
		CurrentPage: page,
		TotalPages:  totalPages,
		ResultCount: total,
	}
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteOK writes a 200 envelope
func WriteOK(w http.ResponseWriter, message string, data interface{}) {
	WriteJSON(w, http.StatusOK, Envelope{Success: true, Message: message, Data: data})
}

// WriteCreated writes a 201 envelope
func WriteCreated(w http.ResponseWriter, message string, data interface{}) {
	WriteJSON(w, http.StatusCreated, Envelope{Success: true, Message: message, Data: data})
}

// WritePaginated writes a 200 envelope carrying pagination metadata
func WritePaginated(w http.ResponseWriter, message string, data interface{}, p *Pagination) {
	WriteJSON(w, http.StatusOK, Envelope{
		Success:    true,
		Message:    message,
		Data:       data,
		Pagination: p,
	})
}

// WriteErrorMessage writes a failed envelope with an explicit status
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, Envelope{Success: false, Message: message})
}

// WriteErr maps err to its status code and writes a failed envelope.
// Internal errors are logged with the request logger and masked.
func WriteErr(w http.ResponseWriter, r *http.Request, err error) {
	status := apierr.Status(err)
	if status == http.StatusInternalServerError {
		observability.FromContext(r.Context()).
			WithError(err).
			WithField("path", r.URL.Path).
			Error("request failed")
	}
	WriteErrorMessage(w, status, apierr.Message(err))
}
