package server

import (
	"github.com/rezonia/arca-fiscal/internal/model"
)

// ValidationResponse is the response for the validate endpoint
type ValidationResponse struct {
	Valid   bool                  `json:"valid"`
	Request *model.InvoiceRequest `json:"request,omitempty"`
}

// ErrorResponse is the standard error response
type ErrorResponse struct {
	Error     string          `json:"error"`
	Kind      string          `json:"kind"`
	AttemptID string          `json:"attempt_id,omitempty"`
	Stage     string          `json:"stage,omitempty"`
	Field     string          `json:"field,omitempty"`
	Rule      string          `json:"rule,omitempty"`
	Code      string          `json:"code,omitempty"`
	Flavor    string          `json:"flavor,omitempty"`
	Errors    []model.Message `json:"errors,omitempty"`
}
