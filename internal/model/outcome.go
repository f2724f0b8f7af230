package model

import "time"

// Result is the authority's verdict on a submitted document
type Result string

const (
	ResultApproved Result = "A"
	ResultRejected Result = "R"
	ResultUnknown  Result = ""
)

func (r Result) String() string {
	switch r {
	case ResultApproved:
		return "approved"
	case ResultRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// AuthorizationOutcome is produced once per submission and never cached.
// A Rejected outcome is a business result, not an error.
type AuthorizationOutcome struct {
	AttemptID      string     `json:"attempt_id,omitempty"`
	Result         Result     `json:"result"`
	PointOfSale    int        `json:"point_of_sale"`
	DocumentType   int        `json:"document_type"`
	DocumentNumber int64      `json:"document_number"`
	AuthCode       string     `json:"auth_code,omitempty"`
	AuthCodeExpiry *time.Time `json:"auth_code_expiry,omitempty"`
	ProcessedAt    string     `json:"processed_at,omitempty"`
	Observations   []Message  `json:"observations,omitempty"`
	Errors         []Message  `json:"errors,omitempty"`
	Events         []Message  `json:"events,omitempty"`
}

// Approved reports whether the authority issued an authorization code
func (o *AuthorizationOutcome) Approved() bool {
	return o != nil && o.Result == ResultApproved
}

// LastAuthorized is the authority's view of a (point of sale, document type) counter
type LastAuthorized struct {
	PointOfSale  int    `json:"point_of_sale"`
	DocumentType int    `json:"document_type"`
	Number       int64  `json:"number"`
	Date         string `json:"date,omitempty"`
	Next         int64  `json:"next"`
}
