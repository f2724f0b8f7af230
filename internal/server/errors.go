package server

import (
	"errors"
	"net/http"

	"github.com/rezonia/arca-fiscal/internal/fiscal"
	"github.com/rezonia/arca-fiscal/internal/model"
)

// Error kinds reported in ErrorResponse.Kind
const (
	KindValidation = "validation"
	KindSigning    = "signing"
	KindTicket     = "ticket"
	KindTransport  = "transport"
	KindSequence   = "sequence"
	KindProtocol   = "protocol"
	KindInternal   = "internal"
)

// errorResponse maps the error taxonomy onto an HTTP status and body
func errorResponse(err error) (int, ErrorResponse) {
	resp := ErrorResponse{Error: err.Error(), Kind: KindInternal}

	var attempt *fiscal.AttemptError
	if errors.As(err, &attempt) {
		resp.AttemptID = attempt.AttemptID
		resp.Stage = string(attempt.Stage)
	}

	var (
		ve  *model.ValidationError
		se  *model.SigningError
		te  *model.TicketError
		sqe *model.SequenceQueryError
		pe  *model.ProtocolError
		tre *model.TransportError
	)
	switch {
	case errors.As(err, &ve):
		resp.Kind = KindValidation
		resp.Field = ve.Field
		resp.Rule = ve.Rule
		return http.StatusBadRequest, resp
	case errors.As(err, &se):
		resp.Kind = KindSigning
		resp.Code = se.Code
		return http.StatusServiceUnavailable, resp
	case errors.As(err, &te):
		resp.Kind = KindTicket
		return http.StatusServiceUnavailable, resp
	case errors.As(err, &sqe):
		resp.Kind = KindSequence
		resp.Errors = sqe.Errors
		flavor := sqe.Flavor()
		if errors.As(err, &tre) {
			resp.Flavor = string(flavor)
		}
		return transportStatus(flavor), resp
	case errors.As(err, &pe):
		resp.Kind = KindProtocol
		resp.Errors = pe.Errors
		return http.StatusBadGateway, resp
	case errors.As(err, &tre):
		resp.Kind = KindTransport
		resp.Flavor = string(tre.Flavor)
		return transportStatus(tre.Flavor), resp
	}
	return http.StatusInternalServerError, resp
}

func transportStatus(flavor model.Flavor) int {
	if flavor == model.FlavorTimeout {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}
