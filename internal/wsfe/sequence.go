package wsfe

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/rezonia/arca-fiscal/internal/model"
	"github.com/rezonia/arca-fiscal/internal/soap"
)

// TicketSource supplies valid access tickets
type TicketSource interface {
	Get(ctx context.Context, service model.Service) (*model.AccessTicket, error)
}

// SequenceResolver asks the authority for the last authorized number of a
// (point of sale, document type) pair. It keeps no local counter.
type SequenceResolver struct {
	soap       *soap.Client
	endpoint   string
	tickets    TicketSource
	taxpayerID string
	logger     logrus.FieldLogger
}

// NewSequenceResolver creates a resolver issuing queries as taxpayerID
func NewSequenceResolver(client *soap.Client, endpoint string, tickets TicketSource, taxpayerID string, logger logrus.FieldLogger) *SequenceResolver {
	return &SequenceResolver{
		soap:       client,
		endpoint:   endpoint,
		tickets:    tickets,
		taxpayerID: taxpayerID,
		logger:     logger,
	}
}

// NextNumber returns the last authorized number plus one, or 1 when nothing was issued yet
func (r *SequenceResolver) NextNumber(ctx context.Context, pointOfSale, documentType int) (int64, error) {
	last, err := r.LastAuthorized(ctx, pointOfSale, documentType)
	if err != nil {
		return 0, err
	}
	return last.Next, nil
}

// LastAuthorized runs FECompUltimoAutorizado. Ticket failures are returned as they are;
// everything else surfaces as *model.SequenceQueryError.
func (r *SequenceResolver) LastAuthorized(ctx context.Context, pointOfSale, documentType int) (*model.LastAuthorized, error) {
	t, err := r.tickets.Get(ctx, model.ServiceInvoiceAuth)
	if err != nil {
		return nil, err
	}

	log := r.logger.WithFields(logrus.Fields{
		"point_of_sale": pointOfSale,
		"document_type": documentType,
	})

	resp, err := r.soap.Call(ctx, r.endpoint, action("FECompUltimoAutorizado"), feCompUltimoAutorizado{
		Auth:     authFor(t, r.taxpayerID),
		PtoVta:   pointOfSale,
		CbteTipo: documentType,
	})
	if err != nil {
		log.WithError(err).Warn("Last authorized query failed")
		return nil, model.NewSequenceQueryError(pointOfSale, documentType, "request failed", nil, err)
	}

	elem := soap.FindLocal(resp, "FECompUltimoAutorizadoResult")
	if elem == nil {
		return nil, model.NewSequenceQueryError(pointOfSale, documentType, "response has no FECompUltimoAutorizadoResult", nil, nil)
	}

	var result lastAuthorizedResult
	if err := soap.Decode(elem, &result); err != nil {
		return nil, model.NewSequenceQueryError(pointOfSale, documentType, "malformed response", nil, err)
	}
	if len(result.Errors) > 0 {
		return nil, model.NewSequenceQueryError(pointOfSale, documentType, "authority returned errors", toMessages(result.Errors), nil)
	}
	if result.CbteNro == nil || *result.CbteNro < 0 {
		return nil, model.NewSequenceQueryError(pointOfSale, documentType, "response has no CbteNro", nil, nil)
	}

	last := &model.LastAuthorized{
		PointOfSale:  pointOfSale,
		DocumentType: documentType,
		Number:       *result.CbteNro,
		Date:         result.FchProceso,
		Next:         *result.CbteNro + 1,
	}
	log.WithFields(logrus.Fields{"last": last.Number, "next": last.Next}).Debug("Resolved sequence")
	return last, nil
}
