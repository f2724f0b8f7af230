package fiscal

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rezonia/arca-fiscal/internal/model"
	"github.com/rezonia/arca-fiscal/internal/padron"
)

// Tickets is the ticket lifecycle as seen by callers
type Tickets interface {
	Get(ctx context.Context, service model.Service) (*model.AccessTicket, error)
	Renew(ctx context.Context, service model.Service) (*model.AccessTicket, error)
	Status(ctx context.Context, service model.Service) model.TicketStatus
}

// Sequencer resolves document numbers from the authority
type Sequencer interface {
	NextNumber(ctx context.Context, pointOfSale, documentType int) (int64, error)
	LastAuthorized(ctx context.Context, pointOfSale, documentType int) (*model.LastAuthorized, error)
}

// Builder validates drafts
type Builder interface {
	Build(draft model.InvoiceDraft) (*model.InvoiceRequest, error)
}

// Submitter sends built requests
type Submitter interface {
	Submit(ctx context.Context, t *model.AccessTicket, taxpayerID string, req *model.InvoiceRequest) (*model.AuthorizationOutcome, error)
}

// BuyerVerifier is the optional registry pre-check on CUIT buyers
type BuyerVerifier interface {
	VerifyBuyer(ctx context.Context, cuit string) (*padron.Persona, error)
}

// Service exposes the operations callers use
type Service struct {
	builder    Builder
	tickets    Tickets
	sequence   Sequencer
	submitter  Submitter
	verifier   BuyerVerifier
	taxpayerID string
	logger     logrus.FieldLogger
	newID      func() string
}

// Option configures a Service
type Option func(*Service)

// WithBuyerVerifier enables the registry check for CUIT buyers before numbering
func WithBuyerVerifier(v BuyerVerifier) Option {
	return func(s *Service) {
		s.verifier = v
	}
}

// WithAttemptIDs overrides the attempt id generator
func WithAttemptIDs(newID func() string) Option {
	return func(s *Service) {
		s.newID = newID
	}
}

// NewService wires the authorization core
func NewService(builder Builder, tickets Tickets, sequence Sequencer, submitter Submitter, taxpayerID string, logger logrus.FieldLogger, opts ...Option) *Service {
	s := &Service{
		builder:    builder,
		tickets:    tickets,
		sequence:   sequence,
		submitter:  submitter,
		taxpayerID: taxpayerID,
		logger:     logger,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fiscalize validates draft, numbers it from the authority's counter and submits it.
// A rejection is returned as an outcome; failures are wrapped in *AttemptError.
func (s *Service) Fiscalize(ctx context.Context, draft model.InvoiceDraft) (*model.AuthorizationOutcome, error) {
	attempt := newAttempt(s.newID())
	log := s.logger.WithField("attempt", attempt.ID)

	fail := func(err error) (*model.AuthorizationOutcome, error) {
		stage := attempt.State
		_ = attempt.advance(StateFailed)
		log.WithField("stage", string(stage)).WithError(err).Warn("Authorization attempt failed")
		return nil, &AttemptError{AttemptID: attempt.ID, Stage: stage, Err: err}
	}

	req, err := s.builder.Build(draft)
	if err != nil {
		return fail(err)
	}
	log = log.WithFields(logrus.Fields{
		"point_of_sale": req.PointOfSale,
		"document_type": req.DocumentType,
	})

	if s.verifier != nil && req.BuyerDocType == model.BuyerDocCUIT {
		if _, err := s.verifier.VerifyBuyer(ctx, req.BuyerDocNumber); err != nil {
			return fail(err)
		}
	}

	ticket, err := s.tickets.Get(ctx, model.ServiceInvoiceAuth)
	if err != nil {
		return fail(err)
	}
	if err := attempt.advance(StateSigned); err != nil {
		return fail(err)
	}

	number, err := s.sequence.NextNumber(ctx, req.PointOfSale, req.DocumentType)
	if err != nil {
		return fail(err)
	}
	req.AssignNumber(number)
	log = log.WithField("document_number", number)

	if err := attempt.advance(StateSubmitted); err != nil {
		return fail(err)
	}
	outcome, err := s.submitter.Submit(ctx, ticket, s.taxpayerID, req)
	if err != nil {
		return fail(err)
	}
	outcome.AttemptID = attempt.ID

	final := StateRejected
	if outcome.Approved() {
		final = StateApproved
	}
	if err := attempt.advance(final); err != nil {
		return fail(err)
	}

	log.WithFields(logrus.Fields{
		"result":    outcome.Result.String(),
		"auth_code": outcome.AuthCode,
	}).Info("Authorization attempt finished")
	return outcome, nil
}

// Validate runs the builder only; no network calls are made
func (s *Service) Validate(draft model.InvoiceDraft) (*model.InvoiceRequest, error) {
	return s.builder.Build(draft)
}

// LastAuthorized returns the authority's last number for the pair and the next one
func (s *Service) LastAuthorized(ctx context.Context, pointOfSale, documentType int) (*model.LastAuthorized, error) {
	if pointOfSale < 1 {
		return nil, model.NewValidationError("pointOfSale", pointOfSale, "range", "point of sale must be positive")
	}
	if _, ok := model.KindOf(documentType); !ok {
		return nil, model.NewValidationError("documentType", documentType, "enum", "unknown document type")
	}
	return s.sequence.LastAuthorized(ctx, pointOfSale, documentType)
}

// TicketStatus describes the cached ticket for service
func (s *Service) TicketStatus(ctx context.Context, service model.Service) model.TicketStatus {
	return s.tickets.Status(ctx, service)
}

// ForceRenewTicket discards the cached ticket for service and obtains a new one
func (s *Service) ForceRenewTicket(ctx context.Context, service model.Service) (*model.AccessTicket, error) {
	t, err := s.tickets.Renew(ctx, service)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"service": service,
		"token":   t.MaskedToken(),
	}).Info("Ticket renewed on request")
	return t, nil
}
