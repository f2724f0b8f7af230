package arcafiscal

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rezonia/arca-fiscal/internal/config"
	"github.com/rezonia/arca-fiscal/internal/fiscal"
	"github.com/rezonia/arca-fiscal/internal/model"
	"github.com/rezonia/arca-fiscal/internal/padron"
	"github.com/rezonia/arca-fiscal/internal/signature"
	"github.com/rezonia/arca-fiscal/internal/soap"
	"github.com/rezonia/arca-fiscal/internal/ticket"
	"github.com/rezonia/arca-fiscal/internal/wsfe"
)

// Client is the caller-facing surface: fiscalize, validate, last authorized
// number and ticket status/renewal
type Client struct {
	service *fiscal.Service
	store   ticket.Store
}

// New validates cfg and wires the signer, ticket store, SOAP clients and the
// authorization service
func New(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	signer, err := signature.NewSigner(cfg.SignerOptions())
	if err != nil {
		return nil, err
	}

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	transport := soap.NewClient(logger, soap.WithTimeouts(cfg.HTTP.ConnectTimeout, cfg.HTTP.ReadTimeout))
	tickets := ticket.NewManager(
		signer,
		ticket.NewWSAAClient(transport, cfg.WSAAEndpoint()),
		store,
		logger,
		ticket.WithSafetyMargin(cfg.Ticket.SafetyMargin),
		ticket.WithRetry(cfg.Ticket.RetryAttempts, cfg.Ticket.RetryDelay),
	)

	builder := wsfe.NewBuilder(
		wsfe.WithDefaultCurrency(cfg.Invoice.DefaultCurrency),
		wsfe.WithDefaultConcept(cfg.Invoice.DefaultConcept),
	)
	resolver := wsfe.NewSequenceResolver(transport, cfg.WSFEEndpoint(), tickets, cfg.ARCA.CUIT, logger)
	submitter := wsfe.NewSubmissionClient(transport, cfg.WSFEEndpoint(), logger)

	var opts []fiscal.Option
	if cfg.Invoice.VerifyBuyerCUIT {
		registry := padron.NewClient(transport, cfg.PadronEndpoint(), tickets, cfg.ARCA.CUIT, logger)
		opts = append(opts, fiscal.WithBuyerVerifier(registry))
	}

	fields := logrus.Fields{
		"environment": cfg.ARCA.Environment,
		"signer":      signer.Name(),
		"store":       cfg.Ticket.Store,
	}
	if info := signature.Describe(signer); info != nil {
		fields["certificate"] = info.Name
		fields["certificate_expires"] = info.ValidTo.Format(time.RFC3339)
	}
	logger.WithFields(fields).Info("ARCA client configured")

	return &Client{
		service: fiscal.NewService(builder, tickets, resolver, submitter, cfg.ARCA.CUIT, logger, opts...),
		store:   store,
	}, nil
}

// OpenStore returns the ticket store selected by cfg.Ticket.Store
func OpenStore(ctx context.Context, cfg *config.Config) (ticket.Store, error) {
	switch cfg.Ticket.Store {
	case config.StoreMemory:
		return ticket.NewMemoryStore(), nil
	case config.StoreRedis:
		store, err := ticket.ConnectRedis(ctx, ticket.RedisOptions{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StoreFile, "":
		store, err := ticket.NewFileStore(cfg.Ticket.Dir)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown ticket store %q", cfg.Ticket.Store)
	}
}

// Service exposes the underlying authorization service, e.g. for the HTTP server
func (c *Client) Service() *fiscal.Service {
	return c.service
}

// Fiscalize validates, numbers and submits draft
func (c *Client) Fiscalize(ctx context.Context, draft InvoiceDraft) (*AuthorizationOutcome, error) {
	return c.service.Fiscalize(ctx, draft)
}

// Validate builds the request for draft without contacting the authority
func (c *Client) Validate(draft InvoiceDraft) (*InvoiceRequest, error) {
	return c.service.Validate(draft)
}

// LastAuthorized returns the last authorized number for the pair and the next one
func (c *Client) LastAuthorized(ctx context.Context, pointOfSale, documentType int) (*LastAuthorized, error) {
	return c.service.LastAuthorized(ctx, pointOfSale, documentType)
}

// TicketStatus describes the cached ticket for service
func (c *Client) TicketStatus(ctx context.Context, service Service) TicketStatus {
	return c.service.TicketStatus(ctx, service)
}

// RenewTicket forces a new ticket for service
func (c *Client) RenewTicket(ctx context.Context, service Service) (*TicketStatus, error) {
	if _, err := c.service.ForceRenewTicket(ctx, service); err != nil {
		return nil, err
	}
	status := c.service.TicketStatus(ctx, service)
	return &status, nil
}

// ParseService validates a service name ("" and "invoice" mean wsfe)
func ParseService(name string) (Service, error) {
	return model.ParseService(name)
}

// Close releases the ticket store connection, if any
func (c *Client) Close() error {
	if closer, ok := c.store.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
