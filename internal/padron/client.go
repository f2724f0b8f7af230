package padron

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rezonia/arca-fiscal/internal/model"
	"github.com/rezonia/arca-fiscal/internal/soap"
)

// Padrón A5 endpoints
const (
	HomologationEndpoint = "https://awshomo.afip.gov.ar/sr-padron/webservices/personaServiceA5"
	ProductionEndpoint   = "https://aws.afip.gov.ar/sr-padron/webservices/personaServiceA5"
)

const activeKey = "ACTIVO"

// TicketSource supplies valid access tickets
type TicketSource interface {
	Get(ctx context.Context, service model.Service) (*model.AccessTicket, error)
}

// Persona is the subset of a registry record the pre-check needs
type Persona struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	KeyStatus string `json:"key_status"`
}

// Active reports whether the taxpayer key is active
func (p *Persona) Active() bool {
	return strings.EqualFold(p.KeyStatus, activeKey)
}

// getPersonaRequest uses a prefixed root so the parameters stay unqualified
type getPersonaRequest struct {
	XMLName          xml.Name `xml:"a5:getPersona_v2"`
	Namespace        string   `xml:"xmlns:a5,attr"`
	Token            string   `xml:"token"`
	Sign             string   `xml:"sign"`
	CuitRepresentada string   `xml:"cuitRepresentada"`
	IDPersona        string   `xml:"idPersona"`
}

type personaReturn struct {
	General struct {
		IDPersona   string `xml:"idPersona"`
		EstadoClave string `xml:"estadoClave"`
		RazonSocial string `xml:"razonSocial"`
		Apellido    string `xml:"apellido"`
		Nombre      string `xml:"nombre"`
		TipoPersona string `xml:"tipoPersona"`
	} `xml:"datosGenerales"`
	Errors []string `xml:"errorConstancia>error"`
}

// Client queries the taxpayer registry
type Client struct {
	soap       *soap.Client
	endpoint   string
	tickets    TicketSource
	taxpayerID string
	logger     logrus.FieldLogger
}

// NewClient creates a registry client acting on behalf of taxpayerID
func NewClient(client *soap.Client, endpoint string, tickets TicketSource, taxpayerID string, logger logrus.FieldLogger) *Client {
	return &Client{
		soap:       client,
		endpoint:   endpoint,
		tickets:    tickets,
		taxpayerID: taxpayerID,
		logger:     logger,
	}
}

// GetPersona runs getPersona_v2 for id. A missing record is a *model.ValidationError.
func (c *Client) GetPersona(ctx context.Context, id string) (*Persona, error) {
	t, err := c.tickets.Get(ctx, model.ServiceTaxpayerRegistry)
	if err != nil {
		return nil, err
	}

	resp, err := c.soap.Call(ctx, c.endpoint, "", getPersonaRequest{
		Namespace:        "http://a5.soap.ws.server.puc.sr/",
		Token:            t.Token,
		Sign:             t.Signature,
		CuitRepresentada: c.taxpayerID,
		IDPersona:        id,
	})
	if err != nil {
		if fault, ok := soap.IsFault(err); ok && strings.Contains(strings.ToLower(fault.Message), "no existe persona") {
			return nil, model.NewValidationError("buyerDocNumber", id, "registry", "CUIT is not registered with the authority")
		}
		return nil, err
	}

	elem := soap.FindLocal(resp, "personaReturn")
	if elem == nil {
		return nil, model.NewProtocolError("getPersona_v2", "response has no personaReturn", nil, nil)
	}
	var ret personaReturn
	if err := soap.Decode(elem, &ret); err != nil {
		return nil, model.NewProtocolError("getPersona_v2", "malformed response", nil, err)
	}

	g := ret.General
	if g.IDPersona == "" {
		if len(ret.Errors) > 0 {
			return nil, model.NewValidationError("buyerDocNumber", id, "registry", strings.Join(ret.Errors, "; "))
		}
		return nil, model.NewValidationError("buyerDocNumber", id, "registry", "CUIT is not registered with the authority")
	}

	name := g.RazonSocial
	if name == "" {
		name = strings.TrimSpace(g.Apellido + " " + g.Nombre)
	}
	return &Persona{ID: g.IDPersona, Name: name, Kind: g.TipoPersona, KeyStatus: g.EstadoClave}, nil
}

// VerifyBuyer checks the CUIT locally and then against the registry.
// Any reason to refuse the buyer is returned as a *model.ValidationError.
func (c *Client) VerifyBuyer(ctx context.Context, cuit string) (*Persona, error) {
	if !ValidCUIT(cuit) {
		return nil, model.NewValidationError("buyerDocNumber", cuit, "cuit_check_digit", "CUIT check digit is invalid")
	}

	p, err := c.GetPersona(ctx, cuit)
	if err != nil {
		return nil, err
	}
	if !p.Active() {
		return nil, model.NewValidationError("buyerDocNumber", cuit, "registry", fmt.Sprintf("CUIT key status is %s", p.KeyStatus))
	}

	c.logger.WithFields(logrus.Fields{"cuit": cuit, "name": p.Name}).Debug("Buyer CUIT verified")
	return p, nil
}
