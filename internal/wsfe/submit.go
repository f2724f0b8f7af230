package wsfe

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rezonia/arca-fiscal/internal/decimal"
	"github.com/rezonia/arca-fiscal/internal/model"
	"github.com/rezonia/arca-fiscal/internal/soap"
)

const opSolicitar = "FECAESolicitar"

// SubmissionClient sends built requests to FECAESolicitar. It never retries:
// resubmitting a number is rejected as a duplicate.
type SubmissionClient struct {
	soap     *soap.Client
	endpoint string
	logger   logrus.FieldLogger
}

// NewSubmissionClient creates a submission client
func NewSubmissionClient(client *soap.Client, endpoint string, logger logrus.FieldLogger) *SubmissionClient {
	return &SubmissionClient{soap: client, endpoint: endpoint, logger: logger}
}

// Submit requests an authorization code for req. A rejection is returned as an
// outcome with a nil error; transport and contract failures are errors.
func (c *SubmissionClient) Submit(ctx context.Context, t *model.AccessTicket, taxpayerID string, req *model.InvoiceRequest) (*model.AuthorizationOutcome, error) {
	if req.DocumentNumberFrom < 1 || req.DocumentNumberFrom != req.DocumentNumberTo {
		return nil, model.NewValidationError("documentNumber", req.DocumentNumberFrom, "assigned", "request has no document number assigned")
	}

	log := c.logger.WithFields(logrus.Fields{
		"point_of_sale":   req.PointOfSale,
		"document_type":   req.DocumentType,
		"document_number": req.DocumentNumberFrom,
	})

	resp, err := c.soap.Call(ctx, c.endpoint, action(opSolicitar), feCAESolicitar{
		Auth:     authFor(t, taxpayerID),
		FeCAEReq: toWire(req),
	})
	if err != nil {
		if fault, ok := soap.IsFault(err); ok {
			return nil, model.NewProtocolError(opSolicitar, "authority returned a SOAP fault", nil, fault)
		}
		log.WithError(err).Warn("Submission failed")
		return nil, err
	}

	elem := soap.FindLocal(resp, "FECAESolicitarResult")
	if elem == nil {
		return nil, model.NewProtocolError(opSolicitar, "response has no FECAESolicitarResult", nil, nil)
	}
	var result solicitarResult
	if err := soap.Decode(elem, &result); err != nil {
		return nil, model.NewProtocolError(opSolicitar, "malformed response", nil, err)
	}

	outcome, err := classify(req, &result)
	if err != nil {
		log.WithError(err).Error("Authority broke the response contract")
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"result":       outcome.Result.String(),
		"observations": len(outcome.Observations),
	}).Info("Submission processed")
	return outcome, nil
}

func classify(req *model.InvoiceRequest, result *solicitarResult) (*model.AuthorizationOutcome, error) {
	errs := toMessages(result.Errors)

	outcome := &model.AuthorizationOutcome{
		PointOfSale:    req.PointOfSale,
		DocumentType:   req.DocumentType,
		DocumentNumber: req.DocumentNumberFrom,
		ProcessedAt:    result.FeCabResp.FchProceso,
		Errors:         errs,
		Events:         toMessages(result.Events),
	}

	var det *detResponse
	if len(result.FeDetResp) > 0 {
		det = &result.FeDetResp[0]
		outcome.Observations = toMessages(det.Observaciones)
	}

	code := strings.TrimSpace(result.FeCabResp.Resultado)
	if code == "" && det != nil {
		code = strings.TrimSpace(det.Resultado)
	}

	switch model.Result(code) {
	case model.ResultApproved:
		if det == nil || strings.TrimSpace(det.CAE) == "" || strings.TrimSpace(det.CAEFchVto) == "" {
			return nil, model.NewProtocolError(opSolicitar, "approved response without CAE or CAE expiry", errs, nil)
		}
		expiry, err := time.ParseInLocation(dateLayout, strings.TrimSpace(det.CAEFchVto), argentina)
		if err != nil {
			return nil, model.NewProtocolError(opSolicitar, "malformed CAEFchVto", errs, err)
		}
		outcome.Result = model.ResultApproved
		outcome.AuthCode = strings.TrimSpace(det.CAE)
		outcome.AuthCodeExpiry = &expiry
		return outcome, nil

	case model.ResultRejected:
		outcome.Result = model.ResultRejected
		return outcome, nil

	case model.ResultUnknown:
		if len(errs) > 0 {
			return nil, model.NewProtocolError(opSolicitar, "authority returned errors without a result", errs, nil)
		}
		return nil, model.NewProtocolError(opSolicitar, "response has no result code", nil, nil)

	default:
		return nil, model.NewProtocolError(opSolicitar, "unexpected result code "+code, errs, nil)
	}
}

func toWire(req *model.InvoiceRequest) feCAEReq {
	det := feCAEDetRequest{
		Concepto:               req.Concept,
		DocTipo:                req.BuyerDocType,
		DocNro:                 req.BuyerDocNumber,
		CbteDesde:              req.DocumentNumberFrom,
		CbteHasta:              req.DocumentNumberTo,
		CbteFch:                req.IssueDate,
		ImpTotal:               decimal.Format2(req.TotalAmount),
		ImpTotConc:             decimal.Format2(req.NonTaxedAmount),
		ImpNeto:                decimal.Format2(req.NetAmount),
		ImpOpEx:                decimal.Format2(req.ExemptAmount),
		ImpTrib:                decimal.Format2(req.OtherTaxesAmount),
		ImpIVA:                 decimal.Format2(req.VatAmount),
		FchServDesde:           req.ServiceFrom,
		FchServHasta:           req.ServiceTo,
		FchVtoPago:             req.PaymentDue,
		MonId:                  req.Currency,
		MonCotiz:               req.ExchangeRate.String(),
		CondicionIVAReceptorId: req.BuyerVatCondition,
	}

	if len(req.AssociatedDocuments) > 0 {
		det.CbtesAsoc = &cbtesAsoc{}
		for _, a := range req.AssociatedDocuments {
			det.CbtesAsoc.Items = append(det.CbtesAsoc.Items, cbteAsoc{
				Tipo:    a.DocumentType,
				PtoVta:  a.PointOfSale,
				Nro:     a.Number,
				Cuit:    a.IssuerCUIT,
				CbteFch: a.Date,
			})
		}
	}
	if len(req.OtherTaxes) > 0 {
		det.Tributos = &tributos{}
		for _, t := range req.OtherTaxes {
			det.Tributos.Items = append(det.Tributos.Items, tributo{
				Id:      t.TaxID,
				Desc:    t.Description,
				BaseImp: decimal.Format2(t.BaseAmount),
				Alic:    decimal.Format2(t.Rate),
				Importe: decimal.Format2(t.Amount),
			})
		}
	}
	if len(req.VatBreakdown) > 0 {
		det.Iva = &iva{}
		for _, e := range req.VatBreakdown {
			det.Iva.Items = append(det.Iva.Items, alicIva{
				Id:      e.RateID,
				BaseImp: decimal.Format2(e.BaseAmount),
				Importe: decimal.Format2(e.Amount),
			})
		}
	}

	return feCAEReq{
		FeCabReq: feCabReq{CantReg: 1, PtoVta: req.PointOfSale, CbteTipo: req.DocumentType},
		FeDetReq: feDetReq{Items: []feCAEDetRequest{det}},
	}
}
