package wsfe_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/arca-fiscal/internal/arcatest"
	"github.com/rezonia/arca-fiscal/internal/model"
	"github.com/rezonia/arca-fiscal/internal/soap"
	"github.com/rezonia/arca-fiscal/internal/wsfe"
)

const taxpayer = "20111111112"

type staticTickets struct {
	ticket *model.AccessTicket
	err    error
	calls  int
}

func (s *staticTickets) Get(_ context.Context, service model.Service) (*model.AccessTicket, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	t := *s.ticket
	t.Service = service
	return &t, nil
}

func validTicket() *model.AccessTicket {
	now := time.Now()
	return &model.AccessTicket{
		Service:     model.ServiceInvoiceAuth,
		Token:       "PD94bWwgdmVyc2lvbj0iMS4wIi",
		Signature:   "ZmlybWFkbw==",
		GeneratedAt: now,
		ExpiresAt:   now.Add(12 * time.Hour),
	}
}

func newSOAP(opts ...soap.ClientOption) *soap.Client {
	logger, _ := test.NewNullLogger()
	return soap.NewClient(logger, opts...)
}

func newResolver(url string, tickets wsfe.TicketSource, opts ...soap.ClientOption) *wsfe.SequenceResolver {
	logger, _ := test.NewNullLogger()
	return wsfe.NewSequenceResolver(newSOAP(opts...), url, tickets, taxpayer, logger)
}

func newSubmitter(url string) *wsfe.SubmissionClient {
	logger, _ := test.NewNullLogger()
	return wsfe.NewSubmissionClient(newSOAP(), url, logger)
}

func builtRequest(t *testing.T, number int64) *model.InvoiceRequest {
	t.Helper()
	req, err := newBuilder().Build(invoiceA())
	require.NoError(t, err)
	req.AssignNumber(number)
	return req
}

func TestSequenceResolver_NextNumber(t *testing.T) {
	srv := arcatest.NewServer()
	defer srv.Close()
	srv.SetLastAuthorized(45)

	resolver := newResolver(srv.URL, &staticTickets{ticket: validTicket()})

	next, err := resolver.NextNumber(context.Background(), 12, model.DocInvoiceA)
	require.NoError(t, err)
	assert.Equal(t, int64(46), next)

	body := srv.LastBody(arcatest.OpLastAuthorized)
	assert.Contains(t, body, `<FECompUltimoAutorizado xmlns="http://ar.gov.afip.dif.FEV1/">`)
	assert.Contains(t, body, "<Token>PD94bWwgdmVyc2lvbj0iMS4wIi</Token>")
	assert.Contains(t, body, "<Cuit>20111111112</Cuit>")
	assert.Contains(t, body, "<PtoVta>12</PtoVta>")
	assert.Contains(t, body, "<CbteTipo>1</CbteTipo>")
}

func TestSequenceResolver_FirstEmission(t *testing.T) {
	srv := arcatest.NewServer()
	defer srv.Close()

	resolver := newResolver(srv.URL, &staticTickets{ticket: validTicket()})

	last, err := resolver.LastAuthorized(context.Background(), 1, model.DocInvoiceB)
	require.NoError(t, err)
	assert.Equal(t, int64(0), last.Number)
	assert.Equal(t, int64(1), last.Next)
}

func TestSequenceResolver_AuthorityErrors(t *testing.T) {
	srv := arcatest.NewServer()
	defer srv.Close()
	srv.SetLastAuthorizedErrors(`<Errors><Err><Code>600</Code><Msg>ValidacionDeToken: No aparecio CUIT en lista de relaciones</Msg></Err></Errors>`)

	resolver := newResolver(srv.URL, &staticTickets{ticket: validTicket()})

	_, err := resolver.NextNumber(context.Background(), 12, model.DocInvoiceA)
	var sqe *model.SequenceQueryError
	require.True(t, errors.As(err, &sqe))
	require.Len(t, sqe.Errors, 1)
	assert.Equal(t, 600, sqe.Errors[0].Code)
	assert.Equal(t, 12, sqe.PointOfSale)
}

func TestSequenceResolver_MissingNumber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body>
<FECompUltimoAutorizadoResponse xmlns="http://ar.gov.afip.dif.FEV1/"><FECompUltimoAutorizadoResult><PtoVta>12</PtoVta></FECompUltimoAutorizadoResult></FECompUltimoAutorizadoResponse>
</soap:Body></soap:Envelope>`))
	}))
	defer srv.Close()

	_, err := newResolver(srv.URL, &staticTickets{ticket: validTicket()}).NextNumber(context.Background(), 12, 1)
	var sqe *model.SequenceQueryError
	assert.True(t, errors.As(err, &sqe))
}

func TestSequenceResolver_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	resolver := newResolver(srv.URL, &staticTickets{ticket: validTicket()}, soap.WithTimeouts(time.Second, 50*time.Millisecond))

	_, err := resolver.NextNumber(context.Background(), 12, 1)
	var sqe *model.SequenceQueryError
	require.True(t, errors.As(err, &sqe))
	assert.Equal(t, model.FlavorTimeout, sqe.Flavor())
	assert.True(t, model.IsTimeout(err))
}

func TestSequenceResolver_TicketFailure(t *testing.T) {
	srv := arcatest.NewServer()
	defer srv.Close()

	ticketErr := model.NewTicketError(model.ServiceInvoiceAuth, "login failed", nil)
	_, err := newResolver(srv.URL, &staticTickets{err: ticketErr}).NextNumber(context.Background(), 12, 1)

	assert.ErrorIs(t, err, ticketErr)
	assert.Equal(t, 0, srv.Calls(arcatest.OpLastAuthorized))
}

func TestSubmit_Approved(t *testing.T) {
	srv := arcatest.NewServer()
	defer srv.Close()

	outcome, err := newSubmitter(srv.URL).Submit(context.Background(), validTicket(), taxpayer, builtRequest(t, 46))
	require.NoError(t, err)

	assert.True(t, outcome.Approved())
	assert.Equal(t, model.ResultApproved, outcome.Result)
	assert.Equal(t, arcatest.DefaultCAE, outcome.AuthCode)
	require.NotNil(t, outcome.AuthCodeExpiry)
	assert.True(t, outcome.AuthCodeExpiry.After(time.Now()))
	assert.Equal(t, int64(46), outcome.DocumentNumber)
	assert.Equal(t, "20260301120000", outcome.ProcessedAt)
}

func TestSubmit_WireFormat(t *testing.T) {
	srv := arcatest.NewServer()
	defer srv.Close()

	_, err := newSubmitter(srv.URL).Submit(context.Background(), validTicket(), taxpayer, builtRequest(t, 46))
	require.NoError(t, err)

	body := srv.LastBody(arcatest.OpSolicitar)
	assert.Contains(t, body, `<FECAESolicitar xmlns="http://ar.gov.afip.dif.FEV1/">`)
	assert.Contains(t, body, "<FeCabReq><CantReg>1</CantReg><PtoVta>12</PtoVta><CbteTipo>1</CbteTipo></FeCabReq>")
	assert.Contains(t, body, "<CbteDesde>46</CbteDesde><CbteHasta>46</CbteHasta><CbteFch>20260301</CbteFch>")
	assert.Contains(t, body, "<ImpTotal>121.00</ImpTotal><ImpTotConc>0.00</ImpTotConc><ImpNeto>100.00</ImpNeto>")
	assert.Contains(t, body, "<ImpOpEx>0.00</ImpOpEx><ImpTrib>0.00</ImpTrib><ImpIVA>21.00</ImpIVA>")
	assert.Contains(t, body, "<MonId>PES</MonId><MonCotiz>1</MonCotiz><CondicionIVAReceptorId>1</CondicionIVAReceptorId>")
	assert.Contains(t, body, "<Iva><AlicIva><Id>5</Id><BaseImp>100.00</BaseImp><Importe>21.00</Importe></AlicIva></Iva>")
	assert.NotContains(t, body, "CbtesAsoc")
	assert.NotContains(t, body, "Tributos")
	assert.NotContains(t, body, "FchServDesde")
}

func TestSubmit_KindCOmitsIva(t *testing.T) {
	srv := arcatest.NewServer()
	defer srv.Close()

	req, err := newBuilder().Build(model.InvoiceDraft{
		"documentType":   "C",
		"pointOfSale":    3,
		"buyerDocType":   "CF",
		"buyerDocNumber": "0",
		"netAmount":      "80",
	})
	require.NoError(t, err)
	req.AssignNumber(7)

	_, err = newSubmitter(srv.URL).Submit(context.Background(), validTicket(), taxpayer, req)
	require.NoError(t, err)

	body := srv.LastBody(arcatest.OpSolicitar)
	assert.NotContains(t, body, "<Iva>")
	assert.Contains(t, body, "<ImpIVA>0.00</ImpIVA>")
	assert.Contains(t, body, "<CondicionIVAReceptorId>5</CondicionIVAReceptorId>")
}

func TestSubmit_Rejected(t *testing.T) {
	srv := arcatest.NewServer()
	defer srv.Close()
	srv.SetSolicitarResult(arcatest.RejectedResult(10015, "El campo DocNro es invalido & no existe"))

	outcome, err := newSubmitter(srv.URL).Submit(context.Background(), validTicket(), taxpayer, builtRequest(t, 46))
	require.NoError(t, err)

	assert.Equal(t, model.ResultRejected, outcome.Result)
	assert.False(t, outcome.Approved())
	assert.Empty(t, outcome.AuthCode)
	require.Len(t, outcome.Observations, 1)
	assert.Equal(t, model.Message{Code: 10015, Message: "El campo DocNro es invalido & no existe"}, outcome.Observations[0])
}

func TestSubmit_ContractViolations(t *testing.T) {
	tests := []struct {
		name   string
		result string
	}{
		{
			name: "approved without CAE",
			result: `<FeCabResp><Resultado>A</Resultado></FeCabResp><FeDetResp><FECAEDetResponse><Resultado>A</Resultado>` +
				`<CAEFchVto>20260311</CAEFchVto></FECAEDetResponse></FeDetResp>`,
		},
		{
			name: "approved without expiry",
			result: `<FeCabResp><Resultado>A</Resultado></FeCabResp><FeDetResp><FECAEDetResponse><Resultado>A</Resultado>` +
				`<CAE>75123456789012</CAE></FECAEDetResponse></FeDetResp>`,
		},
		{
			name: "approved with malformed expiry",
			result: `<FeCabResp><Resultado>A</Resultado></FeCabResp><FeDetResp><FECAEDetResponse><Resultado>A</Resultado>` +
				`<CAE>75123456789012</CAE><CAEFchVto>11/03/2026</CAEFchVto></FECAEDetResponse></FeDetResp>`,
		},
		{
			name:   "partial result",
			result: `<FeCabResp><Resultado>P</Resultado></FeCabResp>`,
		},
		{
			name:   "errors instead of result",
			result: `<Errors><Err><Code>10016</Code><Msg>El numero o fecha del comprobante no se corresponde con el proximo</Msg></Err></Errors>`,
		},
		{
			name:   "empty result",
			result: ``,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body>` +
					`<FECAESolicitarResponse xmlns="http://ar.gov.afip.dif.FEV1/"><FECAESolicitarResult>` + tt.result +
					`</FECAESolicitarResult></FECAESolicitarResponse></soap:Body></soap:Envelope>`))
			}))
			defer srv.Close()

			outcome, err := newSubmitter(srv.URL).Submit(context.Background(), validTicket(), taxpayer, builtRequest(t, 46))
			assert.Nil(t, outcome)
			var pe *model.ProtocolError
			require.True(t, errors.As(err, &pe), "expected ProtocolError, got %v", err)
		})
	}
}

func TestSubmit_ErrorsAreAttached(t *testing.T) {
	srv := arcatest.NewServer()
	defer srv.Close()
	srv.SetSolicitarResult(`<Errors><Err><Code>10016</Code><Msg>numero incorrecto</Msg></Err></Errors>`)

	_, err := newSubmitter(srv.URL).Submit(context.Background(), validTicket(), taxpayer, builtRequest(t, 46))
	var pe *model.ProtocolError
	require.True(t, errors.As(err, &pe))
	require.Len(t, pe.Errors, 1)
	assert.Equal(t, 10016, pe.Errors[0].Code)
}

func TestSubmit_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newSubmitter(srv.URL).Submit(context.Background(), validTicket(), taxpayer, builtRequest(t, 46))
	var te *model.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusServiceUnavailable, te.StatusCode)
}

func TestSubmit_RequiresAssignedNumber(t *testing.T) {
	srv := arcatest.NewServer()
	defer srv.Close()

	_, err := newSubmitter(srv.URL).Submit(context.Background(), validTicket(), taxpayer, builtRequest(t, 0))
	requireValidation(t, err, "documentNumber")
	assert.Equal(t, 0, srv.Calls(arcatest.OpSolicitar))
}
