package padron_test

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
	"github.com/rezonia/arca-fiscal/internal/padron"
	"github.com/rezonia/arca-fiscal/internal/soap"
)

type tickets struct {
	services []model.Service
}

func (t *tickets) Get(_ context.Context, service model.Service) (*model.AccessTicket, error) {
	t.services = append(t.services, service)
	return &model.AccessTicket{Service: service, Token: "tok", Signature: "sig", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func newClient(url string, src padron.TicketSource) *padron.Client {
	logger, _ := test.NewNullLogger()
	return padron.NewClient(soap.NewClient(logger), url, src, "20111111112", logger)
}

func TestValidCUIT(t *testing.T) {
	tests := []struct {
		cuit string
		want bool
	}{
		{"20111111112", true},
		{"33693450239", true},
		{"30500010912", true},
		{"20111111113", false},
		{"2011111111", false},
		{"201111111120", false},
		{"2011111111a", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.cuit, func(t *testing.T) {
			assert.Equal(t, tt.want, padron.ValidCUIT(tt.cuit))
		})
	}
}

func TestGetPersona(t *testing.T) {
	srv := arcatest.NewServer()
	defer srv.Close()

	src := &tickets{}
	p, err := newClient(srv.URL, src).GetPersona(context.Background(), "30500010912")
	require.NoError(t, err)

	assert.Equal(t, "30500010912", p.ID)
	assert.Equal(t, "EMPRESA DE PRUEBA SA", p.Name)
	assert.True(t, p.Active())
	assert.Equal(t, []model.Service{model.ServiceTaxpayerRegistry}, src.services)

	body := srv.LastBody(arcatest.OpPersona)
	assert.Contains(t, body, `<a5:getPersona_v2 xmlns:a5="http://a5.soap.ws.server.puc.sr/">`)
	assert.Contains(t, body, "<cuitRepresentada>20111111112</cuitRepresentada>")
	assert.Contains(t, body, "<idPersona>30500010912</idPersona>")
}

func TestGetPersona_PersonName(t *testing.T) {
	srv := arcatest.NewServer()
	defer srv.Close()
	srv.SetPersonaResult(`<datosGenerales><idPersona>20111111112</idPersona><estadoClave>ACTIVO</estadoClave>` +
		`<apellido>PEREZ</apellido><nombre>JUAN</nombre><tipoPersona>FISICA</tipoPersona></datosGenerales>`)

	p, err := newClient(srv.URL, &tickets{}).GetPersona(context.Background(), "20111111112")
	require.NoError(t, err)
	assert.Equal(t, "PEREZ JUAN", p.Name)
	assert.Equal(t, "FISICA", p.Kind)
}

func TestVerifyBuyer(t *testing.T) {
	srv := arcatest.NewServer()
	defer srv.Close()
	client := newClient(srv.URL, &tickets{})

	_, err := client.VerifyBuyer(context.Background(), "30500010912")
	assert.NoError(t, err)

	_, err = client.VerifyBuyer(context.Background(), "20111111113")
	var ve *model.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "cuit_check_digit", ve.Rule)
	assert.Equal(t, 1, srv.Calls(arcatest.OpPersona), "check digit failures never reach the registry")

	srv.SetPersonaResult(`<datosGenerales><idPersona>30500010912</idPersona><estadoClave>INACTIVO</estadoClave></datosGenerales>`)
	_, err = client.VerifyBuyer(context.Background(), "30500010912")
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "registry", ve.Rule)
}

func TestVerifyBuyer_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body>` +
			`<soap:Fault><faultcode>soap:Server</faultcode><faultstring>No existe persona con ese Id</faultstring></soap:Fault>` +
			`</soap:Body></soap:Envelope>`))
	}))
	defer srv.Close()

	_, err := newClient(srv.URL, &tickets{}).VerifyBuyer(context.Background(), "20111111112")
	var ve *model.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "buyerDocNumber", ve.Field)
}

func TestVerifyBuyer_RegistryErrors(t *testing.T) {
	srv := arcatest.NewServer()
	defer srv.Close()
	srv.SetPersonaResult(`<errorConstancia><error>La clave se encuentra inactiva</error></errorConstancia>`)

	_, err := newClient(srv.URL, &tickets{}).VerifyBuyer(context.Background(), "20111111112")
	var ve *model.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Message, "inactiva")
}

func TestVerifyBuyer_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL, &tickets{}).VerifyBuyer(context.Background(), "20111111112")
	var te *model.TransportError
	require.True(t, errors.As(err, &te))
	var ve *model.ValidationError
	assert.False(t, errors.As(err, &ve))
}
