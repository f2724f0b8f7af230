package arcafiscal_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/arca-fiscal/internal/arcatest"
	"github.com/rezonia/arca-fiscal/internal/config"
	"github.com/rezonia/arca-fiscal/pkg/arcafiscal"
)

func testConfig(t *testing.T, srv *arcatest.Server) *config.Config {
	t.Helper()
	cert, key := arcatest.WriteCredentials(t)

	cfg := config.Default()
	cfg.ARCA.CUIT = "20111111112"
	cfg.ARCA.CertPath = cert
	cfg.ARCA.KeyPath = key
	cfg.ARCA.WSAAEndpoint = srv.URL
	cfg.ARCA.WSFEEndpoint = srv.URL
	cfg.ARCA.PadronEndpoint = srv.URL
	cfg.Ticket.Store = config.StoreMemory
	cfg.Ticket.RetryDelay = 0
	return cfg
}

func newClient(t *testing.T, cfg *config.Config) *arcafiscal.Client {
	t.Helper()
	logger, _ := test.NewNullLogger()
	client, err := arcafiscal.New(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func draftB() arcafiscal.InvoiceDraft {
	return arcafiscal.InvoiceDraft{
		"documentType":      "B",
		"pointOfSale":       3,
		"buyerDocType":      "CUIT",
		"buyerDocNumber":    "30500010912",
		"buyerVatCondition": 4,
		"netAmount":         "1000.00",
		"vatBreakdown": []interface{}{
			map[string]interface{}{"rateId": 5, "baseAmount": "1000.00", "amount": "210.00"},
		},
	}
}

func TestClient_Fiscalize(t *testing.T) {
	srv := arcatest.NewServer()
	defer srv.Close()
	srv.SetLastAuthorized(9)

	client := newClient(t, testConfig(t, srv))

	outcome, err := client.Fiscalize(context.Background(), draftB())
	require.NoError(t, err)
	assert.Equal(t, arcafiscal.ResultApproved, outcome.Result)
	assert.Equal(t, int64(10), outcome.DocumentNumber)
	assert.NotEmpty(t, outcome.AttemptID)

	body := srv.LastBody(arcatest.OpSolicitar)
	assert.Contains(t, body, "<ImpTotal>1210.00</ImpTotal>")
	assert.Contains(t, body, "<Cuit>20111111112</Cuit>")
	assert.Contains(t, body, "<MonId>PES</MonId>")
	assert.Equal(t, 0, srv.Calls(arcatest.OpPersona), "registry pre-check is off by default")
}

func TestClient_VerifyBuyerCUIT(t *testing.T) {
	srv := arcatest.NewServer()
	defer srv.Close()

	cfg := testConfig(t, srv)
	cfg.Invoice.VerifyBuyerCUIT = true
	client := newClient(t, cfg)

	_, err := client.Fiscalize(context.Background(), draftB())
	require.NoError(t, err)
	assert.Equal(t, 1, srv.Calls(arcatest.OpPersona))
	assert.Equal(t, 2, srv.Calls(arcatest.OpLogin), "registry and invoicing use separate tickets")
}

func TestClient_ValidateMakesNoCalls(t *testing.T) {
	srv := arcatest.NewServer()
	defer srv.Close()
	client := newClient(t, testConfig(t, srv))

	req, err := client.Validate(draftB())
	require.NoError(t, err)
	assert.Equal(t, "1210.00", req.TotalAmount.StringFixed(2))

	d := draftB()
	d["buyerDocNumber"] = "123"
	_, err = client.Validate(d)
	var ve *arcafiscal.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "buyerDocNumber", ve.Field)

	assert.Equal(t, 0, srv.Calls(arcatest.OpLogin))
}

func TestClient_LastAuthorized(t *testing.T) {
	srv := arcatest.NewServer()
	defer srv.Close()
	srv.SetLastAuthorized(120)
	client := newClient(t, testConfig(t, srv))

	last, err := client.LastAuthorized(context.Background(), 3, 6)
	require.NoError(t, err)
	assert.Equal(t, int64(120), last.Number)
	assert.Equal(t, int64(121), last.Next)
}

func TestClient_TicketStatusAndRenew(t *testing.T) {
	srv := arcatest.NewServer()
	defer srv.Close()
	client := newClient(t, testConfig(t, srv))
	ctx := context.Background()

	service, err := arcafiscal.ParseService("invoice")
	require.NoError(t, err)
	assert.Equal(t, arcafiscal.ServiceInvoiceAuth, service)

	status := client.TicketStatus(ctx, service)
	assert.False(t, status.Exists)

	renewed, err := client.RenewTicket(ctx, service)
	require.NoError(t, err)
	assert.True(t, renewed.Valid)
	assert.NotEqual(t, "token-1", renewed.MaskedToken, "status never carries the full token")

	renewed, err = client.RenewTicket(ctx, service)
	require.NoError(t, err)
	assert.True(t, renewed.Valid)
	assert.Equal(t, 2, srv.Calls(arcatest.OpLogin))
}

func TestNew_LogsCertificate(t *testing.T) {
	srv := arcatest.NewServer()
	defer srv.Close()

	logger, hook := test.NewNullLogger()
	client, err := arcafiscal.New(context.Background(), testConfig(t, srv), logger)
	require.NoError(t, err)
	defer client.Close()

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "ARCA client configured", entry.Message)
	assert.Equal(t, "arca-fiscal-test", entry.Data["certificate"])
	assert.NotEmpty(t, entry.Data["certificate_expires"])
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.ARCA.CUIT = "123"

	logger, _ := test.NewNullLogger()
	_, err := arcafiscal.New(context.Background(), cfg, logger)
	assert.Error(t, err)
}

func TestNew_UnreadableCertificate(t *testing.T) {
	srv := arcatest.NewServer()
	defer srv.Close()
	cfg := testConfig(t, srv)
	require.NoError(t, os.WriteFile(cfg.ARCA.CertPath, []byte("not a certificate"), 0o600))

	logger, _ := test.NewNullLogger()
	_, err := arcafiscal.New(context.Background(), cfg, logger)
	var se *arcafiscal.SigningError
	assert.True(t, errors.As(err, &se), "got %v", err)
}

func TestOpenStore(t *testing.T) {
	cfg := config.Default()
	cfg.Ticket.Dir = filepath.Join(t.TempDir(), "tokens")

	store, err := arcafiscal.OpenStore(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, store)
	assert.DirExists(t, cfg.Ticket.Dir)

	cfg.Ticket.Store = config.StoreMemory
	store, err = arcafiscal.OpenStore(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, store)

	cfg.Ticket.Store = "etcd"
	_, err = arcafiscal.OpenStore(context.Background(), cfg)
	assert.Error(t, err)
}
