package model_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/arca-fiscal/internal/model"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		docType int
		kind    model.DocumentKind
		note    bool
	}{
		{1, model.KindA, false},
		{2, model.KindA, true},
		{3, model.KindA, true},
		{6, model.KindB, false},
		{8, model.KindB, true},
		{11, model.KindC, false},
		{13, model.KindC, true},
	}
	for _, tt := range tests {
		kind, ok := model.KindOf(tt.docType)
		require.True(t, ok, tt.docType)
		assert.Equal(t, tt.kind, kind, tt.docType)
		assert.Equal(t, tt.note, model.IsNote(tt.docType), tt.docType)
	}

	for _, docType := range []int{0, 4, 5, 51, 201} {
		_, ok := model.KindOf(docType)
		assert.False(t, ok, docType)
	}
}

func TestInvoiceRequest_AssignNumber(t *testing.T) {
	req := &model.InvoiceRequest{DocumentType: model.DocInvoiceB}
	req.AssignNumber(47)

	assert.Equal(t, int64(47), req.DocumentNumberFrom)
	assert.Equal(t, int64(47), req.DocumentNumberTo)
	assert.Equal(t, model.KindB, req.Kind())
}

func TestInvoiceRequest_MarshalJSON(t *testing.T) {
	req := &model.InvoiceRequest{
		DocumentType:     model.DocInvoiceA,
		NetAmount:        decimal.NewFromInt(100),
		OtherTaxesAmount: decimal.Zero,
		VatAmount:        decimal.NewFromInt(21),
		TotalAmount:      decimal.NewFromInt(121),
		ExchangeRate:     decimal.NewFromInt(1),
		VatBreakdown: []model.VatEntry{
			{RateID: 5, BaseAmount: decimal.NewFromInt(100), Amount: decimal.NewFromInt(21)},
		},
		OtherTaxes: []model.OtherTax{
			{TaxID: 99, Description: "IIBB", BaseAmount: decimal.NewFromInt(100), Rate: decimal.RequireFromString("3.5"), Amount: decimal.RequireFromString("3.5")},
		},
	}

	data, err := json.Marshal(req)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `"net_amount":"100.00"`)
	assert.Contains(t, out, `"other_taxes_amount":"0.00"`)
	assert.Contains(t, out, `"vat_amount":"21.00"`)
	assert.Contains(t, out, `"total_amount":"121.00"`)
	assert.Contains(t, out, `{"rate_id":5,"base_amount":"100.00","amount":"21.00"}`)
	assert.Contains(t, out, `"rate":"3.50","amount":"3.50"`)
	assert.Equal(t, 1, strings.Count(out, `"total_amount"`))

	var back model.InvoiceRequest
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.TotalAmount.Equal(req.TotalAmount))
	assert.Equal(t, model.DocInvoiceA, back.DocumentType)
}

func TestParseService(t *testing.T) {
	for _, in := range []string{"", "invoice", "wsfe"} {
		s, err := model.ParseService(in)
		require.NoError(t, err)
		assert.Equal(t, model.ServiceInvoiceAuth, s)
	}

	s, err := model.ParseService("ws_sr_padron_a5")
	require.NoError(t, err)
	assert.Equal(t, model.ServiceTaxpayerRegistry, s)

	_, err = model.ParseService("wsmtxca")
	var ve *model.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "service", ve.Field)
}

func TestAccessTicket_ValidAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ticket := &model.AccessTicket{
		Token:     "tok",
		Signature: "sig",
		ExpiresAt: now.Add(10 * time.Minute),
	}

	assert.True(t, ticket.ValidAt(now, 5*time.Minute))
	assert.False(t, ticket.ValidAt(now, 10*time.Minute), "expiring exactly at the margin is not valid")
	assert.False(t, ticket.ValidAt(now.Add(11*time.Minute), 0))

	var missing *model.AccessTicket
	assert.False(t, missing.ValidAt(now, 0))
	assert.False(t, (&model.AccessTicket{Signature: "sig", ExpiresAt: now.Add(time.Hour)}).ValidAt(now, 0))
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", model.MaskSecret(""))
	assert.Equal(t, "a...", model.MaskSecret("abc"))
	assert.Equal(t, "PD94bWwgdm...", model.MaskSecret("PD94bWwgdmVyc2lvbj0iMS4wIj8+"))

	ticket := &model.AccessTicket{Token: "PD94bWwgdmVyc2lvbj0i", Signature: "QkNHenNqWkdac2hO"}
	assert.Equal(t, "PD94bWwgdm...", ticket.MaskedToken())
	assert.Equal(t, "QkNHenNqWk...", ticket.MaskedSignature())
}

func TestResult_String(t *testing.T) {
	assert.Equal(t, "approved", model.ResultApproved.String())
	assert.Equal(t, "rejected", model.ResultRejected.String())
	assert.Equal(t, "unknown", model.Result("P").String())

	assert.True(t, (&model.AuthorizationOutcome{Result: model.ResultApproved}).Approved())
	assert.False(t, (&model.AuthorizationOutcome{Result: model.ResultRejected}).Approved())
	var none *model.AuthorizationOutcome
	assert.False(t, none.Approved())
}

func TestErrors_Messages(t *testing.T) {
	ve := model.NewValidationError("netAmount", "abc", "numeric", "net amount must be a number")
	assert.Contains(t, ve.Error(), "netAmount")
	assert.Contains(t, ve.Error(), "value=abc")
	assert.NotContains(t, model.NewValidationError("x", nil, "required", "missing").Error(), "value=")

	status := model.NewTransportError(model.FlavorHTTPStatus, "https://wsfe", 503, nil)
	assert.Contains(t, status.Error(), "503")

	pe := model.NewProtocolError("FECAESolicitar", "result without CAE", []model.Message{{Code: 10016, Message: "correlativo"}}, nil)
	assert.Contains(t, pe.Error(), "10016: correlativo")

	sqe := model.NewSequenceQueryError(3, 6, "authority returned errors", []model.Message{{Code: 600, Message: "token"}, {Code: 601, Message: "cuit"}}, nil)
	assert.Contains(t, sqe.Error(), "600: token | 601: cuit")
	assert.Contains(t, sqe.Error(), "pos=3, type=6")
}

func TestErrors_Unwrap(t *testing.T) {
	timeout := model.NewTransportError(model.FlavorTimeout, "https://wsaa", 0, context.DeadlineExceeded)

	ticketErr := model.NewTicketError(model.ServiceInvoiceAuth, "renewal failed", timeout)
	assert.True(t, errors.Is(ticketErr, context.DeadlineExceeded))
	assert.True(t, model.IsTimeout(ticketErr))
	assert.False(t, model.IsConnectionReset(ticketErr))

	wrapped := fmt.Errorf("fiscalize: %w", model.NewSequenceQueryError(1, 1, "request failed", nil, timeout))
	var sqe *model.SequenceQueryError
	require.True(t, errors.As(wrapped, &sqe))
	assert.Equal(t, model.FlavorTimeout, sqe.Flavor())

	noCause := model.NewSequenceQueryError(1, 1, "no number", nil, nil)
	assert.Equal(t, model.FlavorOther, noCause.Flavor())

	signing := model.NewSigningError(model.ErrCodeSignFailed, "openssl exited", errors.New("exit status 1"))
	assert.EqualError(t, errors.Unwrap(signing), "exit status 1")
}
