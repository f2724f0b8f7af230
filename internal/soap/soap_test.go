package soap_test

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/arca-fiscal/internal/model"
	"github.com/rezonia/arca-fiscal/internal/soap"
)

type echoRequest struct {
	XMLName xml.Name `xml:"urn:test Echo"`
	Value   string   `xml:"Value"`
}

type echoResponse struct {
	Value string `xml:"EchoResult>Value"`
}

func newClient(opts ...soap.ClientOption) *soap.Client {
	logger, _ := test.NewNullLogger()
	return soap.NewClient(logger, opts...)
}

func TestMarshal(t *testing.T) {
	out, err := soap.Marshal(echoRequest{Value: "hola"})
	require.NoError(t, err)

	s := string(out)
	assert.Contains(t, s, `<?xml version="1.0" encoding="UTF-8"?>`)
	assert.Contains(t, s, `<Envelope xmlns="http://schemas.xmlsoap.org/soap/envelope/">`)
	assert.Contains(t, s, `<Echo xmlns="urn:test"><Value>hola</Value></Echo>`)
}

func TestCall_Success(t *testing.T) {
	var gotAction, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAction = r.Header.Get("SOAPAction")
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "<Value>hola</Value>")
		_, _ = w.Write([]byte(`<?xml version="1.0"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <EchoResponse xmlns="urn:test"><EchoResult><Value>hola</Value></EchoResult></EchoResponse>
  </soap:Body>
</soap:Envelope>`))
	}))
	defer srv.Close()

	elem, err := newClient().Call(context.Background(), srv.URL, "urn:test/Echo", echoRequest{Value: "hola"})
	require.NoError(t, err)
	assert.Equal(t, "EchoResponse", elem.Tag)
	assert.Equal(t, "urn:test/Echo", gotAction)
	assert.Equal(t, "text/xml; charset=utf-8", gotContentType)

	var resp echoResponse
	require.NoError(t, soap.Decode(elem, &resp))
	assert.Equal(t, "hola", resp.Value)
}

func TestCall_Fault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/">
<soapenv:Body><soapenv:Fault>
  <faultcode xmlns:ns1="http://xml.apache.org/axis/">ns1:coe.alreadyAuthenticated</faultcode>
  <faultstring>El CEE ya posee un TA valido para el acceso al WSN solicitado</faultstring>
</soapenv:Fault></soapenv:Body></soapenv:Envelope>`))
	}))
	defer srv.Close()

	_, err := newClient().Call(context.Background(), srv.URL, "", echoRequest{})
	fault, ok := soap.IsFault(err)
	require.True(t, ok, "expected fault, got %v", err)
	assert.Equal(t, "ns1:coe.alreadyAuthenticated", fault.Code)
	assert.Contains(t, fault.Message, "ya posee un TA valido")
}

func TestCall_StatusWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway"))
	}))
	defer srv.Close()

	_, err := newClient().Call(context.Background(), srv.URL, "", echoRequest{})
	var te *model.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, model.FlavorHTTPStatus, te.Flavor)
	assert.Equal(t, http.StatusBadGateway, te.StatusCode)
}

func TestCall_MalformedSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("definitely not xml"))
	}))
	defer srv.Close()

	_, err := newClient().Call(context.Background(), srv.URL, "Echo", echoRequest{})
	var pe *model.ProtocolError
	require.True(t, errors.As(err, &pe), "expected protocol error, got %v", err)
}

func TestCall_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	client := newClient(soap.WithTimeouts(time.Second, 50*time.Millisecond))
	_, err := client.Call(context.Background(), srv.URL, "", echoRequest{})
	require.Error(t, err)
	assert.True(t, model.IsTimeout(err), "expected timeout flavor, got %v", err)
}

func TestCall_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = newClient().Call(context.Background(), "http://"+addr, "", echoRequest{})
	var te *model.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, model.FlavorConnectionRefused, te.Flavor)
}

func TestClassify(t *testing.T) {
	reset := &net.OpError{Op: "read", Net: "tcp", Err: os.NewSyscallError("read", syscall.ECONNRESET)}

	assert.Equal(t, model.FlavorConnectionReset, soap.Classify(reset))
	assert.Equal(t, model.FlavorConnectionReset, soap.Classify(io.ErrUnexpectedEOF))
	assert.Equal(t, model.FlavorTimeout, soap.Classify(context.DeadlineExceeded))
	assert.Equal(t, model.FlavorOther, soap.Classify(errors.New("boom")))
}

func TestFindAllLocal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body>
<R><Errors><Err><Code>1</Code></Err><Err><Code>2</Code></Err></Errors></R></s:Body></s:Envelope>`))
	}))
	defer srv.Close()

	elem, err := newClient().Call(context.Background(), srv.URL, "", echoRequest{})
	require.NoError(t, err)

	errs := soap.FindAllLocal(elem, "Err")
	require.Len(t, errs, 2)
	assert.Equal(t, "2", soap.ChildText(errs[1], "Code"))
}
