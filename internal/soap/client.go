package soap

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/beevik/etree"
	"github.com/sirupsen/logrus"

	"github.com/rezonia/arca-fiscal/internal/model"
)

// Default timeouts
const (
	DefaultConnectTimeout = 30 * time.Second
	DefaultReadTimeout    = 30 * time.Second
	maxResponseSize       = 10 << 20
)

// Client posts SOAP 1.1 envelopes with bounded connect and read timeouts
type Client struct {
	httpClient *http.Client
	logger     logrus.FieldLogger
}

// ClientOption configures the client
type ClientOption func(*clientConfig)

type clientConfig struct {
	connectTimeout time.Duration
	readTimeout    time.Duration
	httpClient     *http.Client
}

// WithTimeouts sets connect (dial + TLS) and read (response headers) timeouts
func WithTimeouts(connect, read time.Duration) ClientOption {
	return func(cfg *clientConfig) {
		if connect > 0 {
			cfg.connectTimeout = connect
		}
		if read > 0 {
			cfg.readTimeout = read
		}
	}
}

// WithHTTPClient replaces the HTTP client entirely
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cfg *clientConfig) {
		cfg.httpClient = c
	}
}

// NewClient creates a SOAP client
func NewClient(logger logrus.FieldLogger, opts ...ClientOption) *Client {
	cfg := &clientConfig{
		connectTimeout: DefaultConnectTimeout,
		readTimeout:    DefaultReadTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	httpClient := cfg.httpClient
	if httpClient == nil {
		dialer := &net.Dialer{Timeout: cfg.connectTimeout, KeepAlive: 30 * time.Second}
		httpClient = &http.Client{
			Timeout: cfg.connectTimeout + cfg.readTimeout,
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           dialer.DialContext,
				TLSHandshakeTimeout:   cfg.connectTimeout,
				ResponseHeaderTimeout: cfg.readTimeout,
				MaxIdleConns:          10,
				IdleConnTimeout:       90 * time.Second,
			},
		}
	}

	return &Client{httpClient: httpClient, logger: logger}
}

// Call posts operation to endpoint and returns the first element inside the response Body.
// Errors are *model.TransportError, *Fault or *model.ProtocolError.
func (c *Client) Call(ctx context.Context, endpoint, action string, operation interface{}) (*etree.Element, error) {
	payload, err := Marshal(operation)
	if err != nil {
		return nil, model.NewProtocolError(action, "cannot encode request", nil, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, model.NewTransportError(model.FlavorOther, endpoint, 0, err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", action)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithFields(logrus.Fields{"endpoint": endpoint, "action": action}).WithError(err).Warn("SOAP call failed")
		return nil, model.NewTransportError(Classify(err), endpoint, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, model.NewTransportError(Classify(err), endpoint, resp.StatusCode, err)
	}

	c.logger.WithFields(logrus.Fields{
		"endpoint": endpoint,
		"action":   action,
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
		"bytes":    len(body),
	}).Debug("SOAP call completed")

	success := resp.StatusCode >= 200 && resp.StatusCode < 300

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil || doc.Root() == nil {
		if !success {
			return nil, model.NewTransportError(model.FlavorHTTPStatus, endpoint, resp.StatusCode, nil)
		}
		return nil, model.NewProtocolError(action, "response is not XML", nil, err)
	}

	soapBody := FindLocal(doc.Root(), "Body")
	if soapBody == nil {
		if !success {
			return nil, model.NewTransportError(model.FlavorHTTPStatus, endpoint, resp.StatusCode, nil)
		}
		return nil, model.NewProtocolError(action, "response has no SOAP Body", nil, nil)
	}

	if fault := Child(soapBody, "Fault"); fault != nil {
		return nil, parseFault(fault)
	}

	if !success {
		return nil, model.NewTransportError(model.FlavorHTTPStatus, endpoint, resp.StatusCode, nil)
	}

	children := soapBody.ChildElements()
	if len(children) == 0 {
		return nil, model.NewProtocolError(action, "empty SOAP Body", nil, nil)
	}
	return children[0], nil
}

// Classify maps a transport error onto a caller-visible flavor
func Classify(err error) model.Flavor {
	var netErr net.Error
	switch {
	case err == nil:
		return model.FlavorOther
	case errors.Is(err, context.DeadlineExceeded):
		return model.FlavorTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return model.FlavorTimeout
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return model.FlavorConnectionReset
	case errors.Is(err, syscall.ECONNREFUSED):
		return model.FlavorConnectionRefused
	default:
		return model.FlavorOther
	}
}

// IsFault reports whether err is a SOAP fault and returns it
func IsFault(err error) (*Fault, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
