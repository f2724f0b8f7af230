package ticket

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"

	"github.com/rezonia/arca-fiscal/internal/model"
	"github.com/rezonia/arca-fiscal/internal/soap"
)

// WSAA endpoints
const (
	HomologationEndpoint = "https://wsaahomo.afip.gov.ar/ws/services/LoginCms"
	ProductionEndpoint   = "https://wsaa.afip.gov.ar/ws/services/LoginCms"
)

// ErrAlreadyAuthenticated is returned when the authority still holds a valid
// ticket for this certificate and service and refuses to issue another one
var ErrAlreadyAuthenticated = errors.New("authority already holds a valid ticket")

// Login performs the loginCms exchange and returns the raw ticket document
type Login interface {
	LoginCms(ctx context.Context, signedRequest string) ([]byte, error)
}

// WSAAClient talks to the authentication service over SOAP
type WSAAClient struct {
	soap     *soap.Client
	endpoint string
}

// NewWSAAClient creates a login client for endpoint
func NewWSAAClient(client *soap.Client, endpoint string) *WSAAClient {
	return &WSAAClient{soap: client, endpoint: endpoint}
}

type loginCmsRequest struct {
	XMLName xml.Name `xml:"http://wsaa.view.sua.dvadac.desein.afip.gov loginCms"`
	In0     string   `xml:"in0"`
}

// LoginCms sends the base64 CMS and unwraps the escaped ticket in loginCmsReturn
func (c *WSAAClient) LoginCms(ctx context.Context, signedRequest string) ([]byte, error) {
	resp, err := c.soap.Call(ctx, c.endpoint, "", loginCmsRequest{In0: signedRequest})
	if err != nil {
		if fault, ok := soap.IsFault(err); ok && isAlreadyAuthenticated(fault) {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyAuthenticated, fault.Message)
		}
		return nil, err
	}

	ret := soap.FindLocal(resp, "loginCmsReturn")
	if ret == nil {
		return nil, model.NewProtocolError("loginCms", "response has no loginCmsReturn", nil, nil)
	}
	raw := strings.TrimSpace(ret.Text())
	if raw == "" {
		return nil, model.NewProtocolError("loginCms", "empty loginCmsReturn", nil, nil)
	}
	return []byte(raw), nil
}

func isAlreadyAuthenticated(f *soap.Fault) bool {
	return strings.Contains(f.Code, "coe.alreadyAuthenticated") ||
		strings.Contains(f.Message, "ya posee un TA valido")
}
