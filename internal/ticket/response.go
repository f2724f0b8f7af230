package ticket

import (
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/rezonia/arca-fiscal/internal/model"
	"github.com/rezonia/arca-fiscal/internal/soap"
)

const responseRoot = "loginTicketResponse"

// ParseTicket decodes a loginTicketResponse document into an AccessTicket.
// It fails when the root, credentials or validity times are missing or malformed.
func ParseTicket(service model.Service, raw []byte) (*model.AccessTicket, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, fmt.Errorf("ticket is not valid XML: %w", err)
	}

	root := doc.Root()
	if root == nil || root.Tag != responseRoot {
		return nil, fmt.Errorf("ticket root is not %s", responseRoot)
	}

	header := soap.Child(root, "header")
	credentials := soap.Child(root, "credentials")
	if header == nil || credentials == nil {
		return nil, fmt.Errorf("ticket is missing header or credentials")
	}

	expiresAt, err := parseTime(soap.ChildText(header, "expirationTime"))
	if err != nil {
		return nil, fmt.Errorf("invalid expirationTime: %w", err)
	}
	generatedAt, err := parseTime(soap.ChildText(header, "generationTime"))
	if err != nil {
		return nil, fmt.Errorf("invalid generationTime: %w", err)
	}

	token := strings.TrimSpace(soap.ChildText(credentials, "token"))
	sign := strings.TrimSpace(soap.ChildText(credentials, "sign"))
	if token == "" || sign == "" {
		return nil, fmt.Errorf("ticket has no token or sign")
	}

	return &model.AccessTicket{
		Service:     service,
		Token:       token,
		Signature:   sign,
		GeneratedAt: generatedAt.UTC(),
		ExpiresAt:   expiresAt.UTC(),
	}, nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty")
	}
	return time.Parse(time.RFC3339Nano, s)
}
