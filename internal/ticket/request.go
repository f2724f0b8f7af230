package ticket

import (
	"encoding/xml"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rezonia/arca-fiscal/internal/model"
)

// RequestWindow brackets now on both sides of a login ticket request
const RequestWindow = 10 * time.Minute

const requestTimeLayout = "2006-01-02T15:04:05-07:00"

// loginTicketRequest is the TRA document signed and sent to loginCms
type loginTicketRequest struct {
	XMLName xml.Name      `xml:"loginTicketRequest"`
	Version string        `xml:"version,attr"`
	Header  requestHeader `xml:"header"`
	Service string        `xml:"service"`
}

type requestHeader struct {
	UniqueID       uint32 `xml:"uniqueId"`
	GenerationTime string `xml:"generationTime"`
	ExpirationTime string `xml:"expirationTime"`
}

// uniqueIDs hands out strictly increasing request identifiers seeded from the clock.
// Two requests generated within the same second still get distinct ids.
type uniqueIDs struct {
	last atomic.Int64
}

func (u *uniqueIDs) next(now time.Time) uint32 {
	for {
		last := u.last.Load()
		id := now.Unix()
		if id <= last {
			id = last + 1
		}
		if u.last.CompareAndSwap(last, id) {
			return uint32(id)
		}
	}
}

// buildRequest renders a signed-ready TRA for service, valid from now-10m to now+10m
func buildRequest(service model.Service, id uint32, now time.Time) ([]byte, error) {
	req := loginTicketRequest{
		Version: "1.0",
		Header: requestHeader{
			UniqueID:       id,
			GenerationTime: now.Add(-RequestWindow).Format(requestTimeLayout),
			ExpirationTime: now.Add(RequestWindow).Format(requestTimeLayout),
		},
		Service: string(service),
	}

	out, err := xml.MarshalIndent(req, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode login ticket request: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}
