package ticket

import (
	"encoding/xml"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rezonia/arca-fiscal/internal/model"
)

func TestUniqueIDsStrictlyIncrease(t *testing.T) {
	var ids uniqueIDs
	now := time.Unix(1_700_000_000, 0)

	first := ids.next(now)
	second := ids.next(now)
	if first != 1_700_000_000 {
		t.Errorf("first id = %d, want clock seconds", first)
	}
	if second <= first {
		t.Errorf("second id %d not greater than %d", second, first)
	}
}

func TestUniqueIDsConcurrent(t *testing.T) {
	var ids uniqueIDs
	now := time.Now()

	const n = 100
	got := make(chan uint32, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got <- ids.next(now)
		}()
	}
	wg.Wait()
	close(got)

	seen := make(map[uint32]bool)
	for id := range got {
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
}

func TestBuildRequestWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("ART", -3*3600))

	raw, err := buildRequest(model.ServiceInvoiceAuth, 42, now)
	if err != nil {
		t.Fatalf("buildRequest() error = %v", err)
	}

	var req loginTicketRequest
	if err := xml.Unmarshal(raw, &req); err != nil {
		t.Fatalf("request does not decode: %v", err)
	}
	if req.Service != "wsfe" || req.Header.UniqueID != 42 || req.Version != "1.0" {
		t.Errorf("unexpected request %+v", req)
	}

	gen, _ := time.Parse(time.RFC3339, req.Header.GenerationTime)
	exp, _ := time.Parse(time.RFC3339, req.Header.ExpirationTime)
	if !gen.Equal(now.Add(-10*time.Minute)) || !exp.Equal(now.Add(10*time.Minute)) {
		t.Errorf("window = [%s, %s], want now ±10m", req.Header.GenerationTime, req.Header.ExpirationTime)
	}
}

func TestNextRenewalState(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		attempt int
		want    renewalState
	}{
		{"success", nil, 1, renewalSucceeded},
		{"already authenticated first attempt", ErrAlreadyAuthenticated, 1, renewalBackoff},
		{"already authenticated wrapped", model.NewTicketError(model.ServiceInvoiceAuth, "x", ErrAlreadyAuthenticated), 2, renewalBackoff},
		{"already authenticated last attempt", ErrAlreadyAuthenticated, 3, renewalFailed},
		{"other failure", errors.New("boom"), 1, renewalFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nextRenewalState(tt.err, tt.attempt, 3); got != tt.want {
				t.Errorf("nextRenewalState() = %v, want %v", got, tt.want)
			}
		})
	}
}
