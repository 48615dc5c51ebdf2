package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"poi-tiering/pkg/circuit"
)

type fakePinger struct{ err error }

func (f fakePinger) PingCtx(context.Context) error { return f.err }

type fakeBreaker struct {
	name  string
	state circuit.State
}

func (f fakeBreaker) Name() string         { return f.name }
func (f fakeBreaker) State() circuit.State { return f.state }

func TestCheckAll(t *testing.T) {
	tests := []struct {
		name    string
		dbErr   error
		breaker circuit.State
		want    Status
		code    int
	}{
		{"all healthy", nil, circuit.Closed, StatusHealthy, http.StatusOK},
		{"open source circuit degrades", nil, circuit.Open, StatusDegraded, http.StatusOK},
		{"database down is unhealthy", errors.New("refused"), circuit.Closed, StatusUnhealthy, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(DefaultHealthConfig(), nil)
			m.Register(NewDatabaseChecker(fakePinger{tt.dbErr}, "database"))
			m.Register(NewBreakerChecker(fakeBreaker{"source_tripadvisor", tt.breaker}))

			h := m.CheckAll(context.Background())
			if h.Status != tt.want {
				t.Errorf("status = %s, want %s", h.Status, tt.want)
			}
			if len(h.Components) != 2 {
				t.Errorf("components = %d", len(h.Components))
			}

			rec := httptest.NewRecorder()
			m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			if rec.Code != tt.code {
				t.Errorf("code = %d, want %d", rec.Code, tt.code)
			}
		})
	}
}

func TestCheckAllEmpty(t *testing.T) {
	if got := NewManager(DefaultHealthConfig(), nil).CheckAll(context.Background()).Status; got != StatusUnknown {
		t.Errorf("status = %s, want unknown", got)
	}
}
