package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackhole-arb/arbcore/internal/types"
)

type fakeStatusSource struct {
	chains   []ChainStatus
	circuits []CircuitStatus
	drawdown types.DrawdownState
}

func (f *fakeStatusSource) ChainStatuses() []ChainStatus     { return f.chains }
func (f *fakeStatusSource) CircuitStatuses() []CircuitStatus { return f.circuits }
func (f *fakeStatusSource) DrawdownState() types.DrawdownState { return f.drawdown }

func TestHealth_HealthyWhenAllChainsConnectedAndCircuitsClosed(t *testing.T) {
	source := &fakeStatusSource{
		chains:   []ChainStatus{{ChainID: "ethereum", Connected: true}},
		circuits: []CircuitStatus{{Chain: "ethereum", State: types.CircuitClosed.String()}},
		drawdown: types.DrawdownNormal,
	}
	srv := NewServer(source, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
}

func TestHealth_UnhealthyWhenDrawdownHalted(t *testing.T) {
	source := &fakeStatusSource{drawdown: types.DrawdownHalt}
	srv := NewServer(source, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "unhealthy", resp.Status)
}

func TestHealth_DegradedWhenOneChainStale(t *testing.T) {
	source := &fakeStatusSource{
		chains: []ChainStatus{
			{ChainID: "ethereum", Connected: true, Stale: false},
			{ChainID: "arbitrum", Connected: true, Stale: true},
		},
		drawdown: types.DrawdownNormal,
	}
	srv := NewServer(source, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
}

func TestHealth_UnhealthyWhenAllChainsDisconnected(t *testing.T) {
	source := &fakeStatusSource{
		chains:   []ChainStatus{{ChainID: "ethereum", Connected: false}},
		drawdown: types.DrawdownNormal,
	}
	srv := NewServer(source, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "unhealthy", resp.Status)
}
