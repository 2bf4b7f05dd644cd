package wsserver_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/bayareaeagle/VBJC/pkg/bridge"
	"github.com/bayareaeagle/VBJC/pkg/wsserver"
)

type fixedSource struct {
	state bridge.BridgeState
	last  string
}

func (f *fixedSource) GetBridgeState() (bridge.BridgeState, error) { return f.state, nil }
func (f *fixedSource) LastMirrorTxHash() string                    { return f.last }

func testSource() *fixedSource {
	state := bridge.NewBridgeState()
	state.ProcessedDeposits["aa11"] = bridge.ProcessedDeposit{
		DepositTxHash: "aa11",
		ProcessedAt:   time.Now().UTC(),
		MirrorTxHash:  "mirror_aa11",
		Status:        bridge.MirrorStatusConfirmed,
	}
	state.PendingMirrors["bb22"] = bridge.PendingMirror{
		DepositTxHash: "bb22",
		Deposit: bridge.DepositEvent{
			TxHash: "bb22",
			Amount: math.NewInt(5_000_000),
		},
	}
	state.Watermark = bridge.Watermark{LastProcessedSlot: 42, LastProcessedBlockHash: "block_42"}
	return &fixedSource{state: state, last: "mirror_aa11"}
}

func TestStateEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp := get(t, srv, "/state")
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "application/json", resp.Header().Get("Content-Type"))

	var body struct {
		State            bridge.BridgeState `json:"state"`
		LastMirrorTxHash string             `json:"lastMirrorTxHash"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Equal(t, "mirror_aa11", body.LastMirrorTxHash)
	require.Contains(t, body.State.ProcessedDeposits, "aa11")
	require.Contains(t, body.State.PendingMirrors, "bb22")
	require.True(t, body.State.PendingMirrors["bb22"].Deposit.Amount.Equal(math.NewInt(5_000_000)),
		"Amounts must survive the JSON surface")
	require.Equal(t, uint64(42), body.State.Watermark.LastProcessedSlot)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp := get(t, srv, "/health")
	require.Equal(t, http.StatusOK, resp.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
}

func TestStateEndpointRejectsPost(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/state", nil)
	resp := httptest.NewRecorder()
	srv.Handler().ServeHTTP(resp, req)
	require.Equal(t, http.StatusMethodNotAllowed, resp.Code)
}

func newTestServer(t *testing.T) *wsserver.Server {
	t.Helper()
	return wsserver.New("127.0.0.1:0", testSource(), log.NewNopLogger())
}

func get(t *testing.T, srv *wsserver.Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	resp := httptest.NewRecorder()
	srv.Handler().ServeHTTP(resp, req)
	return resp
}
