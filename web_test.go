package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestWeb(t *testing.T, conn wireConn) (*WebServer, *Monitor) {
	t.Helper()
	cfg := DefaultConfig()
	monitor := NewMonitor(cfg, zap.NewNop(), WithMonitorConn(conn))
	return NewWebServer(monitor, zap.NewNop()), monitor
}

func TestWeb_Status(t *testing.T) {
	conn := newFakeConn()
	seedMachine(conn)
	web, monitor := newTestWeb(t, conn)

	// 尚未輪詢: 返回初始斷線快照
	rec := httptest.NewRecorder()
	web.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["connected"])

	// 輪詢一次後返回機台狀態
	monitor.poller.PollOnce()

	rec = httptest.NewRecorder()
	web.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["connected"])
	assert.InDelta(t, 47.0, resp["lot_progress_pct"].(float64), 1e-9)
	assert.InDelta(t, -50.012, resp["x_pos"].(float64), 1e-9)

	// 狀態旗標為頂層欄位, 不巢狀
	assert.Equal(t, true, resp["cycle_running"])
	assert.Equal(t, false, resp["estop_active"])
}

func TestWeb_CommandDispatch(t *testing.T) {
	conn := newFakeConn()
	web, monitor := newTestWeb(t, conn)
	require.NoError(t, monitor.Connect())

	body := strings.NewReader(`{"command":"cycle_start","value":true}`)
	rec := httptest.NewRecorder()
	web.handleCommand(rec, httptest.NewRequest(http.MethodPost, "/api/command", body))

	require.Equal(t, http.StatusOK, rec.Code)
	writes := conn.recordedWrites()
	require.Len(t, writes, 1)
	assert.Equal(t, uint16(CoilCycleStart), writes[0].addr)
}

func TestWeb_CommandUnknown(t *testing.T) {
	conn := newFakeConn()
	web, monitor := newTestWeb(t, conn)
	require.NoError(t, monitor.Connect())

	body := strings.NewReader(`{"command":"bogus"}`)
	rec := httptest.NewRecorder()
	web.handleCommand(rec, httptest.NewRequest(http.MethodPost, "/api/command", body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, conn.recordedWrites())
}

func TestWeb_CommandRequiresPost(t *testing.T) {
	web, _ := newTestWeb(t, newFakeConn())

	rec := httptest.NewRecorder()
	web.handleCommand(rec, httptest.NewRequest(http.MethodGet, "/api/command", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWeb_ReadEndpointsRequireGet(t *testing.T) {
	web, _ := newTestWeb(t, newFakeConn())

	for _, handler := range []http.HandlerFunc{web.handleStatus, web.handleDiagnostics, web.handleScan} {
		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	}
}

func TestWeb_SetLotTarget(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "valid", body: `{"target":200}`, wantStatus: http.StatusOK},
		{name: "negative", body: `{"target":-1}`, wantStatus: http.StatusBadRequest},
		{name: "missing", body: `{}`, wantStatus: http.StatusBadRequest},
		{name: "garbage", body: `not json`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := newFakeConn()
			web, monitor := newTestWeb(t, conn)
			require.NoError(t, monitor.Connect())

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/lot/set_target", strings.NewReader(tt.body))
			web.handleSetLotTarget(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				writes := conn.recordedWrites()
				require.Len(t, writes, 1)
				assert.Equal(t, writeOp{kind: "register", addr: RegLotTarget, value: 200}, writes[0])
			} else {
				assert.Empty(t, conn.recordedWrites())
			}
		})
	}
}

func TestWeb_Diagnostics(t *testing.T) {
	web, _ := newTestWeb(t, newFakeConn())

	rec := httptest.NewRecorder()
	web.handleDiagnostics(rec, httptest.NewRequest(http.MethodGet, "/api/diagnostics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var diag Diagnostics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &diag))
	assert.Equal(t, "disconnected", diag.TransportState)
	assert.Len(t, diag.RegisterMap, 12)
	assert.Len(t, diag.CoilMap, CoilBlockCount)
}

func TestWeb_Scan(t *testing.T) {
	conn := newFakeConn()
	seedMachine(conn)
	web, _ := newTestWeb(t, conn)

	rec := httptest.NewRecorder()
	web.handleScan(rec, httptest.NewRequest(http.MethodGet, "/api/scan", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var scan RawScan
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &scan))
	assert.Len(t, scan.Registers, RegBlockCount)
	assert.Len(t, scan.Coils, CoilBlockCount)
	assert.Equal(t, uint16(1001), scan.Registers[RegProgram])
}

func TestWeb_ScanFailure(t *testing.T) {
	conn := newFakeConn()
	conn.setConnectErr(errConnectRefused{})
	web, _ := newTestWeb(t, conn)

	rec := httptest.NewRecorder()
	web.handleScan(rec, httptest.NewRequest(http.MethodGet, "/api/scan", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestWeb_Health(t *testing.T) {
	web, _ := newTestWeb(t, newFakeConn())

	rec := httptest.NewRecorder()
	web.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

// errConnectRefused 測試用固定錯誤
type errConnectRefused struct{}

func (errConnectRefused) Error() string { return "connect refused" }
