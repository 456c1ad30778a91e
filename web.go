package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// WebServer 提供 JSON API, 僅透過 Monitor 的查詢/命令介面存取核心
type WebServer struct {
	monitor *Monitor
	logger  *zap.Logger
	srv     *http.Server
}

// NewWebServer 建立 Web 伺服器
func NewWebServer(monitor *Monitor, logger *zap.Logger) *WebServer {
	return &WebServer{monitor: monitor, logger: logger}
}

// Start 啟動 HTTP 伺服器
func (w *WebServer) Start(host string, port int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", w.handleStatus)
	mux.HandleFunc("/api/command", w.handleCommand)
	mux.HandleFunc("/api/lot/set_target", w.handleSetLotTarget)
	mux.HandleFunc("/api/diagnostics", w.handleDiagnostics)
	mux.HandleFunc("/api/scan", w.handleScan)
	mux.HandleFunc("/health", w.handleHealth)

	addr := fmt.Sprintf("%s:%d", host, port)
	w.srv = &http.Server{Addr: addr, Handler: mux}

	w.logger.Info("啟動 Web 伺服器", zap.String("addr", addr))

	go func() {
		if err := w.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			w.logger.Error("Web 伺服器錯誤", zap.Error(err))
		}
	}()

	return nil
}

// Stop 停止 HTTP 伺服器
func (w *WebServer) Stop(ctx context.Context) error {
	if w.srv == nil {
		return nil
	}
	return w.srv.Shutdown(ctx)
}

// statusResponse /api/status 回應: 快照加上計算欄位
type statusResponse struct {
	*Snapshot
	LotProgressPct float64 `json:"lot_progress_pct"`
	LastError      string  `json:"last_error"`
}

// handleStatus 返回當前機台狀態
func (w *WebServer) handleStatus(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(rw, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	snap := w.monitor.GetSnapshot()
	resp := statusResponse{
		Snapshot:       snap,
		LotProgressPct: snap.LotProgress(),
	}
	if errInfo := w.monitor.GetDiagnostics().LastError; errInfo != nil {
		resp.LastError = errInfo.Message
	}

	writeJSON(rw, http.StatusOK, resp)
}

// handleCommand 派發操作命令
// Body: { "command": "<name>", "value": true|false }
func (w *WebServer) handleCommand(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(rw, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(rw, http.StatusBadRequest, "無效的請求內容")
		return
	}

	if err := w.monitor.Dispatch(req); err != nil {
		w.writeCommandError(rw, err)
		return
	}

	value := true
	if req.Value != nil {
		value = *req.Value
	}
	writeJSON(rw, http.StatusOK, map[string]any{
		"ok":      true,
		"command": req.Command,
		"value":   value,
	})
}

// handleSetLotTarget 設定批次目標
// Body: { "target": <int> }
func (w *WebServer) handleSetLotTarget(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(rw, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		Target *int `json:"target"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Target == nil {
		writeError(rw, http.StatusBadRequest, "'target' 必須為非負整數")
		return
	}

	if err := w.monitor.SetLotTarget(*body.Target); err != nil {
		w.writeCommandError(rw, err)
		return
	}

	writeJSON(rw, http.StatusOK, map[string]any{
		"ok":         true,
		"lot_target": *body.Target,
	})
}

// handleDiagnostics 返回診斷資訊
func (w *WebServer) handleDiagnostics(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(rw, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	writeJSON(rw, http.StatusOK, w.monitor.GetDiagnostics())
}

// handleScan 即時讀取原始暫存器與線圈 (排障用, 可能阻塞到 I/O 超時)
func (w *WebServer) handleScan(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(rw, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	scan, err := w.monitor.ScanRaw()
	if err != nil {
		writeError(rw, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(rw, http.StatusOK, scan)
}

// handleHealth 健康檢查
func (w *WebServer) handleHealth(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]string{"status": "healthy"})
}

// writeCommandError 將命令錯誤對應到 HTTP 狀態碼
func (w *WebServer) writeCommandError(rw http.ResponseWriter, err error) {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		switch cmdErr.Kind {
		case ErrCmdUnknownCommand, ErrCmdInvalidArgument:
			writeError(rw, http.StatusBadRequest, cmdErr.Error())
		default:
			writeError(rw, http.StatusBadGateway, cmdErr.Error())
		}
		return
	}
	writeError(rw, http.StatusInternalServerError, err.Error())
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, status int, msg string) {
	writeJSON(rw, status, map[string]any{"ok": false, "error": msg})
}
