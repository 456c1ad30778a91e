package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// MonitorState 監控服務狀態
type MonitorState int32

const (
	MonitorStateStopped MonitorState = iota
	MonitorStateStarting
	MonitorStateRunning
	MonitorStateStopping
)

func (s MonitorState) String() string {
	switch s {
	case MonitorStateStopped:
		return "stopped"
	case MonitorStateStarting:
		return "starting"
	case MonitorStateRunning:
		return "running"
	case MonitorStateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Monitor 監控引擎: 擁有傳輸工作階段、輪詢器、狀態儲存與命令派發器,
// 對外提供查詢/命令介面 (HTTP 層與 CLI 只透過這組介面存取核心)。
type Monitor struct {
	config *Config

	session    *Session
	store      *StateStore
	poller     *Poller
	dispatcher *Dispatcher

	state     atomic.Int32
	startTime time.Time

	logger *zap.Logger
}

// MonitorOption Monitor 配置選項
type MonitorOption func(*Monitor)

// WithMonitorConn 注入連線層實作 (測試用)
func WithMonitorConn(conn wireConn) MonitorOption {
	return func(m *Monitor) {
		m.session = NewSession(m.config.Controller,
			WithSessionLogger(m.logger.Named("session")),
			WithWireConn(conn),
		)
	}
}

// NewMonitor 建立監控引擎
func NewMonitor(config *Config, logger *zap.Logger, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		config: config,
		store:  NewStateStore(),
		logger: logger,
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.session == nil {
		m.session = NewSession(config.Controller, WithSessionLogger(logger.Named("session")))
	}

	m.poller = NewPoller(m.session, m.store, config.Controller.PollInterval, logger.Named("poller"))
	m.dispatcher = NewDispatcher(m.session, logger.Named("dispatcher"))

	return m
}

// Start 啟動監控引擎
func (m *Monitor) Start(ctx context.Context) error {
	if !m.state.CompareAndSwap(int32(MonitorStateStopped), int32(MonitorStateStarting)) {
		return fmt.Errorf("監控引擎已經在運行中")
	}

	m.startTime = time.Now()
	m.logger.Info("正在啟動監控引擎",
		zap.String("host", m.config.Controller.Host),
		zap.Int("port", m.config.Controller.Port),
		zap.Uint8("unit_id", m.config.Controller.UnitID),
		zap.Duration("poll_interval", m.config.Controller.PollInterval),
	)

	if err := m.poller.Start(ctx); err != nil {
		m.state.Store(int32(MonitorStateStopped))
		return fmt.Errorf("啟動輪詢器失敗: %w", err)
	}

	m.state.Store(int32(MonitorStateRunning))
	return nil
}

// Stop 停止監控引擎: 先停輪詢器再關閉連線, 避免在寫入途中切斷
func (m *Monitor) Stop(ctx context.Context) error {
	if !m.state.CompareAndSwap(int32(MonitorStateRunning), int32(MonitorStateStopping)) {
		return nil
	}

	if err := m.poller.Stop(ctx); err != nil {
		m.logger.Warn("停止輪詢器失敗", zap.Error(err))
	}

	if err := m.session.Close(); err != nil {
		m.logger.Warn("關閉連線失敗", zap.Error(err))
	}

	m.state.Store(int32(MonitorStateStopped))
	m.logger.Info("監控引擎已停止", zap.Duration("uptime", time.Since(m.startTime)))
	return nil
}

// State 取得引擎狀態
func (m *Monitor) State() MonitorState {
	return MonitorState(m.state.Load())
}

// GetSnapshot 返回最新快照, 不會因 I/O 阻塞
func (m *Monitor) GetSnapshot() *Snapshot {
	return m.store.Current()
}

// Connect 立即建立控制器連線 (單次命令的 CLI 路徑使用, 輪詢器自身會重連)
func (m *Monitor) Connect() error {
	return m.session.Connect()
}

// Dispatch 派發操作命令
func (m *Monitor) Dispatch(req CommandRequest) error {
	return m.dispatcher.Dispatch(req)
}

// SetLotTarget 設定批次目標
func (m *Monitor) SetLotTarget(target int) error {
	return m.dispatcher.SetLotTarget(target)
}

// Diagnostics 診斷資訊
type Diagnostics struct {
	Config         *Config            `json:"config"`
	RegisterMap    []RegisterMapEntry `json:"register_map"`
	CoilMap        []CoilMapEntry     `json:"coil_map"`
	LastError      *ErrorInfo         `json:"last_error"`
	TransportState string             `json:"transport_state"`
	PollerState    string             `json:"poller_state"`
	PollCycles     uint64             `json:"poll_cycles"`
	PollFailures   uint64             `json:"poll_failures"`
	Uptime         string             `json:"uptime"`
}

// GetDiagnostics 返回配置、對照表與傳輸狀態
func (m *Monitor) GetDiagnostics() Diagnostics {
	return Diagnostics{
		Config:         m.config,
		RegisterMap:    RegisterMap(),
		CoilMap:        CoilMap(),
		LastError:      m.store.LastError(),
		TransportState: m.session.State().String(),
		PollerState:    m.poller.State().String(),
		PollCycles:     m.poller.Stats().Cycles.Load(),
		PollFailures:   m.poller.Stats().Failures.Load(),
		Uptime:         time.Since(m.startTime).String(),
	}
}

// RawScan 即時讀取結果 (繞過快照快取)
type RawScan struct {
	Registers []uint16 `json:"registers"`
	Coils     []bool   `json:"coils"`
}

// ScanRaw 立即對控制器執行一次讀取, 供排障使用。
// 可能阻塞到 I/O 超時, 也可能失敗。
func (m *Monitor) ScanRaw() (*RawScan, error) {
	if m.session.State() != SessionConnected {
		if err := m.session.Connect(); err != nil {
			return nil, err
		}
	}

	regs, err := m.session.ReadHoldingRegisters(RegBlockStart, RegBlockCount)
	if err != nil {
		return nil, err
	}

	coils, err := m.session.ReadCoils(CoilBlockStart, CoilBlockCount)
	if err != nil {
		return nil, err
	}

	return &RawScan{Registers: regs, Coils: coils}, nil
}
