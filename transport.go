package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/goburrow/modbus"
	"go.uber.org/zap"
)

// SessionState 傳輸工作階段狀態
type SessionState int32

const (
	SessionDisconnected SessionState = iota
	SessionConnected
	SessionReconnecting
)

func (s SessionState) String() string {
	switch s {
	case SessionDisconnected:
		return "disconnected"
	case SessionConnected:
		return "connected"
	case SessionReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// TransportErrorKind 傳輸錯誤分類
type TransportErrorKind int

const (
	ErrKindConnectionRefused TransportErrorKind = iota
	ErrKindTimeout
	ErrKindNetworkUnreachable
	ErrKindProtocolError
	ErrKindNotConnected
)

func (k TransportErrorKind) String() string {
	switch k {
	case ErrKindConnectionRefused:
		return "connection_refused"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindNetworkUnreachable:
		return "network_unreachable"
	case ErrKindProtocolError:
		return "protocol_error"
	case ErrKindNotConnected:
		return "not_connected"
	default:
		return "unknown"
	}
}

// TransportError 傳輸層錯誤
type TransportError struct {
	Kind TransportErrorKind
	Op   string
	Err  error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// wireConn 連線層介面, 正式環境由 goburrow TCP client 實作, 測試注入假連線
type wireConn interface {
	Connect() error
	Close() error
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	ReadCoils(address, quantity uint16) ([]byte, error)
	WriteSingleCoil(address, value uint16) ([]byte, error)
	WriteSingleRegister(address, value uint16) ([]byte, error)
}

// tcpConn goburrow Modbus TCP 連線
type tcpConn struct {
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

func newTCPConn(cfg ControllerConfig) *tcpConn {
	handler := modbus.NewTCPClientHandler(fmt.Sprintf("%s:%d", cfg.Host, cfg.Port))
	handler.Timeout = cfg.IOTimeout
	handler.SlaveId = cfg.UnitID
	return &tcpConn{
		handler: handler,
		client:  modbus.NewClient(handler),
	}
}

func (c *tcpConn) Connect() error { return c.handler.Connect() }
func (c *tcpConn) Close() error   { return c.handler.Close() }

func (c *tcpConn) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	return c.client.ReadHoldingRegisters(address, quantity)
}

func (c *tcpConn) ReadCoils(address, quantity uint16) ([]byte, error) {
	return c.client.ReadCoils(address, quantity)
}

func (c *tcpConn) WriteSingleCoil(address, value uint16) ([]byte, error) {
	return c.client.WriteSingleCoil(address, value)
}

func (c *tcpConn) WriteSingleRegister(address, value uint16) ([]byte, error) {
	return c.client.WriteSingleRegister(address, value)
}

// Session 管理與控制器的單一 TCP 連線。
// 所有線上操作以同一把鎖序列化, 輪詢讀取與命令寫入不會在線路上交錯。
type Session struct {
	mu sync.Mutex

	conn  wireConn
	state atomic.Int32

	cfg    ControllerConfig
	logger *zap.Logger
}

// SessionOption Session 配置選項
type SessionOption func(*Session)

// WithSessionLogger 設定日誌
func WithSessionLogger(logger *zap.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithWireConn 注入連線層實作 (測試用)
func WithWireConn(conn wireConn) SessionOption {
	return func(s *Session) {
		s.conn = conn
	}
}

// NewSession 建立傳輸工作階段, 尚未連線
func NewSession(cfg ControllerConfig, opts ...SessionOption) *Session {
	s := &Session{cfg: cfg}

	for _, opt := range opts {
		opt(s)
	}

	if s.conn == nil {
		s.conn = newTCPConn(cfg)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	return s
}

// State 取得當前連線狀態
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// Connect 建立 TCP 連線, 已連線時為 no-op
func (s *Session) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() == SessionConnected {
		return nil
	}

	s.state.Store(int32(SessionReconnecting))

	if err := s.conn.Connect(); err != nil {
		s.state.Store(int32(SessionDisconnected))
		terr := &TransportError{Kind: classifyNetError(err), Op: "connect", Err: err}
		s.logger.Warn("連線控制器失敗",
			zap.String("host", s.cfg.Host),
			zap.Int("port", s.cfg.Port),
			zap.Error(err),
		)
		return terr
	}

	s.state.Store(int32(SessionConnected))
	s.logger.Info("已連線控制器",
		zap.String("host", s.cfg.Host),
		zap.Int("port", s.cfg.Port),
		zap.Uint8("unit_id", s.cfg.UnitID),
	)
	return nil
}

// ReadHoldingRegisters 讀取保持暫存器 (FC 03)
func (s *Session) ReadHoldingRegisters(address, quantity uint16) ([]uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() != SessionConnected {
		return nil, &TransportError{Kind: ErrKindNotConnected, Op: "read_holding_registers"}
	}

	data, err := s.conn.ReadHoldingRegisters(address, quantity)
	if err != nil {
		return nil, s.failLocked("read_holding_registers", err)
	}

	if len(data) != int(quantity)*2 {
		err := fmt.Errorf("回應長度異常: 預期 %d bytes, 收到 %d", int(quantity)*2, len(data))
		return nil, s.failLocked("read_holding_registers", err)
	}

	return BytesToRegisters(data), nil
}

// ReadCoils 讀取線圈 (FC 01)
func (s *Session) ReadCoils(address, quantity uint16) ([]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() != SessionConnected {
		return nil, &TransportError{Kind: ErrKindNotConnected, Op: "read_coils"}
	}

	data, err := s.conn.ReadCoils(address, quantity)
	if err != nil {
		return nil, s.failLocked("read_coils", err)
	}

	if len(data) < (int(quantity)+7)/8 {
		err := fmt.Errorf("回應長度異常: 預期 %d bytes, 收到 %d", (int(quantity)+7)/8, len(data))
		return nil, s.failLocked("read_coils", err)
	}

	return BytesToCoils(data, int(quantity)), nil
}

// ReadAuxRegister 讀取主區塊以外的單一保持暫存器 (FC 03)。
// 部分韌體未開通的位址會回異常碼, 失敗不改變連線狀態, 由呼叫端決定後續。
func (s *Session) ReadAuxRegister(address uint16) (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() != SessionConnected {
		return 0, &TransportError{Kind: ErrKindNotConnected, Op: "read_aux_register"}
	}

	data, err := s.conn.ReadHoldingRegisters(address, 1)
	if err != nil {
		return 0, &TransportError{Kind: classifyIOError(err), Op: "read_aux_register", Err: err}
	}

	if len(data) != 2 {
		return 0, &TransportError{Kind: ErrKindProtocolError, Op: "read_aux_register"}
	}

	return BytesToRegisters(data)[0], nil
}

// WriteCoil 寫入單一線圈 (FC 05), 控制器確認後即不可逆
func (s *Session) WriteCoil(address uint16, value bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() != SessionConnected {
		return &TransportError{Kind: ErrKindNotConnected, Op: "write_coil"}
	}

	var raw uint16
	if value {
		raw = 0xFF00
	}

	if _, err := s.conn.WriteSingleCoil(address, raw); err != nil {
		return s.failLocked("write_coil", err)
	}

	return nil
}

// WriteRegister 寫入單一保持暫存器 (FC 06)
func (s *Session) WriteRegister(address, value uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() != SessionConnected {
		return &TransportError{Kind: ErrKindNotConnected, Op: "write_register"}
	}

	if _, err := s.conn.WriteSingleRegister(address, value); err != nil {
		return s.failLocked("write_register", err)
	}

	return nil
}

// Close 關閉連線, 可重複呼叫
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Store(int32(SessionDisconnected))
	return s.conn.Close()
}

// failLocked 操作失敗時標記斷線並分類錯誤, 呼叫端須持有鎖
func (s *Session) failLocked(op string, err error) error {
	s.state.Store(int32(SessionDisconnected))

	terr := &TransportError{Kind: classifyIOError(err), Op: op, Err: err}
	s.logger.Warn("傳輸操作失敗",
		zap.String("op", op),
		zap.String("kind", terr.Kind.String()),
		zap.Error(err),
	)
	return terr
}

// classifyNetError 分類連線階段的錯誤
func classifyNetError(err error) TransportErrorKind {
	switch {
	case isTimeout(err):
		return ErrKindTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		return ErrKindConnectionRefused
	case errors.Is(err, syscall.ENETUNREACH), errors.Is(err, syscall.EHOSTUNREACH):
		return ErrKindNetworkUnreachable
	default:
		return ErrKindConnectionRefused
	}
}

// classifyIOError 分類讀寫階段的錯誤, 控制器異常回應視為協議錯誤
func classifyIOError(err error) TransportErrorKind {
	var mbErr *modbus.ModbusError
	switch {
	case errors.As(err, &mbErr):
		return ErrKindProtocolError
	case isTimeout(err):
		return ErrKindTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		return ErrKindConnectionRefused
	case errors.Is(err, syscall.ENETUNREACH), errors.Is(err, syscall.EHOSTUNREACH):
		return ErrKindNetworkUnreachable
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		return ErrKindNetworkUnreachable
	default:
		return ErrKindProtocolError
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
