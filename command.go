package main

import (
	"fmt"

	"go.uber.org/zap"
)

// CommandErrorKind 命令錯誤分類
type CommandErrorKind int

const (
	ErrCmdUnknownCommand CommandErrorKind = iota
	ErrCmdInvalidArgument
	ErrCmdTransportFailure
)

func (k CommandErrorKind) String() string {
	switch k {
	case ErrCmdUnknownCommand:
		return "unknown_command"
	case ErrCmdInvalidArgument:
		return "invalid_argument"
	case ErrCmdTransportFailure:
		return "transport_failure"
	default:
		return "unknown"
	}
}

// CommandError 命令派發錯誤
type CommandError struct {
	Kind    CommandErrorKind
	Message string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// CommandRequest 操作命令請求, 未指定 value 時預設寫入 true
type CommandRequest struct {
	Command string `json:"command"`
	Value   *bool  `json:"value,omitempty"`
}

// Dispatcher 將操作命令轉譯為線圈寫入。
// 寫入絕不自動重試: 主軸或 estop 之類的命令重送可能造成危險,
// 失敗一律回報呼叫端。
type Dispatcher struct {
	session *Session
	logger  *zap.Logger
}

// NewDispatcher 建立命令派發器
func NewDispatcher(session *Session, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{session: session, logger: logger}
}

// Dispatch 驗證並執行命令, 同步返回結果, 不等待下個輪詢週期確認
func (d *Dispatcher) Dispatch(req CommandRequest) error {
	cmd := ParseCommand(req.Command)
	if cmd == CommandUnknown {
		return &CommandError{
			Kind:    ErrCmdUnknownCommand,
			Message: fmt.Sprintf("未知命令 %q", req.Command),
		}
	}

	value := true
	if req.Value != nil {
		value = *req.Value
	}

	// estop 為安全命令, 斷線時立即嘗試重連而不是默默丟棄;
	// 重連仍失敗則如實回報
	if cmd == CommandEStop && d.session.State() != SessionConnected {
		if err := d.session.Connect(); err != nil {
			return &CommandError{
				Kind:    ErrCmdTransportFailure,
				Message: "estop 重連失敗",
				Err:     err,
			}
		}
	}

	addr, _ := cmd.Coil()
	if err := d.session.WriteCoil(addr, value); err != nil {
		return &CommandError{
			Kind:    ErrCmdTransportFailure,
			Message: fmt.Sprintf("命令 %s 寫入失敗", cmd),
			Err:     err,
		}
	}

	d.logger.Info("已派發命令",
		zap.String("command", cmd.String()),
		zap.Uint16("coil", addr),
		zap.Bool("value", value),
	)
	return nil
}

// SetLotTarget 寫入批次目標保持暫存器
func (d *Dispatcher) SetLotTarget(target int) error {
	if target < 0 {
		return &CommandError{
			Kind:    ErrCmdInvalidArgument,
			Message: fmt.Sprintf("批次目標不可為負數: %d", target),
		}
	}
	if target > 0xFFFF {
		return &CommandError{
			Kind:    ErrCmdInvalidArgument,
			Message: fmt.Sprintf("批次目標超出 16 位元範圍: %d", target),
		}
	}

	if err := d.session.WriteRegister(RegLotTarget, uint16(target)); err != nil {
		return &CommandError{
			Kind:    ErrCmdTransportFailure,
			Message: "批次目標寫入失敗",
			Err:     err,
		}
	}

	d.logger.Info("已設定批次目標", zap.Int("target", target))
	return nil
}
