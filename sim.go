package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tbrandon/mbserver"
	"go.uber.org/zap"
)

// SimState 模擬器狀態
type SimState int32

const (
	SimStateStopped SimState = iota
	SimStateRunning
	SimStateStopping
)

func (s SimState) String() string {
	switch s {
	case SimStateStopped:
		return "stopped"
	case SimStateRunning:
		return "running"
	case SimStateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Simulator 內建 MW2200A 控制器模擬器。
// 以 mbserver 提供 Modbus TCP 端點, 依照真實對照表回應輪詢與命令,
// 供沒有實機時的開發與整合測試使用。
type Simulator struct {
	server *mbserver.Server
	cfg    SimConfig
	logger *zap.Logger

	state  atomic.Int32
	cancel context.CancelFunc
	done   chan struct{}

	// 模擬機台內部狀態 (位置單位: 0.001mm)
	statusWord uint16
	x, y, z    int32
	spindleRPM uint16
	feedRate   uint16
	alarmCode  uint16
	program    uint16
	lotCount   uint16
	lotTarget  uint16
	lotID      uint16

	tick uint64
}

// NewSimulator 建立模擬器
func NewSimulator(cfg SimConfig, logger *zap.Logger) *Simulator {
	return &Simulator{
		cfg:       cfg,
		logger:    logger,
		program:   1001,
		lotTarget: 250,
		lotID:     42,
	}
}

// Addr 模擬器監聽位址
func (s *Simulator) Addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}

// Start 啟動模擬器
func (s *Simulator) Start(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(SimStateStopped), int32(SimStateRunning)) {
		return fmt.Errorf("模擬器已經在運行中")
	}

	s.server = mbserver.NewServer()
	s.syncRegisters()

	if err := s.server.ListenTCP(s.Addr()); err != nil {
		s.state.Store(int32(SimStateStopped))
		return fmt.Errorf("監聽 %s 失敗: %w", s.Addr(), err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.runUpdater(runCtx)

	s.logger.Info("模擬器已啟動", zap.String("addr", s.Addr()))
	return nil
}

// Stop 停止模擬器
func (s *Simulator) Stop(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(SimStateRunning), int32(SimStateStopping)) {
		return nil
	}

	s.cancel()

	select {
	case <-s.done:
	case <-ctx.Done():
		s.logger.Warn("等待模擬器停止超時")
	}

	s.server.Close()
	s.state.Store(int32(SimStateStopped))

	s.logger.Info("模擬器已停止")
	return nil
}

// State 取得當前狀態
func (s *Simulator) State() SimState {
	return SimState(s.state.Load())
}

// runUpdater 週期性套用命令線圈並推進機台模擬
func (s *Simulator) runUpdater(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.step()
		}
	}
}

// step 單一模擬週期: 先消化命令線圈, 再推進運轉狀態, 最後回寫暫存器
func (s *Simulator) step() {
	s.tick++
	s.applyCoils()

	// 批次目標可由外部以 FC 06 寫入
	s.lotTarget = s.server.HoldingRegisters[RegLotTarget]

	estop := s.statusWord&(1<<StatusBitEStop) != 0
	cycle := s.statusWord&(1<<StatusBitCycle) != 0
	hold := s.statusWord&(1<<StatusBitFeedHold) != 0

	if cycle && !hold && !estop {
		// 運轉中: 軸緩慢移動, 每 20 個週期完成一件
		s.x += 250
		s.y += 125
		s.z -= 50
		s.feedRate = 1200
		if s.tick%20 == 0 {
			s.lotCount++
		}
	} else {
		s.feedRate = 0
	}

	s.syncRegisters()
}

// applyCoils 消化命令線圈 (mbserver 每個線圈佔一個 byte)
func (s *Simulator) applyCoils() {
	coils := s.server.Coils

	if coils[CoilEStop] != 0 {
		// estop 為閂鎖狀態, 線圈保持設置以鏡像狀態位元
		s.statusWord |= 1 << StatusBitEStop
		s.statusWord &^= 1 << StatusBitCycle
		s.statusWord &^= 1 << StatusBitSpindle
		s.spindleRPM = 0
	} else {
		s.statusWord &^= 1 << StatusBitEStop
	}

	if coils[CoilReset] != 0 {
		s.statusWord &^= 1 << StatusBitAlarm
		s.alarmCode = 0
		coils[CoilReset] = 0
		coils[CoilEStop] = 0
		s.statusWord &^= 1 << StatusBitEStop
	}

	if coils[CoilCycleStart] != 0 {
		if s.statusWord&(1<<StatusBitEStop) == 0 && s.statusWord&(1<<StatusBitAlarm) == 0 {
			s.statusWord |= 1 << StatusBitCycle
			s.statusWord &^= 1 << StatusBitFeedHold
		}
		coils[CoilCycleStart] = 0
	}

	if coils[CoilFeedHold] != 0 {
		if s.statusWord&(1<<StatusBitCycle) != 0 {
			s.statusWord |= 1 << StatusBitFeedHold
		}
		coils[CoilFeedHold] = 0
	}

	if coils[CoilSpindleCW] != 0 || coils[CoilSpindleCCW] != 0 {
		if s.statusWord&(1<<StatusBitEStop) == 0 {
			s.statusWord |= 1 << StatusBitSpindle
			s.spindleRPM = 3000
		}
		coils[CoilSpindleCW] = 0
		coils[CoilSpindleCCW] = 0
	}

	if coils[CoilCoolant] != 0 {
		coils[CoilCoolant] = 0
	}

	if coils[CoilLotReset] != 0 {
		s.lotCount = 0
		coils[CoilLotReset] = 0
	}
}

// syncRegisters 將模擬狀態回寫到 mbserver 保持暫存器
func (s *Simulator) syncRegisters() {
	regs := s.server.HoldingRegisters

	regs[RegStatus] = s.statusWord
	regs[RegXLo], regs[RegXHi] = EncodeSigned32(s.x)
	regs[RegYLo], regs[RegYHi] = EncodeSigned32(s.y)
	regs[RegZLo], regs[RegZHi] = EncodeSigned32(s.z)
	regs[RegSpindle] = s.spindleRPM
	regs[RegFeed] = s.feedRate
	regs[RegAlarm] = s.alarmCode
	regs[RegProgram] = s.program
	regs[RegLotCount] = s.lotCount
	regs[RegLotTarget] = s.lotTarget
	regs[RegLotID] = s.lotID

	// OpenPortResultAddr: 1 = Modbus TCP 伺服器已開啟
	regs[RegConnStatus] = 1
}
