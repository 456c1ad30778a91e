package main

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// PollerState 輪詢器狀態
type PollerState int32

const (
	PollerStateStopped PollerState = iota
	PollerStateRunning
	PollerStateStopping
)

func (s PollerState) String() string {
	switch s {
	case PollerStateStopped:
		return "stopped"
	case PollerStateRunning:
		return "running"
	case PollerStateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// PollerStats 輪詢統計
type PollerStats struct {
	Cycles   atomic.Uint64
	Failures atomic.Uint64
}

// Poller 背景輪詢器: 以固定間隔讀取控制器並發布快照。
// 同一時間只有一個週期在執行, 停止信號於週期之間檢查。
type Poller struct {
	session  *Session
	store    *StateStore
	interval time.Duration
	logger   *zap.Logger

	state  atomic.Int32
	cancel context.CancelFunc
	done   chan struct{}

	stats PollerStats
}

// NewPoller 建立輪詢器
func NewPoller(session *Session, store *StateStore, interval time.Duration, logger *zap.Logger) *Poller {
	return &Poller{
		session:  session,
		store:    store,
		interval: interval,
		logger:   logger,
	}
}

// Start 啟動輪詢迴圈
func (p *Poller) Start(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(PollerStateStopped), int32(PollerStateRunning)) {
		return fmt.Errorf("輪詢器已經在運行中")
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.run(runCtx)

	p.logger.Info("輪詢器已啟動", zap.Duration("interval", p.interval))
	return nil
}

// Stop 停止輪詢迴圈, 等待進行中的週期結束
func (p *Poller) Stop(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(PollerStateRunning), int32(PollerStateStopping)) {
		return nil
	}

	p.cancel()

	select {
	case <-p.done:
	case <-ctx.Done():
		p.logger.Warn("等待輪詢器停止超時")
	}

	p.state.Store(int32(PollerStateStopped))
	p.logger.Info("輪詢器已停止",
		zap.Uint64("cycles", p.stats.Cycles.Load()),
		zap.Uint64("failures", p.stats.Failures.Load()),
	)
	return nil
}

// State 取得當前狀態
func (p *Poller) State() PollerState {
	return PollerState(p.state.Load())
}

// Stats 取得統計資訊
func (p *Poller) Stats() *PollerStats {
	return &p.stats
}

// run 輪詢主迴圈: 每個週期結束後睡眠剩餘間隔 (間隔減去耗時, 最低為零)
func (p *Poller) run(ctx context.Context) {
	defer close(p.done)

	for {
		if ctx.Err() != nil {
			return
		}

		started := time.Now()
		p.PollOnce()

		remaining := p.interval - time.Since(started)
		if remaining < 0 {
			remaining = 0
		}

		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// PollOnce 執行單一輪詢週期: 連線 (必要時)、讀取、解碼、發布
func (p *Poller) PollOnce() {
	now := time.Now()
	p.stats.Cycles.Add(1)

	// 斷線時每個週期只嘗試重連一次, 以輪詢間隔自然限速
	if p.session.State() != SessionConnected {
		if err := p.session.Connect(); err != nil {
			p.publishFailure(now, err)
			return
		}
	}

	regs, err := p.session.ReadHoldingRegisters(RegBlockStart, RegBlockCount)
	if err != nil {
		p.publishFailure(now, err)
		return
	}

	coils, err := p.session.ReadCoils(CoilBlockStart, CoilBlockCount)
	if err != nil {
		p.publishFailure(now, err)
		return
	}

	// 連線狀態暫存器位於獨立區塊, 部分韌體未開通會拒絕該位址,
	// 讀取失敗不影響本週期也不改變連線狀態 (值記為 0)
	var connStatus uint16
	if v, err := p.session.ReadAuxRegister(RegConnStatus); err == nil {
		connStatus = v
	} else {
		p.logger.Debug("連線狀態暫存器讀取失敗", zap.Error(err))
	}

	snap := DecodeSnapshot(regs, connStatus, now)
	p.store.Publish(snap)

	// 線圈鏡像只驗證 estop: 其餘線圈為瞬時命令輸出, 與狀態位元比對會誤報。
	// 不一致時以暫存器解碼結果為準, 僅記錄錯誤。
	if coils[CoilEStop] != snap.EStop {
		p.store.SetLastError("mirror_mismatch",
			fmt.Sprintf("estop 線圈 (%v) 與狀態位元 (%v) 不一致", coils[CoilEStop], snap.EStop))
		return
	}

	p.store.ClearLastError()
}

// publishFailure 發布斷線快照並記錄錯誤
func (p *Poller) publishFailure(at time.Time, err error) {
	p.stats.Failures.Add(1)
	p.store.Publish(DisconnectedSnapshot(at))

	kind := "unknown"
	var terr *TransportError
	if errors.As(err, &terr) {
		kind = terr.Kind.String()
	}
	p.store.SetLastError(kind, err.Error())
}
