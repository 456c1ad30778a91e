package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tbrandon/mbserver"
	"go.uber.org/zap"
)

// newBenchSimulator 建立不監聽網路的模擬器, 直接驅動 step
func newBenchSimulator() *Simulator {
	sim := NewSimulator(DefaultConfig().Sim, zap.NewNop())
	sim.server = mbserver.NewServer()
	sim.syncRegisters()
	return sim
}

func TestSimulator_InitialRegisters(t *testing.T) {
	sim := newBenchSimulator()

	regs := sim.server.HoldingRegisters
	assert.Equal(t, uint16(1001), regs[RegProgram])
	assert.Equal(t, uint16(250), regs[RegLotTarget])
	assert.Equal(t, uint16(42), regs[RegLotID])
	assert.Equal(t, uint16(1), regs[RegConnStatus])
	assert.Zero(t, regs[RegStatus])
}

func TestSimulator_CycleStart(t *testing.T) {
	sim := newBenchSimulator()

	sim.server.Coils[CoilCycleStart] = 1
	sim.step()

	regs := sim.server.HoldingRegisters
	assert.NotZero(t, regs[RegStatus]&(1<<StatusBitCycle), "cycle 位元應被設置")
	assert.Zero(t, sim.server.Coils[CoilCycleStart], "命令線圈應為瞬時信號")

	// 運轉中軸會移動, 每 20 個週期完成一件
	startX := DecodeSigned32(regs[RegXLo], regs[RegXHi])
	for i := 0; i < 40; i++ {
		sim.step()
	}
	regs = sim.server.HoldingRegisters
	assert.Greater(t, DecodeSigned32(regs[RegXLo], regs[RegXHi]), startX)
	assert.GreaterOrEqual(t, regs[RegLotCount], uint16(2))
}

func TestSimulator_FeedHoldPausesMotion(t *testing.T) {
	sim := newBenchSimulator()

	sim.server.Coils[CoilCycleStart] = 1
	sim.step()

	sim.server.Coils[CoilFeedHold] = 1
	sim.step()

	regs := sim.server.HoldingRegisters
	require.NotZero(t, regs[RegStatus]&(1<<StatusBitFeedHold))

	x := DecodeSigned32(regs[RegXLo], regs[RegXHi])
	sim.step()
	regs = sim.server.HoldingRegisters
	assert.Equal(t, x, DecodeSigned32(regs[RegXLo], regs[RegXHi]), "feed hold 時軸不可移動")
	assert.Zero(t, regs[RegFeed])
}

func TestSimulator_EStopLatchesAndMirrors(t *testing.T) {
	sim := newBenchSimulator()

	// 先讓主軸運轉
	sim.server.Coils[CoilSpindleCW] = 1
	sim.step()
	require.NotZero(t, sim.server.HoldingRegisters[RegStatus]&(1<<StatusBitSpindle))

	sim.server.Coils[CoilEStop] = 1
	sim.step()

	regs := sim.server.HoldingRegisters
	assert.NotZero(t, regs[RegStatus]&(1<<StatusBitEStop))
	assert.Zero(t, regs[RegStatus]&(1<<StatusBitSpindle))
	assert.Zero(t, regs[RegSpindle])

	// estop 線圈保持設置以鏡像狀態位元
	assert.Equal(t, byte(1), sim.server.Coils[CoilEStop])

	// reset 解除 estop
	sim.server.Coils[CoilReset] = 1
	sim.step()
	assert.Zero(t, sim.server.HoldingRegisters[RegStatus]&(1<<StatusBitEStop))
	assert.Zero(t, sim.server.Coils[CoilEStop])
}

func TestSimulator_LotReset(t *testing.T) {
	sim := newBenchSimulator()

	sim.lotCount = 99
	sim.server.Coils[CoilLotReset] = 1
	sim.step()

	assert.Zero(t, sim.server.HoldingRegisters[RegLotCount])
}

func TestSimulator_ExternalLotTargetWrite(t *testing.T) {
	sim := newBenchSimulator()

	// 外部以 FC 06 寫入批次目標後, 模擬器不可覆蓋
	sim.server.HoldingRegisters[RegLotTarget] = 500
	sim.step()

	assert.Equal(t, uint16(500), sim.server.HoldingRegisters[RegLotTarget])
}
