package main

// LNC MW2200A Modbus TCP 位址對照表 (0-based PDU 位址)
//
// 保持暫存器:
//   R[0]     機台狀態字 (位元旗標)
//   R[1..2]  X 軸位置 (signed 32-bit, lo/hi, ×0.001 mm)
//   R[3..4]  Y 軸位置
//   R[5..6]  Z 軸位置
//   R[7]     主軸轉速 (RPM)
//   R[8]     進給速率 (mm/min)
//   R[9]     警報代碼
//   R[10]    程式編號
//   R[11]    批次計數
//   R[12]    批次目標
//   R[13]    批次編號
//   R[5000]  連線狀態 (OpenPortResultAddr 5001 為 1-based, PDU 減 1)
const (
	RegStatus    = 0
	RegXLo       = 1
	RegXHi       = 2
	RegYLo       = 3
	RegYHi       = 4
	RegZLo       = 5
	RegZHi       = 6
	RegSpindle   = 7
	RegFeed      = 8
	RegAlarm     = 9
	RegProgram   = 10
	RegLotCount  = 11
	RegLotTarget = 12
	RegLotID     = 13

	RegConnStatus = 5000

	// 主暫存器區塊: R[0] 起共 14 個
	RegBlockStart = RegStatus
	RegBlockCount = 14
)

// 線圈位址 (離散輸出, 0-based)
const (
	CoilCycleStart = 0
	CoilFeedHold   = 1
	CoilReset      = 2
	CoilSpindleCW  = 3
	CoilSpindleCCW = 4
	CoilCoolant    = 5
	CoilEStop      = 6
	CoilLotReset   = 7

	CoilBlockStart = CoilCycleStart
	CoilBlockCount = 8
)

// 狀態字位元定義
const (
	StatusBitEStop = iota
	StatusBitAlarm
	StatusBitCycle
	StatusBitFeedHold
	StatusBitHoming
	StatusBitSpindle
	StatusBitPaused
	StatusBitDoorOpen
)

// Command 操作命令
type Command int

const (
	CommandUnknown Command = iota
	CommandCycleStart
	CommandFeedHold
	CommandReset
	CommandSpindleCW
	CommandSpindleCCW
	CommandCoolant
	CommandEStop
	CommandLotReset
)

func (c Command) String() string {
	switch c {
	case CommandCycleStart:
		return "cycle_start"
	case CommandFeedHold:
		return "feed_hold"
	case CommandReset:
		return "reset"
	case CommandSpindleCW:
		return "spindle_cw"
	case CommandSpindleCCW:
		return "spindle_ccw"
	case CommandCoolant:
		return "coolant"
	case CommandEStop:
		return "estop"
	case CommandLotReset:
		return "lot_reset"
	default:
		return "unknown"
	}
}

// ParseCommand 解析命令名稱, 未知名稱返回 CommandUnknown
func ParseCommand(s string) Command {
	switch s {
	case "cycle_start":
		return CommandCycleStart
	case "feed_hold":
		return CommandFeedHold
	case "reset":
		return CommandReset
	case "spindle_cw":
		return CommandSpindleCW
	case "spindle_ccw":
		return CommandSpindleCCW
	case "coolant":
		return CommandCoolant
	case "estop":
		return CommandEStop
	case "lot_reset":
		return CommandLotReset
	default:
		return CommandUnknown
	}
}

// Coil 返回命令對應的線圈位址
func (c Command) Coil() (uint16, bool) {
	switch c {
	case CommandCycleStart:
		return CoilCycleStart, true
	case CommandFeedHold:
		return CoilFeedHold, true
	case CommandReset:
		return CoilReset, true
	case CommandSpindleCW:
		return CoilSpindleCW, true
	case CommandSpindleCCW:
		return CoilSpindleCCW, true
	case CommandCoolant:
		return CoilCoolant, true
	case CommandEStop:
		return CoilEStop, true
	case CommandLotReset:
		return CoilLotReset, true
	default:
		return 0, false
	}
}

// Commands 列出全部可用命令
func Commands() []Command {
	return []Command{
		CommandCycleStart,
		CommandFeedHold,
		CommandReset,
		CommandSpindleCW,
		CommandSpindleCCW,
		CommandCoolant,
		CommandEStop,
		CommandLotReset,
	}
}

// RegisterMapEntry 暫存器對照表項目 (診斷介面用)
type RegisterMapEntry struct {
	Address uint16 `json:"address"`
	Name    string `json:"name"`
	Words   int    `json:"words"`
	Decode  string `json:"decode"`
	Unit    string `json:"unit,omitempty"`
}

// CoilMapEntry 線圈對照表項目 (診斷介面用)
type CoilMapEntry struct {
	Address uint16 `json:"address"`
	Command string `json:"command"`
}

// RegisterMap 返回靜態暫存器對照表
func RegisterMap() []RegisterMapEntry {
	return []RegisterMapEntry{
		{Address: RegStatus, Name: "status_word", Words: 1, Decode: "bits"},
		{Address: RegXLo, Name: "x_pos", Words: 2, Decode: "int32/1000", Unit: "mm"},
		{Address: RegYLo, Name: "y_pos", Words: 2, Decode: "int32/1000", Unit: "mm"},
		{Address: RegZLo, Name: "z_pos", Words: 2, Decode: "int32/1000", Unit: "mm"},
		{Address: RegSpindle, Name: "spindle_rpm", Words: 1, Decode: "uint16", Unit: "rpm"},
		{Address: RegFeed, Name: "feed_rate", Words: 1, Decode: "uint16", Unit: "mm/min"},
		{Address: RegAlarm, Name: "alarm_code", Words: 1, Decode: "uint16"},
		{Address: RegProgram, Name: "program_number", Words: 1, Decode: "uint16"},
		{Address: RegLotCount, Name: "lot_count", Words: 1, Decode: "uint16"},
		{Address: RegLotTarget, Name: "lot_target", Words: 1, Decode: "uint16"},
		{Address: RegLotID, Name: "lot_id", Words: 1, Decode: "uint16"},
		{Address: RegConnStatus, Name: "conn_status", Words: 1, Decode: "uint16"},
	}
}

// CoilMap 返回靜態線圈對照表
func CoilMap() []CoilMapEntry {
	entries := make([]CoilMapEntry, 0, CoilBlockCount)
	for _, cmd := range Commands() {
		addr, _ := cmd.Coil()
		entries = append(entries, CoilMapEntry{Address: addr, Command: cmd.String()})
	}
	return entries
}
