package main

import "time"

// Snapshot 一次輪詢週期產出的機台狀態快照。
// 發布後不可變更, 每個週期產生全新物件。
type Snapshot struct {
	Connected  bool      `json:"connected"`
	Timestamp  time.Time `json:"last_update"`
	StatusWord uint16    `json:"status_word"`

	// 狀態旗標內嵌展開, JSON 欄位與狀態字位元同層
	StatusFlags

	XPos       float64 `json:"x_pos"` // mm
	YPos       float64 `json:"y_pos"`
	ZPos       float64 `json:"z_pos"`
	SpindleRPM uint16  `json:"spindle_rpm"`
	FeedRate   uint16  `json:"feed_rate"` // mm/min

	AlarmCode     uint16 `json:"alarm_code"`
	ProgramNumber uint16 `json:"program_number"`

	LotCount  uint16 `json:"lot_count"`
	LotTarget uint16 `json:"lot_target"`
	LotID     uint16 `json:"lot_id"`

	ConnStatus uint16 `json:"conn_status"`
}

// LotProgress 批次完成百分比
func (s *Snapshot) LotProgress() float64 {
	return DecodeLotProgress(s.LotCount, s.LotTarget)
}

// DecodeSnapshot 由主暫存器區塊 (R[0..13]) 解碼出快照。
// regs 長度不足視為呼叫端錯誤, 由傳輸層以 ProtocolError 擋下。
func DecodeSnapshot(regs []uint16, connStatus uint16, at time.Time) *Snapshot {
	return &Snapshot{
		Connected:     true,
		Timestamp:     at,
		StatusWord:    regs[RegStatus],
		StatusFlags:   DecodeStatusWord(regs[RegStatus]),
		XPos:          ScalePosition(DecodeSigned32(regs[RegXLo], regs[RegXHi])),
		YPos:          ScalePosition(DecodeSigned32(regs[RegYLo], regs[RegYHi])),
		ZPos:          ScalePosition(DecodeSigned32(regs[RegZLo], regs[RegZHi])),
		SpindleRPM:    regs[RegSpindle],
		FeedRate:      regs[RegFeed],
		AlarmCode:     regs[RegAlarm],
		ProgramNumber: regs[RegProgram],
		LotCount:      regs[RegLotCount],
		LotTarget:     regs[RegLotTarget],
		LotID:         regs[RegLotID],
		ConnStatus:    connStatus,
	}
}

// DisconnectedSnapshot 斷線時發布的空快照
func DisconnectedSnapshot(at time.Time) *Snapshot {
	return &Snapshot{Connected: false, Timestamp: at}
}

// ErrorInfo 最近一次傳輸失敗的記錄
type ErrorInfo struct {
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
