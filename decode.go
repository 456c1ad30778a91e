package main

import "encoding/binary"

// StatusFlags 狀態字解碼後的機台旗標
type StatusFlags struct {
	EStop    bool `json:"estop_active"`
	Alarm    bool `json:"alarm_active"`
	Cycle    bool `json:"cycle_running"`
	FeedHold bool `json:"feed_hold_active"`
	Homing   bool `json:"homing"`
	Spindle  bool `json:"spindle_running"`
	Paused   bool `json:"program_paused"`
	DoorOpen bool `json:"door_open"`
}

// DecodeStatusWord 解碼狀態字, 位元 0-7 對應各旗標, 位元 8 以上忽略
func DecodeStatusWord(word uint16) StatusFlags {
	return StatusFlags{
		EStop:    word&(1<<StatusBitEStop) != 0,
		Alarm:    word&(1<<StatusBitAlarm) != 0,
		Cycle:    word&(1<<StatusBitCycle) != 0,
		FeedHold: word&(1<<StatusBitFeedHold) != 0,
		Homing:   word&(1<<StatusBitHoming) != 0,
		Spindle:  word&(1<<StatusBitSpindle) != 0,
		Paused:   word&(1<<StatusBitPaused) != 0,
		DoorOpen: word&(1<<StatusBitDoorOpen) != 0,
	}
}

// DecodeSigned32 將兩個 16 位元暫存器組合為有號 32 位元整數 (lo/hi 字序)
func DecodeSigned32(lo, hi uint16) int32 {
	return int32(uint32(hi)<<16 | uint32(lo))
}

// EncodeSigned32 將有號 32 位元整數拆為 lo/hi 兩個暫存器 (模擬器與測試用)
func EncodeSigned32(v int32) (lo, hi uint16) {
	u := uint32(v)
	return uint16(u), uint16(u >> 16)
}

// ScalePosition 將原始位置值 (0.001mm 單位) 換算為公釐
func ScalePosition(raw int32) float64 {
	return float64(raw) * 0.001
}

// DecodeLotProgress 計算批次完成百分比, 目標為 0 時返回 0 (不得除以零), 超過目標不截斷
func DecodeLotProgress(count, target uint16) float64 {
	if target == 0 {
		return 0.0
	}
	return 100.0 * float64(count) / float64(target)
}

// RegistersToBytes 將暫存器值轉換為位元組陣列 (Big Endian)
func RegistersToBytes(registers []uint16) []byte {
	bytes := make([]byte, len(registers)*2)
	for i, reg := range registers {
		binary.BigEndian.PutUint16(bytes[i*2:], reg)
	}
	return bytes
}

// BytesToRegisters 將位元組陣列轉換為暫存器值 (Big Endian)
func BytesToRegisters(data []byte) []uint16 {
	registers := make([]uint16, len(data)/2)
	for i := range registers {
		registers[i] = binary.BigEndian.Uint16(data[i*2:])
	}
	return registers
}

// CoilsToBytes 將線圈值打包為位元組 (LSB 在前)
func CoilsToBytes(coils []bool) []byte {
	byteCount := (len(coils) + 7) / 8
	bytes := make([]byte, byteCount)
	for i, coil := range coils {
		if coil {
			bytes[i/8] |= 1 << (i % 8)
		}
	}
	return bytes
}

// BytesToCoils 將打包位元組展開為線圈值
func BytesToCoils(data []byte, count int) []bool {
	coils := make([]bool, count)
	for i := 0; i < count; i++ {
		if i/8 < len(data) {
			coils[i] = (data[i/8] & (1 << (i % 8))) != 0
		}
	}
	return coils
}
