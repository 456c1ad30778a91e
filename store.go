package main

import (
	"sync/atomic"
	"time"
)

// StateStore 共享狀態儲存: 單一寫入者 (Poller), 多個並發讀取者。
// 快照不可變, 以原子指標替換發布, 讀取端無鎖。
type StateStore struct {
	snapshot atomic.Pointer[Snapshot]
	lastErr  atomic.Pointer[ErrorInfo]
}

// NewStateStore 建立狀態儲存, 初始為斷線快照
func NewStateStore() *StateStore {
	s := &StateStore{}
	s.snapshot.Store(DisconnectedSnapshot(time.Time{}))
	return s
}

// Publish 原子替換當前快照
func (s *StateStore) Publish(snap *Snapshot) {
	s.snapshot.Store(snap)
}

// Current 返回最新發布的快照, 不會因 I/O 阻塞
func (s *StateStore) Current() *Snapshot {
	return s.snapshot.Load()
}

// SetLastError 覆寫最近錯誤記錄
func (s *StateStore) SetLastError(kind, message string) {
	s.lastErr.Store(&ErrorInfo{
		Kind:      kind,
		Message:   message,
		Timestamp: time.Now(),
	})
}

// ClearLastError 清除錯誤記錄 (輪詢成功後)
func (s *StateStore) ClearLastError() {
	s.lastErr.Store(nil)
}

// LastError 返回最近錯誤, 沒有錯誤時返回 nil
func (s *StateStore) LastError() *ErrorInfo {
	return s.lastErr.Load()
}
