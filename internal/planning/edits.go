package planning

import (
	"fmt"

	"go.uber.org/zap"

	"dienstplan/internal/roster"
	pkgerrors "dienstplan/pkg/errors"
)

// CellChange 一次单元格变更（供流水线进行重绘与次级更新）
type CellChange struct {
	UserID  int
	Date    roster.Date
	OldCode string
	NewCode string
}

// Changed 代码是否真的变化
func (c CellChange) Changed() bool { return c.OldCode != c.NewCode }

// checkCell 校验员工与日期，调用方须持锁
func (st *monthState) checkCell(userID int, d roster.Date) error {
	if !d.InMonth(st.year, st.month) {
		return fmt.Errorf("%w: %s", ErrDateOutOfMonth, d)
	}
	if _, ok := st.employees.Get(userID); !ok {
		return fmt.Errorf("%w: %d", ErrUnknownEmployee, userID)
	}
	return nil
}

// SetShift 主阶段写入排班缓存，返回旧代码
// 锁定格子只接受与锁相同的代码，否则返回 ErrCellLocked
func (m *Manager) SetShift(userID int, d roster.Date, code string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, err := m.mustState()
	if err != nil {
		return "", err
	}
	if err := st.checkCell(userID, d); err != nil {
		return "", err
	}
	old := st.schedule.Get(userID, d)
	if lock, ok := st.locks.Get(userID, d); ok && lock != code {
		return old, pkgerrors.ErrCellLocked
	}
	st.schedule.Set(userID, d, code)
	return old, nil
}

// SetLock 锁定格子并以锁写回排班；返回排班变更与原锁代码
func (m *Manager) SetLock(userID int, d roster.Date, code string) (CellChange, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, err := m.mustState()
	if err != nil {
		return CellChange{}, "", err
	}
	if err := st.checkCell(userID, d); err != nil {
		return CellChange{}, "", err
	}
	if code == "" {
		return CellChange{}, "", fmt.Errorf("%w: 锁定代码不能为空", ErrLockMismatch)
	}
	prevLock, _ := st.locks.Get(userID, d)
	change := CellChange{UserID: userID, Date: d, OldCode: st.schedule.Get(userID, d), NewCode: code}
	st.locks.Set(userID, d, code)
	st.schedule.Set(userID, d, code)
	return change, prevLock, nil
}

// RemoveLock 解除锁定，排班保持不变；返回被移除的锁代码
func (m *Manager) RemoveLock(userID int, d roster.Date) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, err := m.mustState()
	if err != nil {
		return "", false, err
	}
	if err := st.checkCell(userID, d); err != nil {
		return "", false, err
	}
	code, ok := st.locks.Remove(userID, d)
	return code, ok, nil
}

// RestoreLock 补偿操作：恢复锁状态（code 为空表示无锁）
func (m *Manager) RestoreLock(userID int, d roster.Date, code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return
	}
	if code == "" {
		m.state.locks.Remove(userID, d)
		return
	}
	m.state.locks.Set(userID, d, code)
}

// ForceShift 补偿操作：绕过锁校验恢复排班
func (m *Manager) ForceShift(userID int, d roster.Date, code string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil || !d.InMonth(m.state.year, m.state.month) {
		return ""
	}
	old := m.state.schedule.Get(userID, d)
	m.state.schedule.Set(userID, d, code)
	return old
}

// WishTransition 愿望状态变更结果
type WishTransition struct {
	Before roster.WishRequest
	After  roster.WishRequest
	// Removed 撤回后愿望不再存在
	Removed bool
	Cell    CellChange
}

// ApplyWishStatus 更新愿望状态并同步格子体现：
// 接受 → WF 在空格子写入 X，其余写入所申请代码；拒绝/撤回 → 只清除由该愿望写入的代码。
// 锁定格子与已批准休假日不动
// status 为空表示撤回
func (m *Manager) ApplyWishStatus(id int, status roster.WishStatus, reason *string) (WishTransition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, err := m.mustState()
	if err != nil {
		return WishTransition{}, err
	}
	w, ok := st.findWish(id)
	if !ok {
		return WishTransition{}, fmt.Errorf("%w: %d", ErrWishNotFound, id)
	}

	tr := WishTransition{Before: w}
	cur := st.schedule.Get(w.UserID, w.Date)
	tr.Cell = CellChange{UserID: w.UserID, Date: w.Date, OldCode: cur, NewCode: cur}

	manifested, hadManifest := w.ManifestCode("")
	if status == "" {
		tr.Removed = true
		delete(st.wishes[w.UserID], w.Date)
	} else {
		w.Status = status
		w.RejectionReason = reason
		tr.After = w
		st.wishes[w.UserID][w.Date] = w
	}

	wrote := st.wishCells[id]
	accepted := !tr.Removed && status.Accepted()
	if !accepted {
		delete(st.wishCells, id)
	}
	if !w.Date.InMonth(st.year, st.month) || !st.wishCanManifest(w) {
		return tr, nil
	}
	switch {
	case accepted:
		if code, ok := w.ManifestCode(cur); ok && code != cur {
			st.schedule.Set(w.UserID, w.Date, code)
			st.wishCells[id] = true
			tr.Cell.NewCode = code
		}
	case wrote && hadManifest && cur == manifested:
		st.schedule.Set(w.UserID, w.Date, "")
		tr.Cell.NewCode = ""
	}
	m.logger.Debug("愿望状态已更新",
		zap.Int("wish_id", id),
		zap.String("status", string(status)),
		zap.String("old_code", tr.Cell.OldCode),
		zap.String("new_code", tr.Cell.NewCode))
	return tr, nil
}

// RestoreWish 补偿操作：还原愿望记录
func (m *Manager) RestoreWish(w roster.WishRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return
	}
	if m.state.wishes[w.UserID] == nil {
		m.state.wishes[w.UserID] = make(map[roster.Date]roster.WishRequest)
	}
	m.state.wishes[w.UserID][w.Date] = w
	if !w.Status.Accepted() {
		delete(m.state.wishCells, w.ID)
	}
}
