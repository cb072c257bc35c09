package errors

import "errors"

// ErrCellLocked 单元格已锁定，拒绝修改
var ErrCellLocked = errors.New("该单元格已锁定，不可修改")

// ErrLoadCancelled 月度加载被取消（用户切换了月份）
var ErrLoadCancelled = errors.New("月度加载已取消")

// ErrMonthNotLoaded 尚未加载任何计划月
var ErrMonthNotLoaded = errors.New("计划月尚未加载")
