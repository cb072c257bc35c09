package roster

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidVacationStatus = errors.New("无效的休假申请状态")
	ErrInvalidWishStatus     = errors.New("无效的愿望申请状态")
	ErrInvalidWishCode       = errors.New("无效的愿望班次")
	ErrInvalidRequester      = errors.New("无效的申请人类型")
)

// ── 休假申请 ──

// VacationStatus 休假申请状态（数据库存德文原值）
type VacationStatus string

const (
	VacationPending   VacationStatus = "Ausstehend"
	VacationApproved  VacationStatus = "Genehmigt"
	VacationRejected  VacationStatus = "Abgelehnt"
	VacationCancelled VacationStatus = "Storniert"
)

// ParseVacationStatus 校验状态值
func ParseVacationStatus(s string) (VacationStatus, error) {
	switch st := VacationStatus(s); st {
	case VacationPending, VacationApproved, VacationRejected, VacationCancelled:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidVacationStatus, s)
}

// VacationRequest 休假申请
type VacationRequest struct {
	ID        int
	UserID    int
	StartDate Date
	EndDate   Date
	Status    VacationStatus
	Archived  bool
}

// Days 申请覆盖的所有日期
func (v VacationRequest) Days() []Date {
	var out []Date
	for d := v.StartDate; !d.After(v.EndDate); d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}

// ── 休息/班次愿望 ──

// WishStatus 愿望申请状态
type WishStatus string

const (
	WishPending       WishStatus = "Ausstehend"
	WishAdminAccepted WishStatus = "Akzeptiert von Admin"
	WishUserAccepted  WishStatus = "Akzeptiert von Benutzer"
	WishAdminRejected WishStatus = "Abgelehnt von Admin"
	WishUserRejected  WishStatus = "Abgelehnt von Benutzer"
)

// Accepted 是否已被接受
func (s WishStatus) Accepted() bool {
	return s == WishAdminAccepted || s == WishUserAccepted
}

// Rejected 是否已被拒绝
func (s WishStatus) Rejected() bool {
	return s == WishAdminRejected || s == WishUserRejected
}

// 申请发起方
const (
	RequestedByUser  = "user"
	RequestedByAdmin = "admin"
)

// WishRequest 愿望申请（命名记录，加载时即校验）
type WishRequest struct {
	ID              int
	UserID          int
	Date            Date
	RequestedCode   string
	Status          WishStatus
	RequestedBy     string
	RejectionReason *string
}

// NewWishRequest 构造并校验愿望申请；catalog 为 nil 时不校验具体班次是否存在
func NewWishRequest(id, userID int, d Date, code, status, requestedBy string, reason *string, catalog *ShiftCatalog) (WishRequest, error) {
	st := WishStatus(status)
	switch st {
	case WishPending, WishAdminAccepted, WishUserAccepted, WishAdminRejected, WishUserRejected:
	default:
		return WishRequest{}, fmt.Errorf("%w: %q", ErrInvalidWishStatus, status)
	}
	if requestedBy == "" {
		requestedBy = RequestedByUser
	}
	if requestedBy != RequestedByUser && requestedBy != RequestedByAdmin {
		return WishRequest{}, fmt.Errorf("%w: %q", ErrInvalidRequester, requestedBy)
	}
	if code != CodeWishFree && code != CodeWishDayOrNight {
		if code == "" {
			return WishRequest{}, fmt.Errorf("%w: 空代码", ErrInvalidWishCode)
		}
		if catalog != nil {
			if _, ok := catalog.Get(code); !ok {
				return WishRequest{}, fmt.Errorf("%w: %q", ErrInvalidWishCode, code)
			}
		}
	}
	return WishRequest{
		ID:              id,
		UserID:          userID,
		Date:            d,
		RequestedCode:   code,
		Status:          st,
		RequestedBy:     requestedBy,
		RejectionReason: reason,
	}, nil
}

// BlocksDay 该愿望是否使当天不可排（WF 且未被拒绝，且尊重度 ≥ 50）
func (w WishRequest) BlocksDay(respectLevel int) bool {
	if w.RequestedCode != CodeWishFree || respectLevel < 50 {
		return false
	}
	return w.Status == WishPending || w.Status.Accepted()
}

// ManifestCode 已接受愿望在格子上的体现代码；existing 为格子现有代码
// WF 仅在格子为空时体现为 X；T/N 不体现
func (w WishRequest) ManifestCode(existing string) (string, bool) {
	if !w.Status.Accepted() {
		return "", false
	}
	switch w.RequestedCode {
	case CodeWishFree:
		if existing == "" {
			return CodeX, true
		}
		return "", false
	case CodeWishDayOrNight:
		return "", false
	}
	return w.RequestedCode, true
}
