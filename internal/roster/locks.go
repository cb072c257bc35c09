package roster

import (
	"sort"
	"time"
)

// Lock 锁定的单元格
type Lock struct {
	UserID int
	Date   Date
	Code   string
}

// LockStore 锁定单元格集合：(user, date) → code
// 非并发安全，由持有方（PDM）串行访问
type LockStore struct {
	locks map[int]map[Date]string
}

// NewLockStore 由锁列表建立
func NewLockStore(locks []Lock) *LockStore {
	s := &LockStore{locks: make(map[int]map[Date]string)}
	for _, l := range locks {
		s.Set(l.UserID, l.Date, l.Code)
	}
	return s
}

// Get 查询锁定代码
func (s *LockStore) Get(userID int, d Date) (string, bool) {
	code, ok := s.locks[userID][d]
	return code, ok
}

// IsLocked 是否锁定
func (s *LockStore) IsLocked(userID int, d Date) bool {
	_, ok := s.Get(userID, d)
	return ok
}

// Set 锁定单元格
func (s *LockStore) Set(userID int, d Date, code string) {
	if s.locks[userID] == nil {
		s.locks[userID] = make(map[Date]string)
	}
	s.locks[userID][d] = code
}

// Remove 解除锁定，返回原代码
func (s *LockStore) Remove(userID int, d Date) (string, bool) {
	code, ok := s.locks[userID][d]
	if !ok {
		return "", false
	}
	delete(s.locks[userID], d)
	if len(s.locks[userID]) == 0 {
		delete(s.locks, userID)
	}
	return code, true
}

// InMonth 该月全部锁定，按 (user, date) 排序
func (s *LockStore) InMonth(year int, month time.Month) []Lock {
	var out []Lock
	for uid, days := range s.locks {
		for d, code := range days {
			if d.InMonth(year, month) {
				out = append(out, Lock{UserID: uid, Date: d, Code: code})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// Len 锁定总数
func (s *LockStore) Len() int {
	n := 0
	for _, days := range s.locks {
		n += len(days)
	}
	return n
}

// Clone 深拷贝
func (s *LockStore) Clone() *LockStore {
	c := &LockStore{locks: make(map[int]map[Date]string, len(s.locks))}
	for uid, days := range s.locks {
		m := make(map[Date]string, len(days))
		for d, code := range days {
			m[d] = code
		}
		c.locks[uid] = m
	}
	return c
}
