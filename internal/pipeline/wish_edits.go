package pipeline

import (
	"context"

	"dienstplan/internal/planning"
	"dienstplan/internal/roster"
)

// AcceptWish 管理员接受愿望：WF 在空格子体现为 X，其余愿望把格子改为请求的班次
func (p *Pipeline) AcceptWish(id int) (planning.WishTransition, error) {
	return p.wishStatus(id, roster.WishAdminAccepted, nil)
}

// RejectWish 管理员拒绝愿望；若格子由该愿望体现则清空
func (p *Pipeline) RejectWish(id int, reason string) (planning.WishTransition, error) {
	var r *string
	if reason != "" {
		r = &reason
	}
	return p.wishStatus(id, roster.WishAdminRejected, r)
}

// WithdrawWish 撤回愿望（删除记录）
func (p *Pipeline) WithdrawWish(id int) (planning.WishTransition, error) {
	return p.wishStatus(id, "", nil)
}

// wishStatus 与 Edit 相同的主/次两阶段；愿望变化总会触发冲突重算
func (p *Pipeline) wishStatus(id int, status roster.WishStatus, reason *string) (planning.WishTransition, error) {
	w, _ := p.model.Wish(id)
	oldText := p.model.DisplayCode(w.UserID, w.Date)
	tr, err := p.model.ApplyWishStatus(id, status, reason)
	if err != nil {
		return planning.WishTransition{}, err
	}
	p.primary(tr.Cell, oldText)

	p.persist("愿望", tr.Cell, func(ctx context.Context) error {
		return p.writer.SaveWishTransition(ctx, tr)
	}, func() {
		p.model.RestoreWish(tr.Before)
		c := tr.Cell
		if c.Changed() && p.model.ShiftAt(c.UserID, c.Date) == c.NewCode {
			p.revertShift(c)
			return
		}
		cur := p.model.ShiftAt(c.UserID, c.Date)
		p.primary(planning.CellChange{UserID: c.UserID, Date: c.Date, OldCode: cur, NewCode: cur},
			p.model.DisplayCode(c.UserID, c.Date))
	})
	return tr, nil
}
