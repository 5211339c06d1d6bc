package console

import (
	"context"
	"time"

	"meshlockr.org/internal/policy"
)

// Soft-delete state machine, per item: Active -> PendingDelete -> Deleted or
// Restored. The row leaves the snapshot immediately; the store request is
// deferred by the grace window and cancelled by an undo. Bulk deletes run one
// machine per item, so each countdown cancels independently.

type pendingDelete struct {
	item  policy.AccessPolicy
	index int
	timer *time.Timer
}

// SoftDelete removes the policy from the snapshot and schedules the actual
// delete after the grace window. A second soft delete supersedes the visible
// undo banner without touching the earlier item's countdown.
func (c *Controller) SoftDelete(id string) bool {
	c.mu.Lock()

	if _, already := c.pending[id]; already {
		c.mu.Unlock()
		return false
	}
	idx := -1
	for i := range c.snapshot {
		if c.snapshot[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.mu.Unlock()
		return false
	}

	pd := &pendingDelete{item: c.snapshot[idx], index: idx}
	c.snapshot = append(c.snapshot[:idx], c.snapshot[idx+1:]...)
	delete(c.selected, id)
	c.pending[id] = pd
	c.banner = id
	pd.timer = time.AfterFunc(c.grace, func() { c.finalizeDelete(id) })

	c.mu.Unlock()
	return true
}

// DeleteSelected soft-deletes every policy in the multi-select set, each with
// its own timer. The last one started owns the visible banner.
func (c *Controller) DeleteSelected() int {
	var n int
	for _, id := range c.Selected() {
		if c.SoftDelete(id) {
			n++
		}
	}
	return n
}

// Undo cancels the pending delete and restores the row. It reports false when
// the grace window already elapsed (the delete request is on its way or done).
func (c *Controller) Undo(id string) bool {
	c.mu.Lock()
	pd, ok := c.pending[id]
	if !ok || !pd.timer.Stop() {
		c.mu.Unlock()
		return false
	}
	delete(c.pending, id)
	c.restoreLocked(pd)
	if c.banner == id {
		c.banner = ""
	}
	c.mu.Unlock()

	c.emit(Notice{Kind: "info", Message: "policy restored"})
	return true
}

// UndoBanner returns the id behind the currently displayable undo control.
// Only one banner shows at a time even when several deletes are pending.
func (c *Controller) UndoBanner() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.banner == "" {
		return "", false
	}
	if _, ok := c.pending[c.banner]; !ok {
		return "", false
	}
	return c.banner, true
}

// PendingDeletes reports how many countdowns are still running.
func (c *Controller) PendingDeletes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// finalizeDelete fires when the countdown expires: the delete request is
// issued for real. On failure the row is restored and a notice surfaced
// instead of leaving it in limbo; this is the one self-correcting error path
// in the console.
func (c *Controller) finalizeDelete(id string) {
	err := c.svc.Delete(context.Background(), id)

	c.mu.Lock()
	pd, ok := c.pending[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.pending, id)
	if err != nil {
		c.restoreLocked(pd)
	}
	if c.banner == id {
		c.banner = ""
	}
	c.mu.Unlock()

	if err != nil {
		c.emit(Notice{Kind: "error", Message: "failed to delete policy: " + err.Error()})
	}
}

// restoreLocked puts the row back near its original position. Callers hold
// c.mu.
func (c *Controller) restoreLocked(pd *pendingDelete) {
	idx := pd.index
	if idx > len(c.snapshot) {
		idx = len(c.snapshot)
	}
	c.snapshot = append(c.snapshot, policy.AccessPolicy{})
	copy(c.snapshot[idx+1:], c.snapshot[idx:])
	c.snapshot[idx] = pd.item
}
