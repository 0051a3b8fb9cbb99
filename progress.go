// Copyright 2025 Shawn Clovie. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spotzip

import (
	"sync"
	"sync/atomic"
)

// Progress reports unit-counted completion of one archive operation and
// carries the cooperative cancel flag that operations poll between chunks.
//
// A Progress may aggregate children registered with AddChild; the parent's
// completed count then includes each child's completed fraction scaled by the
// weight it was registered with. Hierarchical composition is optional - a
// plain Progress is a counter pair plus a cancel flag.
//
// All methods are safe for use from multiple goroutines, so a caller may
// observe or cancel an operation running on another goroutine.
type Progress struct {
	total     atomic.Int64
	completed atomic.Int64
	cancelled atomic.Bool

	mu       sync.Mutex
	children []progressChild
}

type progressChild struct {
	child  *Progress
	weight int64
}

// NewProgress returns a Progress with the given planned total unit count.
// A zero total is valid; operations set their own totals when they start.
func NewProgress(totalUnitCount int64) *Progress {
	p := &Progress{}
	p.total.Store(totalUnitCount)
	return p
}

// TotalUnitCount returns the planned number of units, including the weights
// of registered children.
func (p *Progress) TotalUnitCount() int64 {
	total := p.total.Load()
	p.mu.Lock()
	for _, c := range p.children {
		total += c.weight
	}
	p.mu.Unlock()
	return total
}

// CompletedUnitCount returns the number of units completed so far. Child
// progresses contribute their completed fraction scaled by their weight.
func (p *Progress) CompletedUnitCount() int64 {
	completed := p.completed.Load()
	p.mu.Lock()
	for _, c := range p.children {
		if total := c.child.TotalUnitCount(); total > 0 {
			completed += c.weight * c.child.CompletedUnitCount() / total
		}
	}
	p.mu.Unlock()
	return completed
}

// FractionCompleted returns completion as a value in [0, 1].
func (p *Progress) FractionCompleted() float64 {
	total := p.TotalUnitCount()
	if total <= 0 {
		return 0
	}
	f := float64(p.CompletedUnitCount()) / float64(total)
	if f > 1 {
		return 1
	}
	return f
}

// AddChild registers a child progress contributing weight units to p's total.
func (p *Progress) AddChild(child *Progress, weight int64) {
	if child == nil || weight <= 0 {
		return
	}
	p.mu.Lock()
	p.children = append(p.children, progressChild{child: child, weight: weight})
	p.mu.Unlock()
}

// Cancel requests cooperative cancellation of the operation this progress is
// attached to. The request propagates to registered children.
func (p *Progress) Cancel() {
	p.cancelled.Store(true)
	p.mu.Lock()
	children := p.children
	p.mu.Unlock()
	for _, c := range children {
		c.child.Cancel()
	}
}

// IsCancelled reports whether cancellation has been requested. Nil-safe so
// operations can poll without a progress attached.
func (p *Progress) IsCancelled() bool {
	return p != nil && p.cancelled.Load()
}

// setTotal fixes the operation's planned unit count. Nil-safe so operations
// can run without a progress attached.
func (p *Progress) setTotal(n int64) {
	if p == nil {
		return
	}
	p.total.Store(n)
	p.completed.Store(0)
}

// add advances the completed counter. Nil-safe.
func (p *Progress) add(n int64) {
	if p == nil {
		return
	}
	p.completed.Add(n)
}
