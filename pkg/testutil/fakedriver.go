package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/grigta/outreach/pkg/executor"
)

// FakeDriver is an in-memory executor.Driver for tests. Per-target errors
// are scripted through the maps; every call is logged in order.
type FakeDriver struct {
	mu sync.Mutex

	OpenErr      error
	FollowErrs   map[string]error
	UnfollowErrs map[string]error
	DMErrs       map[string]error
	LikeErrs     map[string]error
	FollowsBack  map[string]bool

	Calls    []string
	Opened   []string
	Closed   []string
	Messages map[string]string // target -> last DM text
}

func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		FollowErrs:   make(map[string]error),
		UnfollowErrs: make(map[string]error),
		DMErrs:       make(map[string]error),
		LikeErrs:     make(map[string]error),
		FollowsBack:  make(map[string]bool),
		Messages:     make(map[string]string),
	}
}

func (d *FakeDriver) record(format string, args ...interface{}) {
	d.Calls = append(d.Calls, fmt.Sprintf(format, args...))
}

// CallLog returns a copy of the recorded calls.
func (d *FakeDriver) CallLog() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.Calls))
	copy(out, d.Calls)
	return out
}

// CallCount counts logged calls with the given prefix.
func (d *FakeDriver) CallCount(prefix string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, call := range d.Calls {
		if len(call) >= len(prefix) && call[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func (d *FakeDriver) Open(_ context.Context, execCtx *executor.ExecutionContext) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.OpenErr != nil {
		return d.OpenErr
	}
	d.Opened = append(d.Opened, execCtx.AccountID)
	d.record("open:%s", execCtx.AccountID)
	return nil
}

func (d *FakeDriver) Close(_ context.Context, execCtx *executor.ExecutionContext) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Closed = append(d.Closed, execCtx.AccountID)
	d.record("close:%s", execCtx.AccountID)
	return nil
}

func (d *FakeDriver) Follow(_ context.Context, execCtx *executor.ExecutionContext, target string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("follow:%s", target)
	return d.FollowErrs[target]
}

func (d *FakeDriver) Unfollow(_ context.Context, execCtx *executor.ExecutionContext, target string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("unfollow:%s", target)
	return d.UnfollowErrs[target]
}

func (d *FakeDriver) SendDM(_ context.Context, execCtx *executor.ExecutionContext, target, message string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("dm:%s", target)
	if err := d.DMErrs[target]; err != nil {
		return err
	}
	d.Messages[target] = message
	return nil
}

func (d *FakeDriver) Like(_ context.Context, execCtx *executor.ExecutionContext, postID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("like:%s", postID)
	return d.LikeErrs[postID]
}

func (d *FakeDriver) ViewProfile(_ context.Context, execCtx *executor.ExecutionContext, target string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("view:%s", target)
	return nil
}

func (d *FakeDriver) ScrollFeed(_ context.Context, execCtx *executor.ExecutionContext) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("scroll:%s", execCtx.AccountID)
	return nil
}

func (d *FakeDriver) IsFollowingBack(_ context.Context, execCtx *executor.ExecutionContext, target string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("check:%s", target)
	return d.FollowsBack[target], nil
}
