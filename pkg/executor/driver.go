package executor

import (
	"context"
	"fmt"
)

// Provider names an anti-detect browser backend.
type Provider string

const (
	ProviderPlaywright Provider = "playwright"
	ProviderMultilogin Provider = "multilogin"
	ProviderGoLogin    Provider = "gologin"
)

func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case ProviderPlaywright, ProviderMultilogin, ProviderGoLogin:
		return Provider(s), nil
	}
	return "", fmt.Errorf("unknown browser provider: %q", s)
}

// Driver performs platform actions through a browser session. Drivers
// signal expected platform outcomes with the sentinel errors
// ErrTargetNotFound, ErrAlreadyFollows and ErrPrivateAccount; anything
// else is treated as a hard failure.
type Driver interface {
	// Open establishes the browser session and fills in the context's
	// WSEndpoint. It must be safe to call once per context.
	Open(ctx context.Context, execCtx *ExecutionContext) error
	Close(ctx context.Context, execCtx *ExecutionContext) error

	Follow(ctx context.Context, execCtx *ExecutionContext, target string) error
	Unfollow(ctx context.Context, execCtx *ExecutionContext, target string) error
	SendDM(ctx context.Context, execCtx *ExecutionContext, target, message string) error
	Like(ctx context.Context, execCtx *ExecutionContext, postID string) error

	// ViewProfile and ScrollFeed are humanization companions, never
	// counted against rate limit budgets.
	ViewProfile(ctx context.Context, execCtx *ExecutionContext, target string) error
	ScrollFeed(ctx context.Context, execCtx *ExecutionContext) error

	// IsFollowingBack reports whether target follows the session account.
	IsFollowingBack(ctx context.Context, execCtx *ExecutionContext, target string) (bool, error)
}
