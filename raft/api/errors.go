package api

import "errors"

// 这些错误会跨越 Transport 边界，各 Transport 负责把它们还原成同一个哨兵值，
// 调用方因此可以直接使用 errors.Is 判断。
var (
	ErrNotLeader                  = errors.New("not leader")
	ErrLaneNotFound               = errors.New("lane not found")
	ErrStaleTerm                  = errors.New("stale term")
	ErrTimeout                    = errors.New("request timed out")
	ErrMembershipChangeInProgress = errors.New("membership change in progress")
	ErrMalformedRequest           = errors.New("malformed request")
)

// KnownErrors lists the sentinels in a stable order for transports that carry
// errors as plain text.
var KnownErrors = []error{
	ErrNotLeader,
	ErrLaneNotFound,
	ErrStaleTerm,
	ErrTimeout,
	ErrMembershipChangeInProgress,
	ErrMalformedRequest,
}
