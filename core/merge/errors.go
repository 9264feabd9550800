package merge

import "errors"

// ValidationError rejects a malformed merge request before any job record
// is created.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

var (
	// ErrNotFound 任务不存在
	ErrNotFound = errors.New("merge job not found")
	// ErrAccessDenied 任务属于其他用户
	ErrAccessDenied = errors.New("access denied")
)
