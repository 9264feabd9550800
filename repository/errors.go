package repository

import "errors"

var (
	// ErrDuplicateUser 用户名或邮箱已存在
	ErrDuplicateUser = errors.New("username or email already exists")
)
