package storage

import "errors"

var (
	// ErrFileExists 目标位置已存在文件
	ErrFileExists = errors.New("file already exists")
	// ErrFileNotFound 文件记录不存在
	ErrFileNotFound = errors.New("file not found")
	// ErrBlobNotFound 存储后端中不存在该内容
	ErrBlobNotFound = errors.New("file content not found")
	// ErrInvalidConfig 存储配置无效
	ErrInvalidConfig = errors.New("invalid storage configuration")
	// ErrAccessDenied 存储后端拒绝访问
	ErrAccessDenied = errors.New("storage access denied")
	// ErrOperationTimeout 存储操作超时
	ErrOperationTimeout = errors.New("storage operation timeout")
)
