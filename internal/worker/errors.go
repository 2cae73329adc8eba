package worker

import "errors"

// Ошибки driver'а.
var (
	// ErrStageFailed — Executor вернул ошибку.
	ErrStageFailed = errors.New("stage failed")

	// ErrRunVanished — run исчез из хранилища во время выполнения.
	ErrRunVanished = errors.New("run vanished from store")
)
