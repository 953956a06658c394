package utils

import (
	"runtime/debug"

	"github.com/rs/zerolog"
)

// Recover 捕获 panic 并记录错误日志，必须直接 defer 调用
func Recover(logger zerolog.Logger, name string) {
	if r := recover(); r != nil {
		logger.Error().
			Str("goroutine", name).
			Interface("panic", r).
			Bytes("stack", debug.Stack()).
			Msg("recovered from panic")
	}
}
