package app

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger builds the production logger at the given level. Level names follow
// zap conventions (DEBUG, INFO, WARN, ERROR).
func Logger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		panic(err)
	}
	cfg.Level.SetLevel(lvl)

	lg, err := cfg.Build()
	if err != nil {
		panic(err)
	}

	return lg
}
