package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func New(env, level string) (*zap.Logger, error) {
	var zapCfg zap.Config

	if env == "prod" || env == "production" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	zapCfg.Level = zap.NewAtomicLevelAt(lvl)

	return zapCfg.Build()
}
