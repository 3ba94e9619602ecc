// Package logs builds the process-wide zap logger, using a
// console+rotating-file core composition.
package logs

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/everything-chalna/oh-my-notionmcp/internal/config"
)

// Setup builds a logger with console and (optionally) rotating file outputs.
// Stdio servers must never write raw stdout, since the MCP wire protocol
// owns stdout exclusively — both cores write to stderr or to a file.
func Setup(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zap.InfoLevel
	}

	var cores []zapcore.Core

	if cfg.EnableConsole {
		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		var encoder zapcore.Encoder
		if cfg.JSONFormat {
			encoder = zapcore.NewJSONEncoder(encoderCfg)
		} else {
			encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
			encoder = zapcore.NewConsoleEncoder(encoderCfg)
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), level))
	}

	if cfg.EnableFile {
		path, err := logFilePath(cfg)
		if err != nil {
			return nil, fmt.Errorf("resolve log file path: %w", err)
		}
		writer := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(writer), level))
	}

	if len(cores) == 0 {
		cores = append(cores, zapcore.NewNopCore())
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

func logFilePath(cfg config.LogConfig) (string, error) {
	dir := cfg.LogDir
	if dir == "" {
		userDir, err := os.UserCacheDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(userDir, "oh-my-notionmcp", "logs")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	name := cfg.Filename
	if name == "" {
		name = "oh-my-notionmcp.log"
	}
	return filepath.Join(dir, name), nil
}
