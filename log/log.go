/*
	Copyright (c) 2026 The rocketfc Authors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	log.go: Package-level zap logger, optionally teed into a rotating log file.
*/

// Package log provides centralized logging using the zap logger.
package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ricochet2200/go-disk-usage/du"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	LogFile      = "rocketfc.log"
	maxLogSizeMB = 10
	maxBackups   = 9
	minFreeBytes = 50 * 1024 * 1024
)

var (
	mu         sync.Mutex
	log        *zap.SugaredLogger
	baseLogger *zap.Logger
	rotator    *lumberjack.Logger
)

// Init initializes the package-level logger. When dir is not empty, output is
// also written to dir/rocketfc.log, rotated at 10 MB with 9 backups kept.
func Init(debug bool, dir string) error {
	var (
		zapLogger *zap.Logger
		err       error
	)
	if debug {
		zapLogger, err = zap.NewDevelopment(zap.AddCallerSkip(1))
	} else {
		zapLogger, err = zap.NewProduction(zap.AddCallerSkip(1))
	}
	if err != nil {
		return fmt.Errorf("can't initialize zap logger: %w", err)
	}

	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("can't create log dir %s: %w", dir, err)
		}
		r := &lumberjack.Logger{
			Filename:   filepath.Join(dir, LogFile),
			MaxSize:    maxLogSizeMB,
			MaxBackups: maxBackups,
		}
		level := zap.InfoLevel
		if debug {
			level = zap.DebugLevel
		}
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(r),
			level,
		)
		zapLogger = zapLogger.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, fileCore)
		}))
		mu.Lock()
		rotator = r
		mu.Unlock()
		go diskWatcher(dir)
	}

	mu.Lock()
	baseLogger = zapLogger
	log = zapLogger.Sugar()
	mu.Unlock()
	return nil
}

func sugared() *zap.SugaredLogger {
	mu.Lock()
	defer mu.Unlock()
	if log == nil {
		// Fallback logger if not initialized
		baseLogger, _ = zap.NewProduction(zap.AddCallerSkip(1))
		log = baseLogger.Sugar()
	}
	return log
}

// GetZapLogger returns the base zap logger.
func GetZapLogger() *zap.Logger {
	sugared()
	mu.Lock()
	defer mu.Unlock()
	return baseLogger
}

// GetSugaredLogger returns the sugared logger instance.
func GetSugaredLogger() *zap.SugaredLogger {
	return sugared()
}

// Sync flushes any buffered log entries and closes the log file.
func Sync() {
	mu.Lock()
	l, r := log, rotator
	mu.Unlock()
	if l != nil {
		_ = l.Sync()
	}
	if r != nil {
		_ = r.Close()
	}
}

// backups lists rotated log files, oldest first.
func backups(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	base := strings.TrimSuffix(LogFile, filepath.Ext(LogFile)) + "-"
	var files []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), base) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	// lumberjack backups carry a sortable timestamp.
	sort.Strings(files)
	return files
}

// diskWatcher deletes the oldest rotated logs while the disk is nearly full.
func diskWatcher(dir string) {
	for {
		usage := du.NewDiskUsage(dir)
		free := int64(usage.Free())
		for _, f := range backups(dir) {
			if free >= minFreeBytes {
				break
			}
			st, err := os.Stat(f)
			if err != nil || os.Remove(f) != nil {
				continue
			}
			free += st.Size()
		}
		time.Sleep(30 * time.Second)
	}
}

func Debugf(template string, args ...interface{}) { sugared().Debugf(template, args...) }
func Debugw(msg string, kv ...interface{})         { sugared().Debugw(msg, kv...) }
func Infof(template string, args ...interface{})  { sugared().Infof(template, args...) }
func Infow(msg string, kv ...interface{})          { sugared().Infow(msg, kv...) }
func Warnf(template string, args ...interface{})  { sugared().Warnf(template, args...) }
func Warnw(msg string, kv ...interface{})          { sugared().Warnw(msg, kv...) }
func Errorf(template string, args ...interface{}) { sugared().Errorf(template, args...) }
func Errorw(msg string, kv ...interface{})         { sugared().Errorw(msg, kv...) }

func Fatalf(template string, args ...interface{}) {
	sugared().Fatalf(template, args...)
	os.Exit(1)
}
