/*
github.com/tcrain/stm - Stake-based threshold multisignature certificates.
Copyright (C) 2020 The project authors - tcrain

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.

*/
/*
Basic logging functionality, backed by a zap sugared logger.
*/
package logging

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tcrain/stm/config"
)

var (
	mutex  sync.RWMutex
	level  = zap.NewAtomicLevel()
	logger *zap.SugaredLogger
)

// setup the logger from the config defaults
func init() {
	Setup(config.LoggingType, config.LoggingFmtLevel)
}

func zapLevel(lvl config.LogFmtLevel) zapcore.Level {
	switch lvl {
	case config.LOGERROR:
		return zapcore.ErrorLevel
	case config.LOGWARNING:
		return zapcore.WarnLevel
	case config.LOGINFO:
		return zapcore.InfoLevel
	case config.LOGDEBUG:
		return zapcore.DebugLevel
	default:
		panic("Invalid logging level")
	}
}

// Setup replaces the global logger, it is called by the cmd tools once the node config is read.
func Setup(lt config.Logtype, lvl config.LogFmtLevel) {
	level.SetLevel(zapLevel(lvl))
	var enc zapcore.Encoder
	switch lt {
	case config.ZAPCONSOLE:
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	case config.ZAPJSON:
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(encCfg)
	case config.NOLOG:
		setCore(zapcore.NewNopCore())
		return
	default:
		panic("Invalid logging type")
	}
	setCore(zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level))
}

// SetLevel changes the level of the global logger.
func SetLevel(lvl config.LogFmtLevel) {
	level.SetLevel(zapLevel(lvl))
}

// ReplaceCore installs core as the output of the logger and returns a function restoring the previous one.
// It is used by tests to observe the logs.
func ReplaceCore(core zapcore.Core) func() {
	mutex.RLock()
	prev := logger
	mutex.RUnlock()
	setCore(core)
	return func() {
		mutex.Lock()
		logger = prev
		mutex.Unlock()
	}
}

func setCore(core zapcore.Core) {
	l := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
	mutex.Lock()
	logger = l
	mutex.Unlock()
}

func get() *zap.SugaredLogger {
	mutex.RLock()
	defer mutex.RUnlock()
	return logger
}

// Sync flushes any buffered log entries.
func Sync() {
	_ = get().Sync()
}

// Printf logs args accoring to format, regardless of the level.
func Printf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stdout, format+"\n", args...)
}

// Print logs args, regardless of the level.
func Print(args ...interface{}) {
	fmt.Fprintln(os.Stdout, args...)
}

// Errorf logs an error args using format.
func Errorf(format string, args ...interface{}) {
	get().Errorf(format, args...)
}

// Error logs an error args.
func Error(args ...interface{}) {
	get().Error(args...)
}

// Warningf logs a warning args using format.
func Warningf(format string, args ...interface{}) {
	get().Warnf(format, args...)
}

// Warning logs a warning args.
func Warning(args ...interface{}) {
	get().Warn(args...)
}

// Infof logs an info message args using format.
func Infof(format string, args ...interface{}) {
	get().Infof(format, args...)
}

// Info logs an info message args.
func Info(args ...interface{}) {
	get().Info(args...)
}

// Debugf logs a debug message args using format.
func Debugf(format string, args ...interface{}) {
	get().Debugf(format, args...)
}

// Infow logs an info message with structured key value pairs.
func Infow(msg string, keysAndValues ...interface{}) {
	get().Infow(msg, keysAndValues...)
}

// Warnw logs a warning with structured key value pairs.
func Warnw(msg string, keysAndValues ...interface{}) {
	get().Warnw(msg, keysAndValues...)
}
