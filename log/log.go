// Package log is the Ambient Stack logging wrapper of SPEC_FULL.md §A.1: a
// package-level *logs.BeeLogger configured once at startup, with named
// level constants and a call-site TraceLog helper. Grounded on
// _examples/copernet-copernicus/log/log.go's own beego/logs wrapper; all
// four components (Package Scorer, Template Assembler, Nonce Searcher,
// Miner Supervisor) log through this package rather than fmt.Println or
// the standard library's log package.
package log

import (
	"encoding/json"
	"fmt"
	"path"
	"runtime"

	"github.com/astaxie/beego/logs"
)

const (
	Emergency = logs.LevelEmergency
	Alert     = logs.LevelAlert
	Critical  = logs.LevelCritical
	Error     = logs.LevelError
	Warn      = logs.LevelWarn
	Notice    = logs.LevelNotice
	Info      = logs.LevelInfo
	Debug     = logs.LevelDebug
)

var logger = logs.NewLogger()

func init() {
	logger.EnableFuncCallDepth(true)
	logger.SetLogger(logs.AdapterConsole)
}

type fileConfig struct {
	Filename string `json:"filename"`
	Level    int    `json:"level,omitempty"`
	Rotate   bool   `json:"rotate,omitempty"`
	Daily    bool   `json:"daily,omitempty"`
}

// Init configures the package logger to write to dataDir/debug.log at the
// given level, in addition to the console adapter registered at package
// init. Called once at startup from the data directory resolved by conf.
func Init(dataDir string, level int) error {
	cfg, err := json.Marshal(fileConfig{
		Filename: path.Join(dataDir, "debug.log"),
		Level:    level,
		Rotate:   true,
		Daily:    true,
	})
	if err != nil {
		return err
	}
	return logger.SetLogger(logs.AdapterFile, string(cfg))
}

// levelNames maps the -debuglevel CLI surface of SPEC_FULL.md §6 onto the
// beego/logs level constants.
var levelNames = map[string]int{
	"emergency": Emergency,
	"alert":     Alert,
	"critical":  Critical,
	"error":     Error,
	"warn":      Warn,
	"notice":    Notice,
	"info":      Info,
	"debug":     Debug,
}

// LevelFromName resolves a -debuglevel string to its beego/logs level,
// defaulting to Info for an unrecognized name.
func LevelFromName(name string) int {
	if level, ok := levelNames[name]; ok {
		return level
	}
	return Info
}

// TraceLog reports the calling function and line, for attributing a log
// line back to its call site without duplicating that information in every
// format string.
func TraceLog() string {
	pc := make([]uintptr, 1)
	runtime.Callers(2, pc)
	f := runtime.FuncForPC(pc[0])
	_, line := f.FileLine(pc[0])
	return fmt.Sprintf("%s:%d", f.Name(), line)
}

func Emergencyf(format string, v ...interface{}) { logger.Emergency(format, v...) }
func Alertf(format string, v ...interface{})     { logger.Alert(format, v...) }
func Criticalf(format string, v ...interface{})  { logger.Critical(format, v...) }
func Errorf(format string, v ...interface{})     { logger.Error(format, v...) }
func Warnf(format string, v ...interface{})      { logger.Warn(format, v...) }
func Noticef(format string, v ...interface{})    { logger.Notice(format, v...) }
func Infof(format string, v ...interface{})      { logger.Info(format, v...) }
func Debugf(format string, v ...interface{})     { logger.Debug(format, v...) }
