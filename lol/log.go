// Package lol (log of location) is a leveled logger that prints a high
// precision timestamp and the code location of each log print, so a log line
// can be traced straight back to its source. Levels above the configured
// level are filtered out.
package lol

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/fatih/color"
	"go.uber.org/atomic"
)

const (
	Off = iota
	Fatal
	Error
	Warn
	Info
	Debug
	Trace
)

var LevelNames = []string{"off", "fatal", "error", "warn", "info", "debug",
	"trace"}

type (
	// Ln prints a list of values separated by spaces.
	Ln func(a ...any)
	// F prints with a printf format string.
	F func(format string, a ...any)
	// S prints a spew.Sdump of the values.
	S func(a ...any)
	// C accepts a closure so the rendering cost is only paid when the level
	// is visible.
	C func(closure func() string)
	// Chk prints the error if there is one and reports whether it was non
	// nil, so it can sit inside an if statement.
	Chk func(e error) bool
	// Err constructs an error with fmt.Errorf, logs it, and returns it.
	Err func(format string, a ...any) error

	// LevelPrinter is the set of print primitives available at each level.
	LevelPrinter struct {
		Ln
		F
		S
		C
		Chk
		Err
	}
)

// Log is the printers for each level.
type Log struct {
	F, E, W, I, D, T LevelPrinter
}

// Check is the error checkers for each level.
type Check struct {
	F, E, W, I, D, T Chk
}

// Errorf is the error constructors for each level.
type Errorf struct {
	F, E, W, I, D, T Err
}

// Logger bundles the three facets of one output.
type Logger struct {
	*Log
	*Check
	*Errorf
}

type levelSpec struct {
	name  string
	paint func(a ...any) string
}

var specs = []levelSpec{
	{"", func(a ...any) string { return "" }},
	{"FTL", color.New(color.BgRed, color.FgHiWhite).Sprint},
	{"ERR", color.New(color.FgHiRed).Sprint},
	{"WRN", color.New(color.FgHiYellow).Sprint},
	{"INF", color.New(color.FgHiGreen).Sprint},
	{"DBG", color.New(color.FgHiBlue).Sprint},
	{"TRC", color.New(color.FgHiMagenta).Sprint},
}

var dim = color.New(color.FgBlue).Sprint

// Level is the current log level. Anything above it is not printed.
var Level atomic.Int32

// NoTimeStamp disables the timestamp prefix, for deterministic test output.
var NoTimeStamp atomic.Bool

// Main is the logger used by the chk, log and errorf packages.
var Main = &Logger{}

func init() {
	Main.Log, Main.Check, Main.Errorf = New(os.Stderr)
	SetLoggers(Info)
}

// SetLoggers sets the log level by number.
func SetLoggers(level int) { Level.Store(int32(level)) }

// GetLogLevel returns the level number of a named log level, defaulting to
// info for unrecognized names.
func GetLogLevel(level string) (i int) {
	for i = range LevelNames {
		if level == LevelNames[i] {
			return
		}
	}
	return Info
}

// SetLogLevel sets the log level by name.
func SetLogLevel(level string) { SetLoggers(GetLogLevel(level)) }

func stamp() string {
	if NoTimeStamp.Load() {
		return ""
	}
	return time.Now().Format("2006-01-02T15:04:05.000Z07:00 ")
}

// GetLoc returns the file:line of the caller at the given skip depth.
func GetLoc(skip int) string {
	_, file, line, _ := runtime.Caller(skip)
	return fmt.Sprintf("%s:%d", file, line)
}

func emit(w io.Writer, l int32, text string) {
	fmt.Fprintf(w, "%s%s %s %s\n", dim(stamp()), specs[l].paint(specs[l].name),
		text, dim(GetLoc(3)))
}

func joined(a ...any) (s string) {
	for i := range a {
		s += fmt.Sprint(a[i])
		if i < len(a)-1 {
			s += " "
		}
	}
	return
}

func printer(l int32, w io.Writer) LevelPrinter {
	return LevelPrinter{
		Ln: func(a ...any) {
			if Level.Load() >= l {
				emit(w, l, joined(a...))
			}
		},
		F: func(format string, a ...any) {
			if Level.Load() >= l {
				emit(w, l, fmt.Sprintf(format, a...))
			}
		},
		S: func(a ...any) {
			if Level.Load() >= l {
				emit(w, l, spew.Sdump(a...))
			}
		},
		C: func(closure func() string) {
			if Level.Load() >= l {
				emit(w, l, closure())
			}
		},
		Chk: func(e error) bool {
			if e != nil {
				if Level.Load() >= l {
					emit(w, l, e.Error())
				}
				return true
			}
			return false
		},
		Err: func(format string, a ...any) error {
			if Level.Load() >= l {
				emit(w, l, fmt.Sprintf(format, a...))
			}
			return fmt.Errorf(format, a...)
		},
	}
}

// New creates the printers, checkers and error constructors of a logger
// writing to the given writer.
func New(w io.Writer) (l *Log, c *Check, e *Errorf) {
	l = &Log{
		F: printer(Fatal, w),
		E: printer(Error, w),
		W: printer(Warn, w),
		I: printer(Info, w),
		D: printer(Debug, w),
		T: printer(Trace, w),
	}
	c = &Check{F: l.F.Chk, E: l.E.Chk, W: l.W.Chk, I: l.I.Chk, D: l.D.Chk,
		T: l.T.Chk}
	e = &Errorf{F: l.F.Err, E: l.E.Err, W: l.W.Err, I: l.I.Err, D: l.D.Err,
		T: l.T.Err}
	return
}
