package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

const timeLayout = "2006-01-02 15:04:05"

var (
	mu           sync.Mutex
	currentLevel = LevelInfo
	format       = FormatText
	output       io.Writer = os.Stdout
	colorize     = isTerminal(os.Stdout)

	levelColors = map[Level]*color.Color{
		LevelDebug: color.New(color.FgHiBlack),
		LevelInfo:  color.New(color.FgCyan),
		LevelWarn:  color.New(color.FgYellow),
		LevelError: color.New(color.FgRed, color.Bold),
	}
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name (case-insensitive) to a Level.
func ParseLevel(level string) (Level, error) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// SetLevel sets the minimum level. Unknown names are ignored.
func SetLevel(level string) {
	l, err := ParseLevel(level)
	if err != nil {
		return
	}
	mu.Lock()
	currentLevel = l
	mu.Unlock()
}

// SetOutput redirects log lines to w. Colors are only used when w is a
// terminal.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	colorize = isTerminal(w)
}

// Configure applies level, format ("text" or "json") and output ("stdout",
// "stderr" or a file path opened for append).
func Configure(level, logFormat, out string) error {
	l, err := ParseLevel(level)
	if err != nil {
		return err
	}

	logFormat = strings.ToLower(logFormat)
	if logFormat == "" {
		logFormat = FormatText
	}
	if logFormat != FormatText && logFormat != FormatJSON {
		return fmt.Errorf("unknown log format %q", logFormat)
	}

	w, err := openOutput(out)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	currentLevel = l
	format = logFormat
	output = w
	colorize = isTerminal(w)
	return nil
}

func openOutput(out string) (io.Writer, error) {
	switch strings.ToLower(out) {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type jsonLine struct {
	Time  string `json:"time"`
	Level string `json:"level"`
	Msg   string `json:"msg"`
}

func log(level Level, msgFormat string, v ...any) {
	mu.Lock()
	defer mu.Unlock()

	if level < currentLevel {
		return
	}

	now := time.Now()
	message := fmt.Sprintf(msgFormat, v...)

	if format == FormatJSON {
		line, err := json.Marshal(jsonLine{
			Time:  now.Format(time.RFC3339),
			Level: level.String(),
			Msg:   message,
		})
		if err != nil {
			return
		}
		_, _ = output.Write(append(line, '\n'))
		return
	}

	label := level.String()
	if colorize {
		c := levelColors[level]
		c.EnableColor()
		label = c.Sprint(label)
	}
	_, _ = fmt.Fprintf(output, "[%s] [%s] %s\n", now.Format(timeLayout), label, message)
}

func Debug(format string, v ...any) {
	log(LevelDebug, format, v...)
}

func Info(format string, v ...any) {
	log(LevelInfo, format, v...)
}

func Warn(format string, v ...any) {
	log(LevelWarn, format, v...)
}

func Error(format string, v ...any) {
	log(LevelError, format, v...)
}
