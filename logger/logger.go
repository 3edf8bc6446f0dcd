// SPDX-License-Identifier: ice License 1.0

package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
)

type (
	Status int
	Logger interface {
		Emit(status Status, message string, args ...any)
	}
	named struct {
		name string
	}
	manager struct {
		out       io.Writer
		minStatus Status
		offset    int
		mx        sync.Mutex
	}
)

const (
	VERBOSE Status = iota
	DEBUG
	INFO
	SUCCESS
	WARNING
	ERROR
	FATAL
)

var (
	global = &manager{out: os.Stderr, minStatus: INFO}
	labels = []string{"V", "D", "I", "✓", "!", "!!", "PANIC"}
	colors = []*color.Color{
		color.New(color.FgWhite, color.Italic),
		color.New(color.FgWhite, color.Italic),
		color.New(color.FgWhite),
		color.New(color.FgHiGreen),
		color.New(color.FgYellow, color.Underline),
		color.New(color.FgHiRed, color.Bold),
		color.New(color.FgHiRed, color.Bold, color.Underline),
	}
)

func (s Status) String() string {
	if s < VERBOSE || s > FATAL {
		return "?"
	}

	return labels[s]
}

func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(s) {
	case "verbose":
		return VERBOSE, nil
	case "debug":
		return DEBUG, nil
	case "", "info":
		return INFO, nil
	case "success":
		return SUCCESS, nil
	case "warning", "warn":
		return WARNING, nil
	case "error":
		return ERROR, nil
	case "fatal":
		return FATAL, nil
	default:
		return INFO, errors.Errorf("unknown log level %q", s)
	}
}

// Get returns a logger whose lines are prefixed with name.
func Get(name string) Logger {
	return &named{name: name}
}

// SetOutput redirects every logger; it returns a func restoring the previous writer.
func SetOutput(w io.Writer) (restore func()) {
	global.mx.Lock()
	defer global.mx.Unlock()
	prev := global.out
	global.out = w

	return func() {
		global.mx.Lock()
		global.out = prev
		global.mx.Unlock()
	}
}

func SetMinStatus(s Status) {
	global.mx.Lock()
	global.minStatus = s
	global.mx.Unlock()
}

func (l *named) Emit(status Status, message string, args ...any) {
	global.emit(status, l.name, message, args...)
}

func (m *manager) emit(status Status, name, message string, args ...any) {
	m.mx.Lock()
	defer m.mx.Unlock()
	if status < m.minStatus {
		return
	}
	if len(name) > m.offset {
		m.offset = len(name)
	}
	padding := strings.Repeat(" ", m.offset-len(name))
	line := fmt.Sprintf("[%s] %s(%s) %s", name, padding, status, fmt.Sprintf(message, args...))
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	if status < VERBOSE || status > FATAL {
		fmt.Fprint(m.out, line)

		return
	}
	colors[status].Fprint(m.out, line)
}
