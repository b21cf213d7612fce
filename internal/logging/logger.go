// Package logging provides colored status lines for the CLI and the zap
// logger used by the web server.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Out and Err receive console output. Tests swap them for buffers.
var (
	Out io.Writer = os.Stdout
	Err io.Writer = os.Stderr
)

var (
	infoPrefix    = color.New(color.FgBlue).SprintFunc()
	successPrefix = color.New(color.FgGreen).SprintFunc()
	warnPrefix    = color.New(color.FgYellow).SprintFunc()
	errorPrefix   = color.New(color.FgRed).SprintFunc()
	stepPrefix    = color.New(color.FgCyan).SprintFunc()
)

// Info prints an informational message.
func Info(msg string) {
	fmt.Fprintln(Out, infoPrefix("[INFO]")+" "+msg)
}

// Success prints a success message in green.
func Success(msg string) {
	fmt.Fprintln(Out, successPrefix("[OK]")+" "+msg)
}

// Warn prints a warning in yellow.
func Warn(msg string) {
	fmt.Fprintln(Out, warnPrefix("[WARN]")+" "+msg)
}

// Error prints an error to Err in red.
func Error(msg string) {
	fmt.Fprintln(Err, errorPrefix("[ERROR]")+" "+msg)
}

// Step prints a progress step, the console stand-in for a spinner.
func Step(msg string) {
	fmt.Fprintln(Out, stepPrefix("==>")+" "+msg)
}

// NewLogger builds the server's structured logger.
func NewLogger(debug bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if debug {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
