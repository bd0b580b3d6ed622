package ui

import (
	"fmt"
	"io"
	"os"
)

// Output destinations; tests point these elsewhere.
var (
	Stdout io.Writer = os.Stdout
	Stderr io.Writer = os.Stderr
)

func OK(msg string)   { fmt.Fprintln(Stdout, current.Success.Render(current.SymOK+" "+msg)) }
func Fail(msg string) { fmt.Fprintln(Stderr, current.Error.Render(current.SymFail+" "+msg)) }
func Warn(msg string) { fmt.Fprintln(Stderr, current.Pending.Render(current.SymWarn+" "+msg)) }
func Info(msg string) { fmt.Fprintln(Stdout, current.Muted.Render(current.SymInfo+" "+msg)) }
