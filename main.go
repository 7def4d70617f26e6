package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"sdprobe/cmd"
	"sdprobe/core"
	"sdprobe/shutdown"
)

func main() {
	ctx, watcher := shutdown.Watch(context.Background(), nil, func() {
		os.Exit(core.ExitCodeSIGINT)
	})

	err := cmd.NewCLI().ExecuteContext(ctx)
	code := watcher.ExitCode(err)
	watcher.Stop()

	if err != nil {
		printError(os.Stderr, err, code)
	}
	os.Exit(code)
}

// printError reports err, which ends the process with code.
func printError(w io.Writer, err error, code int) {
	red := color.New(color.FgRed, color.Bold)
	if cfgErr, ok := core.IsConfigError(err); ok {
		red.Fprintf(w, "Error: %s\n", cfgErr.Message)
		if cfgErr.Action != "" {
			fmt.Fprintf(w, "  %s\n", cfgErr.Action)
		}
		return
	}
	if core.IsSignalExit(code) {
		fmt.Fprintf(w, "Stopped: %s\n", core.ExitCodeName(code))
		if errors.Is(err, context.Canceled) {
			return
		}
	}
	red.Fprintf(w, "Error: %v\n", err)
}
