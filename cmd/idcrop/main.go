package main

import (
	"context"
	"os"
	"syscall"

	"github.com/MeKo-Tech/idcrop/cmd/idcrop/cmd"
	"github.com/MeKo-Tech/idcrop/internal/version"
	"github.com/charmbracelet/fang"
)

// shutdownSignals cancel the command context so a batch stops dispatching
// and still writes its report.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

func main() {
	if err := fang.Execute(
		context.Background(),
		cmd.NewRootCmd(),
		fang.WithVersion(version.String()),
		fang.WithNotifySignal(shutdownSignals...),
	); err != nil {
		os.Exit(1)
	}
}
