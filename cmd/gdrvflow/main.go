package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dl-alexandre/gdrvflow/internal/cli"
	"github.com/dl-alexandre/gdrvflow/internal/utils"
	"github.com/joho/godotenv"
)

func main() {
	// A .env file is optional; GDRVFLOW_* variables may come from anywhere.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.Execute(ctx)
	stop()

	if err != nil {
		if _, ok := utils.AsAppError(err); !ok {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.ExitCode(err))
	}
}
