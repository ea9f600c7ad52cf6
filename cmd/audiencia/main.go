package main

import (
	"fmt"
	"log/slog"
	"os"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/hitoshi/audiencia/internal/app"
)

func slogPrintf(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "maxprocs"))
}

func main() {
	// コンテナのCPUクォータに合わせてGOMAXPROCSを設定する
	if _, err := maxprocs.Set(maxprocs.Logger(slogPrintf)); err != nil {
		slog.Error("failed to set GOMAXPROCS", slog.String("error", err.Error()))
	}

	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
