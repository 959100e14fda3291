package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-render/mode"
	"github.com/khaledhikmat/vs-render/pipeline"
	"github.com/khaledhikmat/vs-render/service/config"
	"github.com/khaledhikmat/vs-render/service/data"
	"github.com/khaledhikmat/vs-render/service/lgr"
)

var modeProcessors = map[string]mode.Processor{
	"render":     mode.Render,
	"experiment": mode.Experiment,
}

func main() {
	os.Exit(run())
}

func run() int {
	rootCtx := context.Background()
	canxCtx, canxFn := context.WithCancel(rootCtx)
	defer canxFn()

	// Load env vars if we are in DEV mode and a .env file is around
	if os.Getenv("RUN_TIME_ENV") == "dev" || os.Getenv("RUN_TIME_ENV") == "" {
		if _, err := os.Stat(".env"); err == nil {
			if err := godotenv.Load(); err != nil {
				lgr.Logger.Error("error loading .env file", slog.Any("error", xerrors.New(err.Error())))
				return 1
			}
		}
	}
	lgr.Setup()

	// Hook up a signal handler to cancel the context
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			lgr.Logger.Info(
				"received kill signal",
				slog.Any("signal", sig),
			)
			canxFn()
		case <-canxCtx.Done():
		}
	}()

	modeType := "render"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		modeType = args[0]
		args = args[1:]
	}

	modeProc, ok := modeProcessors[modeType]
	if !ok {
		lgr.Logger.Error("invalid mode", slog.String("mode", modeType))
		return 1
	}

	// Create the services needed for the mode processor
	// They can be overridden by the mode processor with different implementations
	cfgSvc := config.NewHardCoded()
	svcs := pipeline.ServicesFactory{
		CfgSvc:  cfgSvc,
		DataSvc: data.NewFiles(),
	}

	// Buffered so the mode processor never blocks if we stop waiting
	modeProcResult := make(chan error, 1)

	go func() {
		modeProcResult <- modeProc(canxCtx, svcs, args)
	}()

	var modeErr error
	select {
	case modeErr = <-modeProcResult:
		goto resume

	case <-canxCtx.Done():
		lgr.Logger.Info(
			"render context cancelled, waiting for the mode processor",
		)
	}

	// The mode processor closes the video on cancellation; give it a bounded
	// amount of time to do so
	{
		waitOnShutdown := time.Duration(cfgSvc.GetModeMaxShutdownTime()) * time.Second
		timer := time.NewTimer(waitOnShutdown)
		defer timer.Stop()

		select {
		case modeErr = <-modeProcResult:
		case <-timer.C:
			lgr.Logger.Info(
				"shutdown waiting period expired. Exiting now",
				slog.Duration("period", waitOnShutdown),
			)
			return 1
		}
	}

resume:
	if modeErr != nil {
		lgr.Logger.Error(
			"mode processor exited",
			slog.String("mode", modeType),
			slog.Any("error", lgr.Traced(modeErr)),
		)
		return 1
	}

	return 0
}
