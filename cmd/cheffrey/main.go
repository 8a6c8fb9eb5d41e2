package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pribylovaa/go-cheffrey-client/internal/config"
	"github.com/pribylovaa/go-cheffrey-client/internal/logging"
	"github.com/pribylovaa/go-cheffrey-client/internal/pkg/log"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file (overrides CONFIG_PATH env)")
	flag.Usage = func() { printUsage(flag.CommandLine.Output()) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	// .env необязателен; переменные из него не перекрывают уже заданные.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "cheffrey: .env: %v\n", err)
		os.Exit(1)
	}

	cfg := config.MustLoad(configPath)

	lg, closeLog := logging.Setup(cfg.Env, cfg.Log)
	slog.SetDefault(lg)

	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	ctx := log.Into(rootCtx, lg)

	code := run(ctx, cfg, lg, flag.Args())

	rootCancel()
	_ = closeLog()
	os.Exit(code)
}

func run(ctx context.Context, cfg *config.Config, lg *slog.Logger, args []string) int {
	a, err := newApp(ctx, cfg, lg)
	if err != nil {
		lg.Error("init_failed", slog.String("err", err.Error()))
		fmt.Fprintf(os.Stderr, "cheffrey: %v\n", err)
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			lg.Warn("store_close_failed", slog.String("err", err.Error()))
		}
	}()

	if err := dispatch(ctx, a, args); err != nil {
		fmt.Fprintf(os.Stderr, "cheffrey: %v\n", err)
		if errors.Is(err, errUsage) {
			return 2
		}
		return 1
	}

	return 0
}
