package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/ekisa-team/synbench/internal/bench"
	"github.com/ekisa-team/synbench/internal/bridge"
	"github.com/ekisa-team/synbench/internal/catalog"
	"github.com/ekisa-team/synbench/internal/config"
	"github.com/ekisa-team/synbench/internal/env"
	"github.com/ekisa-team/synbench/internal/envvar"
	"github.com/ekisa-team/synbench/internal/fault"
	"github.com/ekisa-team/synbench/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command line and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	defaultConfig := path.Join(config.DefaultConfigPath(), "config.yaml")
	if v := os.Getenv(envvar.SynbenchConfigPath); v != "" {
		defaultConfig = v
	}

	fs := flag.NewFlagSet("synbench", flag.ContinueOnError)
	fs.SetOutput(stdout)
	var (
		flagConfigPath = fs.String("config", defaultConfig, "Path to config file")
		flagSchemaPath = fs.String("schema", "", "Path to schema file (embedded schema when empty)")
		flagBackends   = fs.String("backends", "", "Comma-separated backends to run (all enabled when empty)")
		flagWatch      = fs.Bool("watch", false, "Re-run the benchmark when the config file changes")
		flagLogFile    = fs.String("log-file", "", "Also write logs to this rotating file")
		flagVerbose    = fs.Bool("v", false, "Log at debug level")
		flagNoColor    = fs.Bool("no-color", false, "Disable colored log output")
	)
	fs.Usage = func() {
		fmt.Fprintf(stdout, "Usage: synbench [flags] <model> <image> <number of repeats>\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return int(fault.MissingArgument.Code())
	}
	if fs.NArg() != 3 {
		fs.Usage()
		return int(fault.MissingArgument.Code())
	}
	modelName, imageName := fs.Arg(0), fs.Arg(1)
	repeats, err := strconv.Atoi(fs.Arg(2))
	if err != nil || repeats < 0 {
		fmt.Fprintf(stdout, "Invalid number of repeats %q\n", fs.Arg(2))
		fs.Usage()
		return int(fault.MissingArgument.Code())
	}

	environment := env.FromEnv()
	logOpts := []logger.Option{
		logger.WithWriter(stderr),
		logger.WithLogToFile(*flagLogFile != ""),
		logger.WithLogFile(*flagLogFile),
		logger.WithNoColor(*flagNoColor),
	}
	if *flagVerbose {
		logOpts = append(logOpts, logger.WithLevel(slog.LevelDebug))
	}
	log := logger.New(environment, logOpts...)
	slog.SetDefault(log)

	var only []string
	if *flagBackends != "" {
		for _, name := range strings.Split(*flagBackends, ",") {
			if name = strings.TrimSpace(name); name != "" {
				only = append(only, name)
			}
		}
	}

	runBench := func(cfg *config.Config) int {
		return benchmark(ctx, cfg, only, modelName, imageName, repeats, stdout, log)
	}

	if !*flagWatch {
		cfg, err := config.Load(*flagConfigPath, *flagSchemaPath)
		if err != nil {
			fmt.Fprintf(stdout, "Error: %v\n", err)
			log.Error("Failed to load config", "config", *flagConfigPath, "error", err)
			return int(fault.SessionCreation.Code())
		}
		return runBench(cfg)
	}

	var last atomic.Int32
	watcher, err := config.NewWatcher(*flagConfigPath, *flagSchemaPath, func(cfg *config.Config, err error) {
		if err != nil {
			log.Error("Failed to reload config", "error", err)
			return
		}
		last.Store(int32(runBench(cfg)))
	})
	if err != nil {
		fmt.Fprintf(stdout, "Error: %v\n", err)
		log.Error("Failed to create config watcher", "error", err)
		return int(fault.SessionCreation.Code())
	}
	defer watcher.Close()

	last.Store(int32(runBench(watcher.Snapshot())))
	log.Info("Watching config for changes", "config", *flagConfigPath)

	<-ctx.Done()
	return int(last.Load())
}

// benchmark opens the storage roots, builds the backends and runs them.
func benchmark(ctx context.Context, cfg *config.Config, only []string, modelName, imageName string, repeats int, stdout io.Writer, log *slog.Logger) int {
	br, err := bridge.Open(
		bridge.Mount{HostDir: cfg.Storage.ModelsDir, GuestPath: catalog.ModelsRoot},
		bridge.Mount{HostDir: cfg.Storage.ImagesDir, GuestPath: catalog.ImagesRoot},
	)
	if err != nil {
		fmt.Fprintf(stdout, "Error: %v\n", err)
		log.Error("Failed to open storage", "models", cfg.Storage.ModelsDir, "images", cfg.Storage.ImagesDir, "error", err)
		return int(fault.SessionCreation.Code())
	}
	defer br.Close()
	for _, guest := range br.GuestPaths() {
		host, _ := br.HostDir(guest)
		log.Debug("Storage mounted", "guest", "/"+guest, "host", host)
	}

	catalogs, err := catalog.Load(br.FS(), catalog.Patterns{
		Models: cfg.Storage.ModelsPattern,
		Images: cfg.Storage.ImagesPattern,
	})
	if err != nil {
		fmt.Fprintf(stdout, "Error: %v\n", err)
		log.Error("Failed to scan storage", "error", err)
		return int(fault.SessionCreation.Code())
	}
	log.Debug("Catalogs loaded", "models", catalogs.Models.Len(), "images", catalogs.Images.Len())

	registry, err := buildRegistry(cfg, only, br, catalogs, stdout, log)
	if err != nil {
		fmt.Fprintf(stdout, "Error: %v\n", err)
		log.Error("Failed to create backends", "error", err)
		return int(fault.SessionCreation.Code())
	}

	h := bench.New(catalogs, bench.WithOutput(stdout), bench.WithLogger(log))
	return h.RunAll(ctx, registry, modelName, imageName, repeats)
}
