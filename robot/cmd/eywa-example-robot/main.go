package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/neyho/eywa-go/files"
	"github.com/neyho/eywa-go/robot"
	"github.com/neyho/eywa-go/shared"
	"github.com/neyho/eywa-go/shared/config"
	"github.com/neyho/eywa-go/task"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	logerConfig := zap.NewProductionConfig()
	logerConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logerConfig.Level = level
	// stdout carries the protocol
	logerConfig.OutputPaths = []string{"stderr"}
	logerConfig.ErrorOutputPaths = []string{"stderr"}
	logger, err := logerConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	configYAML := flag.String("config-yaml", "", "Path to YAML configuration file")
	flag.Parse()
	if *configYAML != "" {
		os.Setenv(config.EnvConfigPath, *configYAML)
	}

	cfg, err := config.Load(logger)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	defer cfg.Close()
	applyLogLevel(logger, level, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalCh
		logger.Info("Received termination signal")
		cancel()
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	client, err := robot.New(
		robot.WithLogger(logger),
		robot.WithConfig(cfg),
		robot.WithRegisterer(registry),
		robot.WithExit(func(code int) {
			logger.Sync()
			os.Exit(code)
		}),
	)
	if err != nil {
		logger.Fatal("Failed to create robot client", zap.Error(err))
	}

	if _, err := startMetrics(ctx, logger, cfg, registry, client.StatusHandler()); err != nil {
		logger.Fatal("Failed to start metrics listener", zap.Error(err))
	}

	if yamlCfg, ok := cfg.(*config.YamlConfig); ok {
		go func() {
			err := yamlCfg.Watch(ctx, func() {
				applyLogLevel(logger, level, cfg)
				if err := client.ApplyConfig(cfg); err != nil {
					logger.Warn("Failed to apply configuration", zap.Error(err))
				}
			})
			if err != nil {
				logger.Warn("Config watch stopped", zap.Error(err))
			}
		}()
	}

	client.Handle("robot.ping", func(msg *shared.Message) (interface{}, error) {
		return map[string]interface{}{"pong": time.Now().UTC()}, nil
	})
	client.Start()

	go func() {
		select {
		case <-client.Session.InputDone():
			logger.Warn("Orchestrator closed the pipe")
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := work(ctx, client); err != nil {
		logger.Error("Task failed", zap.Error(err))
		status := task.StatusError
		if errors.Is(err, context.Canceled) {
			status = task.StatusException
		}
		client.Task.Close(status)
		return
	}
	client.Task.Close(task.StatusSuccess)
}

// work reads the task, stores a small result file and reports it.
func work(ctx context.Context, client *robot.Client) error {
	log := client.TaskLogger(zapcore.InfoLevel)
	if err := client.Task.Update(task.StatusProcessing); err != nil {
		return err
	}

	var current map[string]interface{}
	if err := client.Task.Get(ctx, &current); err != nil {
		return err
	}
	log.Info("Task received", zap.Int("fields", len(current)))

	content := fmt.Sprintf("processed at %s\n", time.Now().UTC().Format(time.RFC3339))
	in := files.FileInput{
		Name:   "example-robot-result.txt",
		EUUID:  uuid.NewString(),
		Folder: files.RootFolder(),
	}
	s, err := client.Files.Upload(ctx, files.FromString(content), in, files.WithProgress(func(transferred, total int64) {
		client.Logger().Debug("Upload progress", zap.Int64("transferred", transferred), zap.Int64("total", total))
	}))
	if err != nil {
		return err
	}
	log.Info("Result uploaded", zap.String("euuid", s.Input.EUUID), zap.Int64("bytes", s.BytesTransferred))

	sheet := task.NewSheet("Results", "file", "bytes", "state")
	sheet.AddRow(s.Input.Name, s.BytesTransferred, string(s.State))
	table := task.NewTable("Example robot")
	table.AddSheet(sheet)
	return client.Task.Report("Example robot finished", table, "")
}

func applyLogLevel(logger *zap.Logger, level zap.AtomicLevel, cfg config.IConfig) {
	logLevel, err := cfg.LogLevel()
	if err != nil {
		logger.Warn("Failed to get log level from config, using default", zap.Error(err))
		return
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(logLevel)); err != nil {
		logger.Warn("Invalid log level in config, using default", zap.String("level", logLevel), zap.Error(err))
		return
	}
	if level.Level() != l {
		logger.Info("Updating log level", zap.String("level", logLevel))
		level.SetLevel(l)
	}
}

// startMetrics launches the /metrics and /status listener when the config
// names an address. It reports whether a listener was started.
func startMetrics(ctx context.Context, logger *zap.Logger, cfg config.IConfig, registry *prometheus.Registry, status http.HandlerFunc) (bool, error) {
	addr, err := cfg.MetricsAddress()
	if err != nil {
		return false, fmt.Errorf("failed to get metrics address: %w", err)
	}
	if addr == "" {
		return false, nil
	}
	go serveMetrics(ctx, logger, addr, registry, status)
	return true, nil
}

func serveMetrics(ctx context.Context, logger *zap.Logger, addr string, registry *prometheus.Registry, status http.HandlerFunc) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/status", status)
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("Serving metrics", zap.String("address", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Metrics listener failed", zap.Error(err))
	}
}
