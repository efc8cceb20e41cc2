package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"terriyaki/engine"
	"terriyaki/engine/alarms"
	"terriyaki/engine/bridge"
	"terriyaki/engine/config"
	"terriyaki/engine/db"
	"terriyaki/engine/detector"
	"terriyaki/www"
)

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

var opts struct {
	logger struct {
		level string
	}
	configPath string
}

func main() {
	// parse command line options
	flag.StringVar(&opts.logger.level, "log-level", "info", "Set the log level")
	flag.StringVar(&opts.configPath, "config", "./config/terriyaki.conf", "Path to the daemon configuration")
	flag.Parse()

	logLevel, ok := logLevels[opts.logger.level]
	if !ok {
		log.Fatalf("Invalid log level: %s", opts.logger.level)
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))

	if err := run(opts.configPath); err != nil {
		log.Fatalln(err)
	}
	slog.Info("shut down cleanly")
}

// run owns every resource so the deferred cleanups happen before main exits.
func run(configPath string) error {
	conf := config.ConfigSettings{}
	if err := conf.SetConfig(configPath); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := db.Connect(conf.RequiredSettings.DBConnectURL); err != nil {
		return fmt.Errorf("failed to connect to DB: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := alarmStore(ctx, &conf)
	if err != nil {
		return fmt.Errorf("failed to set up alarm store: %w", err)
	}

	syncStore := config.NewSyncStore(conf.MiscSettings.SyncFile)
	if err := syncStore.Load(); err != nil {
		return fmt.Errorf("failed to load sync settings: %w", err)
	}

	hub := bridge.NewHub()
	se := engine.NewEngine(&conf, syncStore, store, hub)
	detectors := detector.NewManager(ctx, hub, detector.DefaultTimings())

	// a failing engine takes the web server down with it
	engineErr := make(chan error, 1)
	go func() {
		err := se.Start(ctx)
		if err != nil {
			slog.Error("badge engine stopped", "error", err)
		}
		stop()
		engineErr <- err
	}()

	// start web server
	router := www.Router{Config: &conf, Engine: se, Hub: hub, Detectors: detectors}
	serveErr := router.Start(ctx)
	stop()

	if err := <-engineErr; err != nil {
		return fmt.Errorf("badge engine failed: %w", err)
	}
	if serveErr != nil {
		return fmt.Errorf("web server failed: %w", serveErr)
	}
	return nil
}

func alarmStore(ctx context.Context, conf *config.ConfigSettings) (alarms.Store, error) {
	switch conf.MiscSettings.AlarmBackend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     conf.MiscSettings.RedisAddr,
			Password: conf.MiscSettings.RedisPassword,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, err
		}
		slog.Info("Keeping alarms in redis", "addr", conf.MiscSettings.RedisAddr)
		return alarms.NewRedisStore(rdb), nil
	case "memory":
		slog.Warn("Alarms are kept in memory and will not survive a restart")
		return alarms.NewMemoryStore(), nil
	default:
		return alarms.DBStore{}, nil
	}
}
