package main

import (
	"context"
	"os"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/destructatron/waytray/pkg/config"
	"github.com/destructatron/waytray/pkg/daemon"
	"github.com/destructatron/waytray/pkg/logging"
	"github.com/destructatron/waytray/pkg/module"
	"github.com/destructatron/waytray/pkg/modules/audio"
	"github.com/destructatron/waytray/pkg/modules/battery"
	"github.com/destructatron/waytray/pkg/modules/clock"
	"github.com/destructatron/waytray/pkg/modules/network"
	"github.com/destructatron/waytray/pkg/modules/powerprofiles"
	"github.com/destructatron/waytray/pkg/modules/scripts"
	"github.com/destructatron/waytray/pkg/modules/sysinfo"
	"github.com/destructatron/waytray/pkg/modules/tray"
	"github.com/destructatron/waytray/pkg/modules/weather"
	"github.com/destructatron/waytray/pkg/notify"
	"github.com/destructatron/waytray/pkg/service"
)

var (
	rootCmd = &cobra.Command{
		Use:   "waytrayd",
		Short: "Waytray Daemon",
		Long:  "System tray aggregator daemon for Wayland panels",
		Run:   runDaemon,
	}

	configPath string
	logFile    string
	devMode    bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the config file (default is ~/.config/waytray/config.toml)")
	rootCmd.PersistentFlags().StringVarP(&logFile, "log-file", "l", "", "write logs to this file with rotation instead of stderr")
	rootCmd.PersistentFlags().BoolVarP(&devMode, "dev", "d", false, "run in debug mode")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) {
	logger := newLogger()

	if configPath == "" {
		path, err := config.DefaultPath()
		if err != nil {
			logger.Fatalw("could not resolve config path", "error", err)
		}
		configPath = path
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalw("could not load config", "path", configPath, "error", err)
	}

	sessionConn, err := dbus.ConnectSessionBus()
	if err != nil {
		logger.Fatalw("could not connect to the session bus", "error", err)
	}
	defer sessionConn.Close()

	systemConn, err := dbus.ConnectSystemBus()
	if err != nil {
		logger.Warnw("no system bus, battery and power profile modules unavailable", "error", err)
		systemConn = nil
	} else {
		defer systemConn.Close()
	}

	registry := module.NewRegistry(logger, notify.New(sessionConn, logger, cfg.Notifications))

	trayModule := tray.New(sessionConn, logger)
	registry.Register("tray", tray.FactoryFor(trayModule))
	registry.Register("clock", clock.Factory(logger))
	registry.Register("system", sysinfo.Factory(logger))
	registry.Register("network", network.Factory(logger))
	registry.Register("weather", weather.Factory(logger))
	registry.Register("audio", audio.Factory(logger))
	registry.Register("scripts", scripts.Factory(logger))
	if systemConn != nil {
		registry.Register("battery", battery.Factory(systemConn, logger))
		registry.Register("power_profiles", powerprofiles.Factory(systemConn, logger))
	}

	dm := daemon.New(
		&registryService{registry: registry, cfg: cfg},
		service.New(sessionConn, logger, registry, trayModule, configPath),
		config.NewWatcher(configPath, registry, logger),
	)
	dm.Logger = logger
	if err := dm.Run(context.Background()); err != nil {
		logger.Fatalw("daemon exited with error", "error", err)
	}
}

func newLogger() *zap.SugaredLogger {
	if logFile != "" {
		return logging.NewRotating(logFile, devMode)
	}
	return logging.New(devMode)
}

// registryService runs the module registry inside the daemon lifecycle.
type registryService struct {
	registry *module.Registry
	cfg      *config.Config
}

func (s *registryService) Serve(ctx context.Context) {
	s.registry.Start(ctx, s.cfg)
	<-ctx.Done()
}

func (s *registryService) TerminateDaemon() error {
	s.registry.Shutdown()
	return nil
}
