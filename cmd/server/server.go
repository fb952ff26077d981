package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/dfsync/cmd/util"
	"github.com/sidkik/dfsync/pkg/audit"
	"github.com/sidkik/dfsync/pkg/config"
	"github.com/sidkik/dfsync/pkg/errors"
	"github.com/sidkik/dfsync/pkg/sync"
	"github.com/sidkik/dfsync/pkg/sync/server"
)

// New creates a new `server` command.
func New() *cobra.Command {
	var configPath string
	var save bool
	var opts config.Server
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the dfsync coordination server",
		Long: "Serve a shared directory to dfsync clients. The server grants\n" +
			"pushes one client at a time, and asks the other clients to vote\n" +
			"on every delete.",
		Run: func(cmd *cobra.Command, _ []string) {
			cfg, err := loadConfig(cmd, configPath, opts)
			if err != nil {
				util.HandleFatalError(err)
			}

			if save {
				if err := saveConfig(configPath, cfg); err != nil {
					util.HandleFatalError(err)
				}
				log.WithField("path", configPath).Info("Saved server config")
			}

			if err := run(cfg); err != nil {
				util.HandleFatalError(err)
			}
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath,
		"The path to the dfsync config")
	cmd.Flags().StringVar(&opts.CommandHost, "host", "",
		"The address to listen for clients on")
	cmd.Flags().IntVarP(&opts.CommandPort, "port", "p", 0,
		"The port to listen for clients on")
	cmd.Flags().StringVar(&opts.DataHost, "data-host", "",
		"The address to open data channels on. Defaults to --host")
	cmd.Flags().IntVar(&opts.MaxClients, "max-clients", 0,
		"The maximum number of logged in clients")
	cmd.Flags().StringVar(&opts.Directory, "dir", "",
		"The shared directory")
	cmd.Flags().StringVar(&opts.AuditLog, "audit-log", "",
		"A file to append JSON audit events to")
	cmd.Flags().BoolVar(&save, "save", false,
		"Write the resulting server settings to the config file")
	return cmd
}

func loadConfig(cmd *cobra.Command, path string, opts config.Server) (config.Server, error) {
	cfg, err := config.ParseConfig(path)
	if err != nil {
		return config.Server{}, errors.WithContext(err, "parse config")
	}

	server := cfg.Server
	flags := cmd.Flags()
	if flags.Changed("host") {
		server.CommandHost = opts.CommandHost
	}
	if flags.Changed("port") {
		server.CommandPort = opts.CommandPort
	}
	if flags.Changed("data-host") {
		server.DataHost = opts.DataHost
	}
	if flags.Changed("max-clients") {
		server.MaxClients = opts.MaxClients
	}
	if flags.Changed("dir") {
		server.Directory = opts.Directory
	}
	if flags.Changed("audit-log") {
		server.AuditLog = opts.AuditLog
	}

	if err := server.Validate(); err != nil {
		return config.Server{}, err
	}

	if err := config.ValidateDirectory(server.Directory); err != nil {
		return config.Server{}, err
	}
	return server, nil
}

// saveConfig replaces the server section of the config at `path`, keeping
// the client section.
func saveConfig(path string, server config.Server) error {
	cfg, err := config.ParseConfig(path)
	if err != nil {
		return errors.WithContext(err, "parse config")
	}

	cfg.Server = server
	if err := config.WriteConfig(path, cfg); err != nil {
		return errors.WithContext(err, "save config")
	}
	return nil
}

func run(cfg config.Server) error {
	if cfg.AuditLog != "" {
		f, err := os.OpenFile(cfg.AuditLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return errors.WithContext(err, "open audit log")
		}
		defer f.Close()
		audit.SetOutput(f)
	}

	storage := sync.NewOsStorage(cfg.Directory)
	coordinator, err := server.New(cfg, storage, server.NewLogObserver(audit.Log))
	if err != nil {
		return errors.NewFriendlyError(
			"Failed to start the dfsync server on %s:%d.\n"+
				"Is another server already running?\n\n"+
				"The full error was: %s", cfg.CommandHost, cfg.CommandPort, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		defer util.HandlePanic()

		signals := make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
		select {
		case <-signals:
			log.Info("Shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	log.WithField("directory", cfg.Directory).Info("Serving shared directory")
	return coordinator.Serve(ctx)
}
