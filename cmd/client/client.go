package client

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/dfsync/cmd/util"
	"github.com/sidkik/dfsync/pkg/config"
	"github.com/sidkik/dfsync/pkg/errors"
	"github.com/sidkik/dfsync/pkg/fswatch"
	"github.com/sidkik/dfsync/pkg/sync"
	syncClient "github.com/sidkik/dfsync/pkg/sync/client"
)

// New creates a new `client` command.
func New() *cobra.Command {
	var configPath string
	var save bool
	var opts config.Client
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Keep a local directory in sync with a dfsync server",
		Long: "Log in to a dfsync server and mirror a local directory.\n" +
			"Local changes are pushed, changes by other clients are pulled,\n" +
			"and deletes are voted on by every connected client.",
		Run: func(cmd *cobra.Command, _ []string) {
			cfg, err := loadConfig(cmd, configPath, opts)
			if err != nil {
				util.HandleFatalError(err)
			}

			if save {
				if err := saveConfig(configPath, cfg); err != nil {
					util.HandleFatalError(err)
				}
				log.WithField("path", configPath).Info("Saved client config")
			}

			if err := run(cfg); err != nil {
				util.HandleFatalError(err)
			}
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath,
		"The path to the dfsync config")
	cmd.Flags().StringVar(&opts.ServerHost, "server", "",
		"The address of the dfsync server")
	cmd.Flags().IntVar(&opts.ServerPort, "port", 0,
		"The control port of the dfsync server")
	cmd.Flags().StringVarP(&opts.Username, "user", "u", "",
		"The name to log in with")
	cmd.Flags().StringVar(&opts.Directory, "dir", "",
		"The local directory to keep in sync")
	cmd.Flags().StringVar(&opts.Vote, "vote", "",
		"How to vote on deletes requested by other clients (yes, no, or ask)")
	cmd.Flags().BoolVar(&opts.PushExisting, "push-existing", false,
		"Push the files already in the directory after logging in")
	cmd.Flags().BoolVar(&save, "save", false,
		"Write the resulting client settings to the config file")
	return cmd
}

func loadConfig(cmd *cobra.Command, path string, opts config.Client) (config.Client, error) {
	cfg, err := config.ParseConfig(path)
	if err != nil {
		return config.Client{}, errors.WithContext(err, "parse config")
	}

	client := cfg.Client
	flags := cmd.Flags()
	if flags.Changed("server") {
		client.ServerHost = opts.ServerHost
	}
	if flags.Changed("port") {
		client.ServerPort = opts.ServerPort
	}
	if flags.Changed("user") {
		client.Username = opts.Username
	}
	if flags.Changed("dir") {
		client.Directory = opts.Directory
	}
	if flags.Changed("vote") {
		client.Vote = opts.Vote
	}
	if flags.Changed("push-existing") {
		client.PushExisting = opts.PushExisting
	}

	if err := client.Validate(); err != nil {
		return config.Client{}, err
	}

	if err := config.ValidateDirectory(client.Directory); err != nil {
		return config.Client{}, err
	}
	return client, nil
}

// saveConfig replaces the client section of the config at `path`, keeping
// the server section.
func saveConfig(path string, client config.Client) error {
	cfg, err := config.ParseConfig(path)
	if err != nil {
		return errors.WithContext(err, "parse config")
	}

	cfg.Client = client
	if err := config.WriteConfig(path, cfg); err != nil {
		return errors.WithContext(err, "save config")
	}
	return nil
}

func run(cfg config.Client) error {
	storage := sync.NewOsStorage(cfg.Directory)
	agent := newAgent(storage, cfg.Vote, os.Stdout, util.PromptYesOrNo)
	agent.pushExisting = cfg.PushExisting

	addr := net.JoinHostPort(cfg.ServerHost, strconv.Itoa(cfg.ServerPort))
	engine, err := syncClient.Dial(addr, storage, agent)
	if err != nil {
		return errors.NewFriendlyError(
			"Failed to connect to the dfsync server at %s.\n"+
				"Is `dfsync server` running?\n\n"+
				"The full error was: %s", addr, err)
	}
	defer engine.Close()
	agent.engine = engine

	watcher, err := fswatch.Watch(cfg.Directory)
	if err != nil {
		return errors.WithContext(err, "watch directory")
	}
	defer watcher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go cancelOnSignal(cancel)

	engineErr := make(chan error, 1)
	go func() {
		defer util.HandlePanic()
		engineErr <- engine.Run(ctx)
		cancel()
	}()

	if err := engine.Login(cfg.Username); err != nil {
		return errors.WithContext(err, "login")
	}

	if err := agent.Run(ctx, watcher.Events()); err != nil {
		return err
	}

	// Let the server release our name and push lock right away.
	if engine.LoggedIn() {
		if err := engine.End(); err != nil {
			log.WithError(err).Debug("Failed to end session")
		}
	}

	cancel()
	if err := <-engineErr; err != nil {
		return errors.WithContext(err, "connection to server")
	}
	return nil
}

func cancelOnSignal(cancel context.CancelFunc) {
	defer util.HandlePanic()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	<-signals
	log.Info("Shutting down")
	cancel()
}
