package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/dfsync/cmd/client"
	"github.com/sidkik/dfsync/cmd/server"
	"github.com/sidkik/dfsync/cmd/util"
	"github.com/sidkik/dfsync/cmd/version"
	"github.com/sidkik/dfsync/pkg/audit"
)

// verboseLogKey is the environment variable used to enable verbose logging.
// When it's set to `true`, Debug events are logged, rather than just Info and
// above.
const verboseLogKey = "DFSYNC_LOG_VERBOSE"

// Execute runs the main CLI process.
func Execute() {
	if os.Getenv(verboseLogKey) == "true" {
		log.SetLevel(log.DebugLevel)
	}

	rootCmd := &cobra.Command{
		Use:          "dfsync",
		SilenceUsage: true,

		// The call to rootCmd.Execute prints the error, so we silence errors
		// here to avoid double printing.
		SilenceErrors:    true,
		PersistentPreRun: setupAudit,
	}
	rootCmd.AddCommand(
		client.New(),
		server.New(),
		version.New(),
	)

	if err := rootCmd.Execute(); err != nil {
		util.HandleFatalError(err)
	}
}

func setupAudit(cmd *cobra.Command, _ []string) {
	audit.SetSource(cmd.CalledAs())
	log.AddHook(audit.NewLogHook())
}
