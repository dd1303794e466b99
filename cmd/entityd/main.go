// Command entityd is the entity runtime: a single-node, append-only
// record of its own history that verifies itself, recovers itself, and
// runs an internal sense-making loop (spec §1-§6). Grounded on the
// teacher's cmd/gastrologd as a daemon shape, rebuilt around a direct
// cobra root in this package instead of the teacher's separate Connect-RPC
// client subpackage, since this runtime has no remote cluster to
// administer: most commands touch the home directory directly.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"entity/internal/home"
	"entity/internal/logging"
)

var (
	flagHomeDir  string
	flagLogLevel string

	filterHandler *logging.ComponentFilterHandler
	rootLogger    *slog.Logger
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "entityd",
		Short: "entity runtime: self-verifying, self-recovering autopoietic agent",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			initLogging()
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagHomeDir, "home", "", "home directory (default: platform config dir)")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "default log level (debug, info, warn, error)")

	root.AddCommand(
		newVerifyCmd(),
		newStatusCmd(),
		newSessionCmd(),
		newRechargeCmd(),
		newSnapshotCmd(),
		newHumanCmd(),
		newMemoryCmd(),
		newOpCmd(),
		newCouplingCmd(),
		newDaemonCmd(),
		newAgentCmd(),
		newContinuityCmd(),
		newAPICmd(),
		newLogCmd(),
		newLearnCmd(),
		newAnalyticsCmd(),
	)
	return root
}

func initLogging() {
	level := new(slog.LevelVar)
	level.Set(parseLevel(flagLogLevel))
	base := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	filterHandler = logging.NewComponentFilterHandler(base, level.Level())
	rootLogger = slog.New(filterHandler)
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func resolveHome() (home.Dir, error) {
	if flagHomeDir != "" {
		return home.New(flagHomeDir), nil
	}
	return home.Default()
}

// withRuntime opens a runtime, runs fn, and always releases its
// resources, even if fn returns an error.
func withRuntime(fn func(*runtime) error) error {
	dir, err := resolveHome()
	if err != nil {
		return err
	}
	rt, err := openRuntime(dir, rootLogger)
	if err != nil {
		return err
	}
	defer rt.close()
	return fn(rt)
}
