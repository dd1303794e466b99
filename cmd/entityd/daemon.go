package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"entity/internal/daemon"
)

func newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "run and control the long-lived entity process",
	}
	cmd.AddCommand(newDaemonStartCmd(), newDaemonStopCmd(), newDaemonStatusCmd(), newDaemonTasksCmd(), newDaemonMaintenanceCmd(), newDaemonLogsCmd())
	return cmd
}

func newDaemonStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "start the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(rt *runtime) error {
				sup := rt.supervisor()
				if err := sup.Start(); err != nil {
					return err
				}
				listener, err := serveIPC(rt.dir.SockPath(), sup)
				if err != nil {
					_ = sup.Stop(context.Background())
					return err
				}
				defer listener.Close()

				ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				rt.logger.Info("daemon started", "pid", os.Getpid(), "socket", rt.dir.SockPath())
				<-ctx.Done()

				rt.logger.Info("daemon shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				return sup.Stop(shutdownCtx)
			})
		},
	}
}

func newDaemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "signal a running daemon to shut down",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveHome()
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(dir.PidPath())
			if err != nil {
				return fmt.Errorf("daemon does not appear to be running: %w", err)
			}
			pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
			if err != nil {
				return fmt.Errorf("malformed pidfile: %w", err)
			}
			proc, err := os.FindProcess(pid)
			if err != nil {
				return err
			}
			if err := proc.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("signal daemon pid %d: %w", pid, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent SIGTERM to pid %d\n", pid)
			return nil
		},
	}
}

func newDaemonStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "query the running daemon's status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveHome()
			if err != nil {
				return err
			}
			var status daemon.StatusInfo
			if err := submitIPC(dir.SockPath(), "status", nil, &status); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "daemon not running")
				return nil
			}
			return printJSON(cmd, status)
		},
	}
}

func newDaemonTasksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "list the scheduler's registered tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveHome()
			if err != nil {
				return err
			}
			var tasks any
			if err := submitIPC(dir.SockPath(), "tasks", nil, &tasks); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "daemon not running")
				return nil
			}
			return printJSON(cmd, tasks)
		},
	}
}

func newDaemonMaintenanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "maintenance",
		Short: "force an immediate maintenance sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveHome()
			if err != nil {
				return err
			}
			var result any
			if err := submitIPC(dir.SockPath(), "maintenance.run", nil, &result); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "daemon not running")
				return nil
			}
			return printJSON(cmd, result)
		},
	}
}

func newDaemonLogsCmd() *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "print the daemon's log file",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveHome()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(dir.LogPath())
			if err != nil {
				return fmt.Errorf("read daemon log: %w", err)
			}
			all := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
			if lines > 0 && lines < len(all) {
				all = all[len(all)-lines:]
			}
			for _, line := range all {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&lines, "lines", 100, "number of trailing lines to print")
	return cmd
}
