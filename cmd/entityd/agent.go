package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"entity/internal/agent"
	"entity/internal/domain"
)

func newAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "inspect and drive the internal sense-making agent",
	}
	cmd.AddCommand(newAgentStatusCmd(), newAgentFeelingCmd(), newAgentCycleCmd(), newAgentWakeCmd(), newAgentSleepCmd())
	return cmd
}

// newAgentStatusCmd prefers a live daemon (its agent reflects real
// wake/sleep history and wake-interval adaptation) and falls back to a
// fresh, asleep agent object when none is running.
func newAgentStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "show whether the agent is awake and its wake interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveHome()
			if err != nil {
				return err
			}
			var status any
			if err := submitIPC(dir.SockPath(), "status", nil, &status); err == nil {
				return printJSON(cmd, status)
			}
			return withRuntime(func(rt *runtime) error {
				return printJSON(cmd, map[string]any{
					"awake":         rt.agent.Awake(),
					"wake_interval": rt.agent.WakeInterval().String(),
					"daemon":        "not running (ephemeral agent, not yet woken)",
				})
			})
		},
	}
}

func newAgentFeelingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "feeling",
		Short: "compute the agent's current feeling vector",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveHome()
			if err != nil {
				return err
			}
			var feeling domain.Feeling
			if err := submitIPC(dir.SockPath(), "agent.feeling", nil, &feeling); err == nil {
				return printJSON(cmd, feeling)
			}
			return withRuntime(func(rt *runtime) error {
				feeling, err := rt.agent.Feeling()
				if err != nil {
					return err
				}
				return printJSON(cmd, feeling)
			})
		},
	}
}

func newAgentCycleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cycle",
		Short: "force one sense-prioritize-choose-execute-learn cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveHome()
			if err != nil {
				return err
			}
			var result agent.CycleResult
			if err := submitIPC(dir.SockPath(), "agent.cycle", nil, &result); err == nil {
				return printJSON(cmd, result)
			}
			return withRuntime(func(rt *runtime) error {
				result, err := rt.agent.ForceCycle()
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			})
		},
	}
}

func newAgentWakeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wake",
		Short: "wake the agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveHome()
			if err != nil {
				return err
			}
			var result any
			if err := submitIPC(dir.SockPath(), "agent.wake", nil, &result); err == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "awake")
				return nil
			}
			return withRuntime(func(rt *runtime) error {
				if err := rt.agent.Wake(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "awake (ephemeral, no daemon running to persist this)")
				return nil
			})
		},
	}
}

func newAgentSleepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sleep",
		Short: "put the agent to sleep",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveHome()
			if err != nil {
				return err
			}
			var result any
			if err := submitIPC(dir.SockPath(), "agent.sleep", nil, &result); err == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "asleep")
				return nil
			}
			return withRuntime(func(rt *runtime) error {
				if err := rt.agent.Sleep(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "asleep")
				return nil
			})
		},
	}
}
