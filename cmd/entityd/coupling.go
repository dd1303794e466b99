package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"entity/internal/couplingqueue"
	"entity/internal/domain"
)

func newCouplingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coupling",
		Short: "manage the coupling request queue",
	}
	cmd.AddCommand(newCouplingListCmd(), newCouplingStatusCmd(), newCouplingGrantCmd(), newCouplingCompleteCmd(), newCouplingCancelCmd())
	return cmd
}

func newCouplingListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list pending coupling requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(rt *runtime) error {
				state, _ := rt.store.Read()
				if state.Coupling.Queue == nil {
					return printJSON(cmd, []domain.CouplingRequest{})
				}
				return printJSON(cmd, state.Coupling.Queue.Pending)
			})
		},
	}
}

func newCouplingStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "show queue counters and history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(rt *runtime) error {
				state, _ := rt.store.Read()
				if state.Coupling.Queue == nil {
					return printJSON(cmd, domain.QueueState{})
				}
				return printJSON(cmd, state.Coupling.Queue)
			})
		},
	}
}

func newCouplingGrantCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "grant <request-id>",
		Short: "grant a pending coupling request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := domain.ParseID(args[0])
			if err != nil {
				return fmt.Errorf("invalid request id: %w", err)
			}
			return withRuntime(func(rt *runtime) error {
				cfg := couplingConfigFrom(rt.cfg.Get())
				var granted domain.CouplingRequest
				_, _, err := rt.store.AppendAtomic(domain.EventCouplingGranted, domain.Record{
					"request_id": id.String(),
				}, domain.CategoryOperational, func(st domain.State, ev domain.Event) domain.State {
					if st.Coupling.Queue == nil {
						return st
					}
					g, grantErr := couplingqueue.Grant(st.Coupling.Queue, cfg, id, ev.Timestamp)
					if grantErr != nil {
						err = grantErr
						return st
					}
					granted = g
					return st
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, granted)
			})
		},
	}
}

func newCouplingCompleteCmd() *cobra.Command {
	var outcome, note string
	cmd := &cobra.Command{
		Use:   "complete <request-id>",
		Short: "complete a granted coupling request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := domain.ParseID(args[0])
			if err != nil {
				return fmt.Errorf("invalid request id: %w", err)
			}
			return withRuntime(func(rt *runtime) error {
				cfg := couplingConfigFrom(rt.cfg.Get())
				var completed domain.CouplingRequest
				_, _, err := rt.store.AppendAtomic(domain.EventCouplingCompleted, domain.Record{
					"request_id": id.String(),
				}, domain.CategoryOperational, func(st domain.State, ev domain.Event) domain.State {
					if st.Coupling.Queue == nil {
						return st
					}
					c, completeErr := couplingqueue.Complete(st.Coupling.Queue, cfg, id, outcome, note, ev.Timestamp)
					if completeErr != nil {
						err = completeErr
						return st
					}
					completed = c
					return st
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, completed)
			})
		},
	}
	cmd.Flags().StringVar(&outcome, "outcome", "", "outcome recorded on completion")
	cmd.Flags().StringVar(&note, "note", "", "note recorded on completion")
	return cmd
}

func newCouplingCancelCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <request-id>",
		Short: "cancel a pending coupling request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := domain.ParseID(args[0])
			if err != nil {
				return fmt.Errorf("invalid request id: %w", err)
			}
			return withRuntime(func(rt *runtime) error {
				cfg := couplingConfigFrom(rt.cfg.Get())
				var canceled domain.CouplingRequest
				_, _, err := rt.store.AppendAtomic(domain.EventCouplingCanceled, domain.Record{
					"request_id": id.String(),
				}, domain.CategoryOperational, func(st domain.State, ev domain.Event) domain.State {
					if st.Coupling.Queue == nil {
						return st
					}
					c, cancelErr := couplingqueue.Cancel(st.Coupling.Queue, cfg, id, reason, ev.Timestamp)
					if cancelErr != nil {
						err = cancelErr
						return st
					}
					canceled = c
					return st
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, canceled)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded on cancellation")
	return cmd
}
