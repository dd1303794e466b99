package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newOpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "op",
		Short: "inspect and invoke catalog operations",
	}
	cmd.AddCommand(newOpListCmd(), newOpInfoCmd(), newOpRunCmd())
	return cmd
}

func newOpListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list every registered operation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(rt *runtime) error {
				return printJSON(cmd, rt.catalog.List())
			})
		},
	}
}

func newOpInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <id>",
		Short: "show a single operation's definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(rt *runtime) error {
				entry, ok := rt.catalog.Get(args[0])
				if !ok {
					return fmt.Errorf("no such operation: %s", args[0])
				}
				return printJSON(cmd, entry)
			})
		},
	}
}

func newOpRunCmd() *cobra.Command {
	var params []string
	cmd := &cobra.Command{
		Use:   "run <id>",
		Short: "invoke an operation from the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseParams(params)
			if err != nil {
				return err
			}
			return withRuntime(func(rt *runtime) error {
				outcome, err := rt.catalog.Invoke(args[0], parsed)
				if err != nil {
					return err
				}
				return printJSON(cmd, outcome)
			})
		},
	}
	cmd.Flags().StringArrayVar(&params, "param", nil, "key=value parameter, repeatable")
	return cmd
}

func parseParams(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		key, value, found := strings.Cut(p, "=")
		if !found {
			return nil, fmt.Errorf("invalid --param %q: expected key=value", p)
		}
		out[key] = value
	}
	return out, nil
}
