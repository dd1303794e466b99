package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"entity/internal/organization"
)

func newVerifyCmd() *cobra.Command {
	var record bool
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "run the five structural invariant checks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(rt *runtime) error {
				var result any
				var err error
				if record {
					result, _, err = rt.verifier.RunRecording()
				} else {
					result = rt.verifier.Run()
				}
				if err != nil {
					return err
				}
				if onDiskErr := organization.VerifyOnDisk(rt.dir.Root()); onDiskErr != nil {
					fmt.Fprintln(cmd.OutOrStdout(), "WARNING:", onDiskErr)
				}
				return printJSON(cmd, result)
			})
		},
	}
	cmd.Flags().BoolVar(&record, "record", false, "append a Verification event recording this check")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
