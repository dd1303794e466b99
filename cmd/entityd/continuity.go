package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"entity/internal/bundle"
	"entity/internal/domain"
	"entity/internal/eventlog"
	"entity/internal/projector"
	"entity/internal/statestore"
)

func newContinuityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "continuity",
		Short: "export and import portable continuity bundles",
	}
	cmd.AddCommand(newContinuityExportCmd(), newContinuityImportCmd(), newContinuityVerifyCmd(), newContinuityIdentityCmd(), newContinuitySyncCmd())
	return cmd
}

func newContinuityExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "write a portable bundle of the event log and snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(rt *runtime) error {
				state, ok := rt.store.Read()
				if !ok {
					return fmt.Errorf("no state to export")
				}
				b, err := bundle.Build(rt.log, rt.snapshot, state.OrganizationHash, time.Now)
				if err != nil {
					return err
				}
				path := bundle.ExportPath(rt.dir.Root(), state.OrganizationHash, time.Now())
				if err := bundle.Write(path, b); err != nil {
					return err
				}
				return printJSON(cmd, map[string]string{"path": path})
			})
		},
	}
}

// newContinuityImportCmd seeds a fresh, empty home directory from a
// bundle. It cannot go through withRuntime/openRuntime: those always
// call organization.Bootstrap, which appends its own Genesis event into
// an empty store and would collide with the bundle's own genesis. So
// import opens the log and state store directly and reconstructs the
// spec sidecar files and state/current.json by hand from the bundle's
// events, the same data organization.Bootstrap would have derived had it
// run first.
func newContinuityImportCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "seed an empty home directory from a bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				return fmt.Errorf("--path is required")
			}
			dir, err := resolveHome()
			if err != nil {
				return err
			}
			if err := dir.EnsureExists(); err != nil {
				return err
			}
			b, err := bundle.Read(path)
			if err != nil {
				return err
			}
			if err := bundle.Import(dir.Root(), b); err != nil {
				return err
			}

			if err := writeIdentitySidecars(dir.Root(), b); err != nil {
				return err
			}

			log, err := eventlog.New(eventlog.Config{Dir: dir.Root(), Logger: rootLogger})
			if err != nil {
				return err
			}
			events, err := log.Load()
			if err != nil {
				return err
			}
			store, err := statestore.New(statestore.Config{Dir: dir.Root(), Log: log, Logger: rootLogger})
			if err != nil {
				return err
			}
			state := projector.Project(events)
			if err := store.WriteLocked(state); err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"imported_events": len(events), "organization_hash": state.OrganizationHash.String()})
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "path to the bundle file")
	return cmd
}

// writeIdentitySidecars recreates spec/SPECIFICATION.md and
// ORGANIZATION.sha256 from the genesis event's own recorded data, the
// same fields organization.Bootstrap would have written on first run.
func writeIdentitySidecars(dir string, b bundle.Bundle) error {
	var specText string
	for _, ev := range b.Events {
		if ev.Type == domain.EventGenesis {
			if text, ok := ev.Data["specification"].(string); ok {
				specText = text
			}
			break
		}
	}
	if specText == "" {
		return fmt.Errorf("bundle has no genesis event carrying a specification")
	}
	specPath := filepath.Join(dir, "spec", "SPECIFICATION.md")
	if err := os.MkdirAll(filepath.Dir(specPath), 0o750); err != nil {
		return err
	}
	if err := os.WriteFile(specPath, []byte(specText), 0o640); err != nil {
		return err
	}
	hashPath := filepath.Join(dir, "ORGANIZATION.sha256")
	return os.WriteFile(hashPath, []byte(b.OrganizationHash.String()+"\n"), 0o640)
}

func newContinuityVerifyCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "check a bundle's organization hash against this home directory's",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				return fmt.Errorf("--path is required")
			}
			b, err := bundle.Read(path)
			if err != nil {
				return err
			}
			return withRuntime(func(rt *runtime) error {
				state, _ := rt.store.Read()
				match := bundle.VerifyIdentity(b, state.OrganizationHash)
				return printJSON(cmd, map[string]bool{"identity_matches": match})
			})
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "path to the bundle file")
	return cmd
}

func newContinuityIdentityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "identity",
		Short: "print this home directory's organization hash",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(rt *runtime) error {
				state, _ := rt.store.Read()
				return printJSON(cmd, map[string]string{"organization_hash": state.OrganizationHash.String()})
			})
		},
	}
}

// newContinuitySyncCmd is an export-and-print alias: the spec leaves
// sync's transport unspecified (no remote endpoint is part of this
// runtime's domain), so sync here means "produce the artefact a real
// transport would ship" rather than actually shipping it anywhere.
func newContinuitySyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "export a bundle and print its path (no remote transport is implemented)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(rt *runtime) error {
				state, ok := rt.store.Read()
				if !ok {
					return fmt.Errorf("no state to sync")
				}
				b, err := bundle.Build(rt.log, rt.snapshot, state.OrganizationHash, time.Now)
				if err != nil {
					return err
				}
				path := bundle.ExportPath(rt.dir.Root(), state.OrganizationHash, time.Now())
				if err := bundle.Write(path, b); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "exported continuity bundle to %s (no remote sync target configured)\n", path)
				return nil
			})
		},
	}
}
