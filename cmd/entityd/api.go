package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newAPICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "api",
		Short: "serve the read-only observation REST API",
	}
	cmd.AddCommand(newAPIStartCmd(), newAPIStatusCmd())
	return cmd
}

func newAPIStartCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start the REST API in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(rt *runtime) error {
				srv := &http.Server{Addr: addr, Handler: rt.restAPI().Mux()}

				ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
				defer stop()

				errCh := make(chan error, 1)
				go func() { errCh <- srv.ListenAndServe() }()
				rt.logger.Info("api listening", "addr", addr)

				select {
				case err := <-errCh:
					if err != nil && err != http.ErrServerClosed {
						return err
					}
				case <-ctx.Done():
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	return cmd
}

func newAPIStatusCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "check whether the API is reachable at addr",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := http.Client{Timeout: 2 * time.Second}
			resp, err := client.Get(fmt.Sprintf("http://%s/", addr))
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "unreachable:", err)
				return nil
			}
			defer resp.Body.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "reachable, status %d\n", resp.StatusCode)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "address to check")
	return cmd
}
