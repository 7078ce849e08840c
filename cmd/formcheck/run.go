package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/v0xg/formcheck/internal/controller"
	"github.com/v0xg/formcheck/internal/job"
)

func newRunCmd() *cobra.Command {
	var formIndex int
	var record bool
	cmd := &cobra.Command{
		Use:   "run <url>",
		Short: "Fill and submit a form once and report the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(record)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			ctrl := controller.New(ctx, a.executor, a.log)
			fmt.Printf("→ Testing %s (form %d)...\n", args[0], formIndex)
			h, err := ctrl.Submit(args[0], formIndex)
			if err != nil {
				return err
			}
			<-h.Done()

			snap, err := ctrl.Status(h.ID)
			if err != nil {
				return err
			}
			for _, s := range snap.Steps {
				logVerbose("  %-22s %-10s %s %s", s.Action, s.Status, s.Field, s.Error)
			}
			fmt.Printf("✓ %s in %.1fs (job %s)\n", snap.State, snap.ElapsedSeconds, snap.JobID)
			if snap.Report != "" {
				fmt.Printf("  Report: %s\n", snap.Report)
			}
			if snap.State != job.StatePass {
				return fmt.Errorf("form test %s", snap.State)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&formIndex, "form-index", 0, "Form to test when no template exists")
	cmd.Flags().BoolVar(&record, "record", true, "Persist the run to the history database")
	return cmd
}

func logVerbose(format string, args ...any) {
	if verbose {
		fmt.Printf(format+"\n", args...)
	}
}
