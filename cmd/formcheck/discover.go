package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/v0xg/formcheck/internal/controller"
	"github.com/v0xg/formcheck/internal/executor"
)

func newDiscoverCmd() *cobra.Command {
	var save, suggest, asJSON bool
	var formIndex int
	cmd := &cobra.Command{
		Use:   "discover <url>",
		Short: "List the forms on a page, optionally saving a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := args[0]
			if err := controller.ValidateURL(url); err != nil {
				return err
			}
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			fmt.Fprintf(os.Stderr, "→ Discovering forms on %s... ", url)
			res, err := a.executor.Discover(cmd.Context(), url, a.cfg.Engine.DiscoverWait)
			if err != nil {
				fmt.Fprintln(os.Stderr, "failed")
				return fmt.Errorf("discovery failed: %w", err)
			}
			fmt.Fprintf(os.Stderr, "done (found %d forms)\n", len(res.Forms))

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
			} else {
				for _, f := range res.Forms {
					where := ""
					if f.InIframe {
						where = " (iframe)"
					}
					fmt.Printf("[%d] %s%s visible=%t fields=%d\n", f.Index, f.Selector, where, f.Visible, len(f.Fields))
					for _, fld := range f.Fields {
						fmt.Printf("      %-20s %-10s %s\n", fld.Name, fld.InputType, fld.Label)
					}
				}
				for _, s := range res.Skips {
					logVerbose("  skipped %s: %s", s.Scope, s.Reason)
				}
			}

			if !save {
				return nil
			}
			f, ok := executor.PickForm(res.Forms, formIndex)
			if !ok {
				return fmt.Errorf("no forms found to save")
			}
			suggester := a.suggester
			if !suggest {
				suggester = nil
			}
			learned, err := executor.Learn(cmd.Context(), a.templates, a.table, suggester, url, f)
			if err != nil {
				return err
			}
			if learned.SuggestError != "" {
				fmt.Fprintf(os.Stderr, "  AI suggestions unavailable: %s\n", learned.SuggestError)
			}
			fmt.Fprintf(os.Stderr, "✓ Template saved to %s\n", learned.Path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "Save a template for the chosen form")
	cmd.Flags().IntVar(&formIndex, "form-index", 0, "Form to save")
	cmd.Flags().BoolVar(&suggest, "suggest", false, "Ask the configured AI provider for values the table misses")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the inventory as JSON")
	return cmd
}
