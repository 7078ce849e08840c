package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/v0xg/formcheck/internal/config"
	"github.com/v0xg/formcheck/internal/templates"
)

func newTemplateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Inspect saved templates",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show <url>",
		Short: "Print the template saved for a URL's host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			ts, err := templates.NewStore(cfg.Paths.Templates)
			if err != nil {
				return err
			}
			tmpl, ok, err := ts.Load(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no template saved for %s", args[0])
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(tmpl)
		},
	})
	return cmd
}
