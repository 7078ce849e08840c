package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/v0xg/formcheck/internal/observability"
)

var (
	configFile string
	verbose    bool
	headful    bool
	useStatic  bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "formcheck",
		Short: "Discover, fill and submit web forms, and verify they were accepted",
		Long: `formcheck loads a page in headless Chromium, finds its forms (including
forms inside iframes), fills them with plausible test values, submits, and
looks for evidence the submission succeeded.

Examples:
  formcheck run https://example.com/contact
  formcheck discover --save https://example.com/contact
  formcheck serve`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: ./formcheck.yaml if present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
	rootCmd.PersistentFlags().BoolVar(&headful, "headful", false, "Show the browser window")
	rootCmd.PersistentFlags().BoolVar(&useStatic, "static", false, "Fetch pages over HTTP without a browser (no scripts run)")

	rootCmd.AddCommand(newServeCmd(), newRunCmd(), newDiscoverCmd(), newTemplateCmd())

	err := rootCmd.Execute()
	observability.Sync()
	if err != nil {
		os.Exit(1)
	}
}
