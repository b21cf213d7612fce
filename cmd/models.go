package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/vizagent/internal/ai"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models offered in the model picker",
	Example: `  vizagent models
  vizagent config set default_model deepseek/deepseek-r1`,
	RunE: func(cmd *cobra.Command, args []string) error {
		def, fallback := ai.DefaultModel, ai.FallbackModel
		if cfg != nil {
			if cfg.DefaultModel != "" {
				def = cfg.DefaultModel
			}
			if cfg.FallbackModel != "" {
				fallback = cfg.FallbackModel
			}
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "LABEL\tMODEL\tTIER\tCONTEXT\t")
		for _, o := range ai.Options() {
			var marks string
			if o.ID == def {
				marks += " (default)"
			}
			if o.ID == fallback {
				marks += " (fallback)"
			}
			fmt.Fprintf(tw, "%s\t%s%s\t%s\t%d\t\n", o.Label, o.ID, marks, o.Tier(), o.ContextTokens)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
