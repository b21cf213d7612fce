package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/vizagent/internal/analysis"
	"github.com/KaramelBytes/vizagent/internal/prompt"
	"github.com/KaramelBytes/vizagent/internal/utils"
)

var (
	anaDelimiter  string
	anaMaxRows    int
	anaHeadRows   int
	anaOutput     string
	anaShowPrompt bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file.csv>",
	Short: "Show dataset info, column information and a preview for a CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		opt := analysis.DefaultOptions()
		if anaMaxRows > 0 {
			opt.MaxRows = anaMaxRows
		}
		if anaHeadRows > 0 {
			opt.HeadRows = anaHeadRows
		} else if cfg != nil && cfg.PreviewRows > 0 {
			opt.HeadRows = cfg.PreviewRows
		}
		if anaDelimiter != "" {
			d, err := parseDelimiter(anaDelimiter)
			if err != nil {
				return err
			}
			opt.Delimiter = d
		}
		prof, err := analysis.ProfileFile(path, opt)
		if err != nil {
			return err
		}
		out := prof.Markdown()
		if anaShowPrompt {
			out += "\n[SYSTEM PROMPT]\n" + prompt.ForProfile(prof) + "\n"
		}
		if anaOutput != "" {
			if err := utils.SafeWriteFile(anaOutput, []byte(out)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s\n", filepath.Clean(anaOutput))
			return nil
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

// parseDelimiter accepts a single character or the names "tab", "comma",
// "semicolon" and "pipe".
func parseDelimiter(s string) (rune, error) {
	switch s {
	case "tab", `\t`:
		return '\t', nil
	case "comma":
		return ',', nil
	case "semicolon":
		return ';', nil
	case "pipe":
		return '|', nil
	}
	r := []rune(s)
	if len(r) != 1 {
		return 0, fmt.Errorf("invalid delimiter %q: use a single character or tab|comma|semicolon|pipe", s)
	}
	return r[0], nil
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVar(&anaDelimiter, "delimiter", "", "CSV delimiter (default: ',' or tab for .tsv)")
	analyzeCmd.Flags().IntVar(&anaMaxRows, "max-rows", 0, "max rows kept for the preview (0 = default)")
	analyzeCmd.Flags().IntVar(&anaHeadRows, "head", 0, "preview rows to print (default from config)")
	analyzeCmd.Flags().StringVarP(&anaOutput, "output", "o", "", "write the report to a file instead of stdout")
	analyzeCmd.Flags().BoolVar(&anaShowPrompt, "show-prompt", false, "append the system prompt the model would receive")
}
