package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/vizagent/internal/analysis"
	"github.com/KaramelBytes/vizagent/internal/utils"
)

var (
	abDelimiter string
	abHeadRows  int
	abMaxRows   int
	abOutDir    string
	abJobs      int
	abQuiet     bool
)

var analyzeBatchCmd = &cobra.Command{
	Use:   "analyze-batch <files...>",
	Short: "Profile several CSV files at once and write one summary per file",
	Example: `  vizagent analyze-batch 'data/*.csv' --out-dir summaries
  vizagent analyze-batch a.csv b.tsv --jobs 2`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files := expandInputs(args)
		if len(files) == 0 {
			return fmt.Errorf("no input files matched")
		}

		opt := analysis.DefaultOptions()
		if abMaxRows > 0 {
			opt.MaxRows = abMaxRows
		}
		if abHeadRows > 0 {
			opt.HeadRows = abHeadRows
		}
		if abDelimiter != "" {
			d, err := parseDelimiter(abDelimiter)
			if err != nil {
				return err
			}
			opt.Delimiter = d
		}

		w := cmd.OutOrStdout()
		reports := make([]string, len(files))
		var done atomic.Int32
		g, _ := errgroup.WithContext(cmd.Context())
		if abJobs > 0 {
			g.SetLimit(abJobs)
		}
		for i, path := range files {
			g.Go(func() error {
				prof, err := analysis.ProfileFile(path, opt)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				reports[i] = prof.Markdown()
				if !abQuiet {
					fmt.Fprintf(w, "[%d/%d] Processed %s\n", done.Add(1), len(files), filepath.Base(path))
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		if abOutDir == "" {
			for _, md := range reports {
				fmt.Fprintln(w, md)
			}
			return nil
		}
		if err := utils.EnsureDir(abOutDir); err != nil {
			return err
		}
		for i, path := range files {
			outFile := summaryPath(abOutDir, path)
			if err := utils.SafeWriteFile(outFile, []byte(reports[i])); err != nil {
				return err
			}
			if !abQuiet {
				fmt.Fprintf(w, "✓ Wrote %s\n", outFile)
			}
		}
		return nil
	},
}

// expandInputs resolves globs, keeps literal paths that exist, and returns a
// sorted list without duplicates.
func expandInputs(args []string) []string {
	var files []string
	seen := map[string]struct{}{}
	for _, arg := range args {
		matches, _ := filepath.Glob(arg)
		if len(matches) == 0 {
			// treat as literal path if exists
			if _, err := os.Stat(arg); err == nil {
				matches = []string{arg}
			}
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files
}

// summaryPath picks <base>.summary.md in dir, adding a __N suffix instead of
// overwriting an existing summary.
func summaryPath(dir, path string) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	out := filepath.Join(dir, stem+".summary.md")
	if _, err := os.Stat(out); err != nil {
		return out
	}
	for idx := 2; ; idx++ {
		cand := filepath.Join(dir, fmt.Sprintf("%s__%d.summary.md", stem, idx))
		if _, err := os.Stat(cand); os.IsNotExist(err) {
			return cand
		}
	}
}

func init() {
	rootCmd.AddCommand(analyzeBatchCmd)
	analyzeBatchCmd.Flags().StringVar(&abDelimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab'")
	analyzeBatchCmd.Flags().IntVar(&abHeadRows, "head", 0, "preview rows per summary (default 10)")
	analyzeBatchCmd.Flags().IntVar(&abMaxRows, "max-rows", 0, "maximum rows kept per file (0 = default)")
	analyzeBatchCmd.Flags().StringVar(&abOutDir, "out-dir", "", "write <name>.summary.md files here instead of printing")
	analyzeBatchCmd.Flags().IntVarP(&abJobs, "jobs", "j", 4, "files profiled concurrently")
	analyzeBatchCmd.Flags().BoolVar(&abQuiet, "quiet", false, "suppress progress and non-essential output")
}
