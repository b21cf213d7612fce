package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/vizagent/internal/ai"
	"github.com/KaramelBytes/vizagent/internal/logging"
)

var (
	checkKeyValue   string
	checkKeyModel   string
	checkKeyBaseURL string
)

var checkKeyCmd = &cobra.Command{
	Use:   "check-key",
	Short: "Verify a Together AI API key with a one-word completion",
	Example: `  vizagent check-key
  vizagent check-key --key tgp_v1_...`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		key := strings.TrimSpace(checkKeyValue)
		if key == "" {
			key = c.TogetherAPIKey
		}
		if key == "" {
			if key, err = promptKey(cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
				return err
			}
		}
		rt, err := runtimeFor(c, ai.ProviderTogether, key, checkKeyBaseURL)
		if err != nil {
			return err
		}
		return runKeyCheck(cmd.Context(), cmd.OutOrStdout(), rt, checkKeyModel)
	},
}

func promptKey(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "Enter your Together AI API key: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read key: %w", err)
	}
	key := strings.TrimSpace(line)
	if key == "" {
		return "", errors.New("no API key provided")
	}
	return key, nil
}

func runKeyCheck(ctx context.Context, w io.Writer, rt ai.Runtime, model string) error {
	if model == "" {
		model = ai.DefaultTogetherModel
	}
	logging.Step("Testing API key...")
	reply, err := ai.CheckKey(ctx, rt, model)
	if err != nil {
		logging.Error("API Key test failed!")
		fmt.Fprintf(w, "Error: %v\n", err)
		hints := ai.KeyHint(ai.ProviderTogether, err)
		if len(hints) > 1 {
			fmt.Fprintln(w, "\nSolutions:")
			for i, h := range hints {
				fmt.Fprintf(w, "%d. %s\n", i+1, h)
			}
		} else {
			for _, h := range hints {
				fmt.Fprintf(w, "\n%s\n", h)
			}
		}
		return errors.New("API key check failed")
	}
	logging.Success(fmt.Sprintf("API Key works! Response: %s", reply))
	fmt.Fprintln(w, "Your API key is valid and working correctly!")
	return nil
}

func init() {
	rootCmd.AddCommand(checkKeyCmd)
	checkKeyCmd.Flags().StringVar(&checkKeyValue, "key", "", "API key to test (default: together_api_key or prompt)")
	checkKeyCmd.Flags().StringVar(&checkKeyModel, "model", "", "model used for the test completion")
	checkKeyCmd.Flags().StringVar(&checkKeyBaseURL, "base-url", "", "override the Together endpoint")
	_ = checkKeyCmd.Flags().MarkHidden("base-url")
}
