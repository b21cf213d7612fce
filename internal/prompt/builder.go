// Package prompt assembles the analyst's system prompt from a dataset profile.
package prompt

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/vizagent/internal/ai"
	"github.com/KaramelBytes/vizagent/internal/analysis"
)

// sampleLimit caps how many characters of a sample value reach the prompt.
const sampleLimit = 50

// ColumnsInfo lists each column with its dtype and first non-null sample.
func ColumnsInfo(p *analysis.Profile) string {
	if p == nil {
		return ""
	}
	lines := make([]string, 0, len(p.Columns))
	for _, c := range p.Columns {
		sample := "N/A"
		if c.HasSample {
			sample = truncateRunes(c.Sample, sampleLimit)
		}
		lines = append(lines, fmt.Sprintf("- %s (%s) | Sample: '%s...'", c.Name, c.Dtype, sample))
	}
	return strings.Join(lines, "\n")
}

// DatasetPath is where an uploaded file lands inside the sandbox.
func DatasetPath(name string) string {
	return "./" + name
}

// SystemPrompt renders the analyst instructions for a dataset at datasetPath.
func SystemPrompt(datasetPath, columnsInfo string) string {
	var sb strings.Builder
	sb.WriteString("You're a Python data scientist and visualization expert.\n\n")
	sb.WriteString(fmt.Sprintf("The dataset is available at path '%s'.\n\n", datasetPath))
	sb.WriteString("Available Columns:\n")
	sb.WriteString(columnsInfo)
	sb.WriteString("\n\nYour task is to:\n")
	sb.WriteString(fmt.Sprintf("1. Load the dataset using pandas: df = pd.read_csv('%s')\n", datasetPath))
	sb.WriteString(`2. Analyze the data based on the user's question
3. Create appropriate visualizations using matplotlib or seaborn
4. Use plt.tight_layout() and plt.savefig() to save plots

IMPORTANT:
- USE ONLY the columns listed above. Do not invent column names.
- Write complete, executable Python code
- Always import: pandas, matplotlib.pyplot, seaborn, numpy
- Use matplotlib (not plotly) for all charts
- SAFETY: Check ` + "`if not result.empty:`" + ` before plotting/indexing! Print "No data found" if empty.
- DATA CLEANING:
  - Cast columns to string before ` + "`.str`" + ` ops: ` + "`df['c']=df['c'].astype(str)`" + `.
  - Clean Lists: ` + "`df['c']=df['c'].str.replace(r'[\\[\\]\"\\']','',regex=True).str.split(',').explode()`" + `
  - Filter: Remove 'nan', empty, len<2.
- OUTPUT RULES:
  - **DEFAULT:** Generate Table (` + "`results_df`" + `) or PRINT(). **NO CHARTS** unless asked.
  - If user wants Chart: ` + "`sns.set_theme(style=\"whitegrid\")`, `plt.figure(figsize=(10,6))`" + `. Concise inputs.
  - If answer is a TABLE:
    - Create a pandas DataFrame named 'results_df'
    - Limit to top 15 rows
    - Round numeric columns to 2 decimal places

Provide ONLY the Python code wrapped in ` + "```python" + ` code blocks.
If you create a plot, save it as 'plot.png'.
If you create a table, ensure it is in a variable named 'results_df'.
`)
	return sb.String()
}

// ForProfile builds the system prompt for an uploaded dataset.
func ForProfile(p *analysis.Profile) string {
	return SystemPrompt(DatasetPath(p.Name), ColumnsInfo(p))
}

// Messages pairs the system prompt with the user's question.
func Messages(system, question string) []ai.Message {
	return []ai.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: question},
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
