package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scichat/scichat-go/internal/extract"
	"github.com/scichat/scichat-go/internal/logging"
	"github.com/scichat/scichat-go/internal/provider"
	"github.com/scichat/scichat-go/internal/summarizer"
)

// NewSummarizeCmd constructs the `scichat summarize` command, which produces
// a section-by-section summary of a local PDF paper.
func NewSummarizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summarize [file.pdf]",
		Short: "Summarize a paper section by section",
		Long: `Extract a local PDF and summarize its standard sections (Abstract,
Introduction, Methods, Results, Conclusion) with the configured LLM.

Sections that cannot be located in the paper's text are reported as missing
rather than invented.

Examples:
  scichat summarize attention.pdf
  MODEL_PROVIDER=openai scichat summarize paper.pdf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			path := args[0]
			if !strings.HasSuffix(strings.ToLower(path), ".pdf") {
				return fmt.Errorf("summarize: %s: only PDF files are supported", path)
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("summarize: failed to read %s: %w", path, err)
			}

			res, err := extract.NewPDF().Extract(data)
			if err != nil {
				return fmt.Errorf("summarize: failed to extract %s: %w", path, err)
			}

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("summarize: failed to initialise model provider: %w", err)
			}

			sum, err := summarizer.New(chatModel)
			if err != nil {
				return fmt.Errorf("summarize: %w", err)
			}

			summaries, err := sum.SummarizeSections(ctx, res.FullText, summarizer.DefaultSections)
			if err != nil {
				return fmt.Errorf("summarize: %w", err)
			}

			fmt.Printf("# %s\n\n", res.Title)
			for _, section := range summarizer.DefaultSections {
				fmt.Printf("## %s\n\n%s\n\n", section.Title, summaries[section.Title])
			}
			return nil
		},
	}

	return cmd
}
