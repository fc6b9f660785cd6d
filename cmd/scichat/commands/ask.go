package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scichat/scichat-go/internal/answer"
	"github.com/scichat/scichat-go/internal/convo"
	"github.com/scichat/scichat-go/internal/logging"
	"github.com/scichat/scichat-go/internal/provider"
	"github.com/scichat/scichat-go/internal/rag"
)

// NewAskCmd constructs the `scichat ask` command, which answers questions
// against the indexed papers and prints the answers to stdout.
func NewAskCmd() *cobra.Command {
	var metadataOnly bool
	var interactive bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about your indexed papers",
		Long: `Ask a natural language question about the papers in the vector store.

The question is embedded, the most similar passages are retrieved, and the
LLM generates a grounded answer. Use --metadata-only to restrict retrieval
to the metadata facet matching the question (title, authors, organizations,
or emails). With --interactive, questions are read from stdin in a loop and
share one conversation, so follow-ups have context.

Examples:
  scichat ask "what architecture does the paper propose?"
  scichat ask --metadata-only "who wrote the paper?"
  scichat ask --interactive`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if !interactive && len(args) == 0 {
				return fmt.Errorf("ask: provide a question or use --interactive")
			}

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("ask: failed to initialise model provider: %w", err)
			}

			emb, err := buildEmbedder(log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			store, err := buildStore(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer store.Close()

			retriever, err := rag.NewRetriever(store, 0)
			if err != nil {
				return fmt.Errorf("ask: failed to create retriever: %w", err)
			}

			engine, err := answer.New(&answer.Config{
				ChatModel:     chatModel,
				Embedder:      emb,
				Retriever:     retriever,
				Conversations: convo.NewStore(),
			})
			if err != nil {
				return fmt.Errorf("ask: failed to create answer engine: %w", err)
			}

			if !interactive {
				resp, err := engine.Ask(ctx, &answer.Request{
					Question:     args[0],
					MetadataOnly: metadataOnly,
				})
				if err != nil {
					return fmt.Errorf("ask: %w", err)
				}
				fmt.Println(resp.Answer)
				return nil
			}

			// Interactive loop: one shared conversation, exit on EOF or "exit".
			var conversationID string
			scanner := bufio.NewScanner(os.Stdin)
			fmt.Println(`Ask questions about your papers ("exit" to quit).`)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					break
				}
				question := strings.TrimSpace(scanner.Text())
				if question == "" {
					continue
				}
				if question == "exit" || question == "quit" {
					break
				}

				resp, err := engine.Ask(ctx, &answer.Request{
					Question:       question,
					ConversationID: conversationID,
					MetadataOnly:   metadataOnly,
				})
				if err != nil {
					fmt.Fprintf(os.Stderr, "error: %v\n", err)
					continue
				}
				conversationID = resp.ConversationID
				fmt.Printf("\n%s\n\n", resp.Answer)
			}
			return scanner.Err()
		},
	}

	cmd.Flags().BoolVarP(&metadataOnly, "metadata-only", "m", false, "Restrict retrieval to the metadata facet matching the question")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Read questions from stdin in a loop, sharing one conversation")

	return cmd
}
