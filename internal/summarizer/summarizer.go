// Package summarizer produces per-section summaries of a paper. Sections are
// located by scanning text chunks for the section title (or its fallback
// names), and each located section is summarized by the configured LLM.
package summarizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/scichat/scichat-go/internal/chunker"
)

// Chunking tuned for section location: wider windows than retrieval chunks
// so a section heading and its body land in the same chunk.
const (
	sectionChunkSize    = 2000
	sectionChunkOverlap = 150
)

// Section names a paper section and the alternate headings it may appear
// under.
type Section struct {
	Title     string
	Fallbacks []string
}

// DefaultSections covers the standard structure of a scientific paper.
var DefaultSections = []Section{
	{Title: "Abstract", Fallbacks: []string{"Summary"}},
	{Title: "Introduction", Fallbacks: []string{"Background"}},
	{Title: "Methods", Fallbacks: []string{"Methodology", "Approach", "Model Architecture"}},
	{Title: "Results", Fallbacks: []string{"Experiments", "Evaluation"}},
	{Title: "Conclusion", Fallbacks: []string{"Discussion", "Conclusions"}},
}

// Summarizer summarizes paper sections with an LLM.
type Summarizer struct {
	chatModel model.BaseChatModel
}

// New constructs a Summarizer.
func New(chatModel model.BaseChatModel) (*Summarizer, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("summarizer: ChatModel must not be nil")
	}
	return &Summarizer{chatModel: chatModel}, nil
}

// SummarizeSections summarizes each requested section of the paper text.
// The result maps section title to summary; sections whose heading never
// appears in the text map to a "No content found" marker instead of an
// error, so one missing section does not fail the run.
func (s *Summarizer) SummarizeSections(ctx context.Context, text string, sections []Section) (map[string]string, error) {
	if len(sections) == 0 {
		sections = DefaultSections
	}

	chunks, err := chunker.Split(text, sectionChunkSize, sectionChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("summarizer: chunking failed: %w", err)
	}

	summaries := make(map[string]string, len(sections))
	for _, section := range sections {
		content := sectionContent(chunks, section)
		if content == "" {
			summaries[section.Title] = fmt.Sprintf("No content found for %s.", section.Title)
			continue
		}

		summary, err := s.summarize(ctx, section.Title, content)
		if err != nil {
			return nil, fmt.Errorf("summarizer: summarizing %s failed: %w", section.Title, err)
		}
		summaries[section.Title] = summary
	}
	return summaries, nil
}

// sectionContent joins all chunks mentioning the section title. Fallback
// headings are only consulted when the primary title finds nothing.
func sectionContent(chunks []string, section Section) string {
	for _, title := range append([]string{section.Title}, section.Fallbacks...) {
		needle := strings.ToLower(title)
		var parts []string
		for _, chunk := range chunks {
			if strings.Contains(strings.ToLower(chunk), needle) {
				parts = append(parts, chunk)
			}
		}
		if joined := strings.TrimSpace(strings.Join(parts, " ")); joined != "" {
			return joined
		}
	}
	return ""
}

func (s *Summarizer) summarize(ctx context.Context, title, content string) (string, error) {
	prompt := fmt.Sprintf(
		"You are a helpful assistant summarizing sections of a research paper. "+
			"Please summarize the content under the section titled '%s' based on the following content:\n\n"+
			"%s\n\n"+
			"Provide a detailed, in-depth summary of the section in 250 words, including key points, "+
			"arguments, and supporting details.",
		title, content,
	)
	reply, err := s.chatModel.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply.Content), nil
}
