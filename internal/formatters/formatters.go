package formatters

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"recletter/internal/types"
)

// Formatter interface for different output formats
type Formatter interface {
	Format(data any) (string, error)
	SupportedType() string
}

// FormatterRegistry manages all available formatters
type FormatterRegistry struct {
	formatters map[string]map[string]Formatter // format -> type -> formatter
}

// GlobalRegistry is the registry shared by the CLI commands
var GlobalRegistry = NewFormatterRegistry()

// Data type names used as registry keys
const (
	TypeAny         = "any"
	TypeQuestions   = "Questions"
	TypeLetter      = "Letter"
	TypeTranscripts = "Transcripts"
	TypeDrafts      = "Drafts"
	TypeContext     = "Context"
)

// NewFormatterRegistry creates a new formatter registry with default formatters
func NewFormatterRegistry() *FormatterRegistry {
	registry := &FormatterRegistry{
		formatters: make(map[string]map[string]Formatter),
	}

	registry.RegisterFormatter("json", TypeAny, &JSONFormatter{})
	registry.RegisterFormatter("text", TypeQuestions, &QuestionsTextFormatter{})
	registry.RegisterFormatter("markdown", TypeQuestions, &QuestionsMarkdownFormatter{})
	registry.RegisterFormatter("text", TypeLetter, &LetterFormatter{})
	registry.RegisterFormatter("markdown", TypeLetter, &LetterFormatter{})
	registry.RegisterFormatter("text", TypeTranscripts, &TranscriptsTextFormatter{})
	registry.RegisterFormatter("markdown", TypeTranscripts, &TranscriptsMarkdownFormatter{})
	registry.RegisterFormatter("text", TypeDrafts, &DraftsTextFormatter{})
	registry.RegisterFormatter("markdown", TypeDrafts, &DraftsMarkdownFormatter{})
	registry.RegisterFormatter("text", TypeContext, &ContextTextFormatter{})
	registry.RegisterFormatter("markdown", TypeContext, &ContextTextFormatter{markdown: true})

	return registry
}

// RegisterFormatter registers a new formatter for a specific format and data type
func (fr *FormatterRegistry) RegisterFormatter(format, dataType string, formatter Formatter) {
	if fr.formatters[format] == nil {
		fr.formatters[format] = make(map[string]Formatter)
	}
	fr.formatters[format][dataType] = formatter
}

// Format formats data using the appropriate formatter
func (fr *FormatterRegistry) Format(data any, format string) (string, error) {
	dataType := getDataType(data)

	if formatters, exists := fr.formatters[format]; exists {
		if formatter, exists := formatters[dataType]; exists {
			return formatter.Format(data)
		}
		if formatter, exists := formatters[TypeAny]; exists {
			return formatter.Format(data)
		}
	}

	return "", fmt.Errorf("no formatter found for format '%s' and type '%s'", format, dataType)
}

// GetSupportedFormats returns all supported formats in sorted order
func (fr *FormatterRegistry) GetSupportedFormats() []string {
	formats := make([]string, 0, len(fr.formatters))
	for format := range fr.formatters {
		formats = append(formats, format)
	}
	sort.Strings(formats)
	return formats
}

func getDataType(data any) string {
	switch data.(type) {
	case types.TailorQuestionsOutput:
		return TypeQuestions
	case types.GenerateLetterOutput:
		return TypeLetter
	case types.AnalyzeAudioOutput:
		return TypeTranscripts
	case []types.Draft:
		return TypeDrafts
	case types.ProgramContext:
		return TypeContext
	default:
		return TypeAny
	}
}

// JSONFormatter handles JSON formatting for any data type
type JSONFormatter struct{}

func (jf *JSONFormatter) Format(data any) (string, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", err
	}
	return string(jsonData) + "\n", nil
}

func (jf *JSONFormatter) SupportedType() string {
	return TypeAny
}

// QuestionsTextFormatter lists interview questions as plain text
type QuestionsTextFormatter struct{}

func (f *QuestionsTextFormatter) Format(data any) (string, error) {
	result, ok := data.(types.TailorQuestionsOutput)
	if !ok {
		return "", fmt.Errorf("expected TailorQuestionsOutput, got %T", data)
	}

	var output strings.Builder
	output.WriteString("=== INTERVIEW QUESTIONS ===\n\n")
	for i, q := range result.Questions {
		fmt.Fprintf(&output, "%d. %s\n", i+1, q.Text)
		fmt.Fprintf(&output, "   Focus: %s [%s]\n", q.FocusQuality, q.ID)
		if q.ContextContext != "" {
			fmt.Fprintf(&output, "   Context: %s\n", q.ContextContext)
		}
		output.WriteString("\n")
	}
	return output.String(), nil
}

func (f *QuestionsTextFormatter) SupportedType() string {
	return TypeQuestions
}

// QuestionsMarkdownFormatter lists interview questions as markdown
type QuestionsMarkdownFormatter struct{}

func (f *QuestionsMarkdownFormatter) Format(data any) (string, error) {
	result, ok := data.(types.TailorQuestionsOutput)
	if !ok {
		return "", fmt.Errorf("expected TailorQuestionsOutput, got %T", data)
	}

	var output strings.Builder
	output.WriteString("# Interview Questions\n\n")
	for i, q := range result.Questions {
		fmt.Fprintf(&output, "%d. **%s**\n", i+1, q.Text)
		fmt.Fprintf(&output, "   - Focus: %s (`%s`)\n", q.FocusQuality, q.ID)
		if q.ContextContext != "" {
			fmt.Fprintf(&output, "   - Context: %s\n", q.ContextContext)
		}
	}
	return output.String(), nil
}

func (f *QuestionsMarkdownFormatter) SupportedType() string {
	return TypeQuestions
}

// LetterFormatter prints the letter body unchanged. The template already uses
// markdown bold for section headers, so text and markdown share it.
type LetterFormatter struct{}

func (f *LetterFormatter) Format(data any) (string, error) {
	result, ok := data.(types.GenerateLetterOutput)
	if !ok {
		return "", fmt.Errorf("expected GenerateLetterOutput, got %T", data)
	}
	if strings.HasSuffix(result.Letter, "\n") {
		return result.Letter, nil
	}
	return result.Letter + "\n", nil
}

func (f *LetterFormatter) SupportedType() string {
	return TypeLetter
}

func sortedTranscriptKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		if k != types.GeneralTranscriptKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if _, ok := m[types.GeneralTranscriptKey]; ok {
		keys = append(keys, types.GeneralTranscriptKey)
	}
	return keys
}

// TranscriptsTextFormatter prints per-question transcripts, general speech last
type TranscriptsTextFormatter struct{}

func (f *TranscriptsTextFormatter) Format(data any) (string, error) {
	result, ok := data.(types.AnalyzeAudioOutput)
	if !ok {
		return "", fmt.Errorf("expected AnalyzeAudioOutput, got %T", data)
	}

	var output strings.Builder
	output.WriteString("=== AUDIO TRANSCRIPTS ===\n\n")
	if len(result.Transcripts) == 0 {
		output.WriteString("No speech matched any question.\n")
	}
	for _, id := range sortedTranscriptKeys(result.Transcripts) {
		fmt.Fprintf(&output, "[%s]\n%s\n\n", id, result.Transcripts[id])
	}
	return output.String(), nil
}

func (f *TranscriptsTextFormatter) SupportedType() string {
	return TypeTranscripts
}

// TranscriptsMarkdownFormatter prints per-question transcripts as quoted sections
type TranscriptsMarkdownFormatter struct{}

func (f *TranscriptsMarkdownFormatter) Format(data any) (string, error) {
	result, ok := data.(types.AnalyzeAudioOutput)
	if !ok {
		return "", fmt.Errorf("expected AnalyzeAudioOutput, got %T", data)
	}

	var output strings.Builder
	output.WriteString("# Audio Transcripts\n")
	for _, id := range sortedTranscriptKeys(result.Transcripts) {
		fmt.Fprintf(&output, "\n## %s\n\n> %s\n", id, result.Transcripts[id])
	}
	return output.String(), nil
}

func (f *TranscriptsMarkdownFormatter) SupportedType() string {
	return TypeTranscripts
}

func preview(content string, limit int) string {
	line := strings.Join(strings.Fields(content), " ")
	runes := []rune(line)
	if len(runes) <= limit {
		return line
	}
	return string(runes[:limit]) + "..."
}

// DraftsTextFormatter lists the draft history, newest first
type DraftsTextFormatter struct{}

func (f *DraftsTextFormatter) Format(data any) (string, error) {
	drafts, ok := data.([]types.Draft)
	if !ok {
		return "", fmt.Errorf("expected []Draft, got %T", data)
	}

	var output strings.Builder
	output.WriteString("=== SAVED DRAFTS ===\n\n")
	if len(drafts) == 0 {
		output.WriteString("No drafts saved yet.\n")
	}
	for _, d := range drafts {
		fmt.Fprintf(&output, "%s  %-20s  %s\n", d.Timestamp.Local().Format(time.DateTime), d.Label, d.ID)
		fmt.Fprintf(&output, "    %s\n", preview(d.Content, 72))
	}
	return output.String(), nil
}

func (f *DraftsTextFormatter) SupportedType() string {
	return TypeDrafts
}

// DraftsMarkdownFormatter renders the draft history as a table
type DraftsMarkdownFormatter struct{}

func (f *DraftsMarkdownFormatter) Format(data any) (string, error) {
	drafts, ok := data.([]types.Draft)
	if !ok {
		return "", fmt.Errorf("expected []Draft, got %T", data)
	}

	var output strings.Builder
	output.WriteString("# Saved Drafts\n\n")
	output.WriteString("| Saved | Label | ID | Preview |\n")
	output.WriteString("|---|---|---|---|\n")
	for _, d := range drafts {
		fmt.Fprintf(&output, "| %s | %s | `%s` | %s |\n",
			d.Timestamp.UTC().Format(time.RFC3339), d.Label, d.ID,
			strings.ReplaceAll(preview(d.Content, 60), "|", `\|`))
	}
	return output.String(), nil
}

func (f *DraftsMarkdownFormatter) SupportedType() string {
	return TypeDrafts
}

// ContextTextFormatter summarizes a program context
type ContextTextFormatter struct {
	markdown bool
}

func (f *ContextTextFormatter) Format(data any) (string, error) {
	ctx, ok := data.(types.ProgramContext)
	if !ok {
		return "", fmt.Errorf("expected ProgramContext, got %T", data)
	}
	ctx = ctx.Normalized()

	heading, item := "=== %s ===\n", "%s: %s\n"
	if f.markdown {
		heading, item = "## %s\n\n", "- **%s:** %s\n"
	}

	var output strings.Builder
	fmt.Fprintf(&output, heading, "PROGRAM CONTEXT")
	fmt.Fprintf(&output, item, "Applicant", ctx.ApplicantName)
	fmt.Fprintf(&output, item, "Program", ctx.TargetProgramName)
	fmt.Fprintf(&output, item, "Deadline", ctx.SubmissionDeadline)
	for i := range types.QualitySlots {
		if ctx.QualityAt(i) == "" {
			continue
		}
		fmt.Fprintf(&output, item, fmt.Sprintf("Quality %d", i+1), ctx.QualityAt(i))
		if a := ctx.AnecdoteAt(i); a != "" {
			fmt.Fprintf(&output, item, fmt.Sprintf("Anecdote %d", i+1), a)
		}
	}
	fmt.Fprintf(&output, item, "Custom questions", fmt.Sprint(len(ctx.CustomQuestions)))
	output.WriteString("\n")
	output.WriteString(strings.TrimSpace(ctx.OpportunityContext))
	output.WriteString("\n")
	return output.String(), nil
}

func (f *ContextTextFormatter) SupportedType() string {
	return TypeContext
}
