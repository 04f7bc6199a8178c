package ai

import (
	"fmt"
	"strings"
	"text/template"

	"recletter/internal/types"
)

// SystemPrompts contains all system-level instructions for AI interactions
type SystemPrompts struct {
	TailorQuestions string
	GenerateLetter  string
	AnalyzeAudio    string
}

// UserPrompts contains user-level prompt templates. They are rendered with
// text/template against PromptData.
type UserPrompts struct {
	TailorQuestions string
	GenerateLetter  string
	AnalyzeAudio    string
}

// DefaultSystemPrompts provides the default system instructions
var DefaultSystemPrompts = SystemPrompts{
	TailorQuestions: `You are an expert investigative journalist and academic interviewer. You help recommenders recall concrete, vivid stories about an applicant.

- Never invent facts about the applicant
- Ground every question in the seeds and context you are given
- Keep the tone professional but conversational`,

	GenerateLetter: `You are a professional editor helping to draft a recommendation letter. Output ONLY the body of the letter. Ensure the tone matches the recommender's relationship.`,

	AnalyzeAudio: `You are a professional transcription assistant. You transcribe recommendation letter interviews verbatim and attribute each passage to the question it answers.`,
}

// DefaultUserPrompts provides the default user prompt templates
var DefaultUserPrompts = UserPrompts{
	TailorQuestions: `Your goal is to extract "WOW" stories from a recommender about the applicant, {{.ApplicantName}}, who is applying to {{.TargetProgramName}}.

CONTEXT:
Program Context: "{{.OpportunityContext}}"
{{.RelationshipContext}}

The applicant has provided the following "seeds" of stories (anecdotes) they want highlighted. Use these to generate specific questions.

SEEDS:
{{range .Seeds}}{{.Number}}. Quality: {{.Quality}} -> Context: {{.Anecdote}}
{{end}}
TASK:
Generate 4 to 5 highly tailored, open-ended questions.

STRICT RULES:
1. Do NOT list the context in parentheses like "(Context provided by: ...)". This is forbidden.
2. Integrate the context naturally into the question preamble.
   BAD: "Tell me about resilience. (Context: She failed a test)"
   GOOD: "The applicant mentioned overcoming a significant setback during their senior thesis. Can you share your perspective on how they handled that failure?"
3. Ask for specific evidence of impact, leadership, or growth.
4. Make the questions sound professional but conversational.
5. Give every question a short unique id, the core quality it addresses as focusQuality, and the anecdote that triggered it as contextContext.`,

	GenerateLetter: `You are an expert academic and professional letter writer.
Write a formal recommendation letter for {{.ApplicantName}} applying to {{.TargetProgramName}}.
The deadline is {{.SubmissionDeadline}}.

RECOMMENDER INFO:
{{.RecommenderLine}}

CONTEXT ABOUT THE OPPORTUNITY:
"{{.OpportunityContext}}"

Please format the letter professionally. Use the following context provided by the recommender to draft the content.
{{if .Answers}}
Here are my written answers to specific questions:
{{range .Answers}}- {{.}}
{{end}}{{end}}{{if .HasAudio}}
I also recorded a voice memo with additional context. Please listen to the audio and incorporate the key positive traits and anecdotes mentioned into the letter.{{end}}`,

	AnalyzeAudio: `Please listen to the attached audio recording of a recommendation letter interview.

The speaker is answering the following specific questions:
{{range .Questions}}
ID: "{{.ID}}"
Question: "{{.Text}}"
{{end}}
TASK:
1. Transcribe the audio.
2. Map the transcribed answers to the corresponding Question IDs defined above.
3. If the speaker answers multiple questions in one go, split the text accordingly.
4. If a part of the audio is general context not specific to a question, map it to "general".`,
}

// Seed is one quality/anecdote pair offered to the question generator
type Seed struct {
	Number   int
	Quality  string
	Anecdote string
}

// PromptData is the value user prompt templates are executed against
type PromptData struct {
	ApplicantName       string
	TargetProgramName   string
	SubmissionDeadline  string
	OpportunityContext  string
	RelationshipContext string
	RecommenderLine     string
	Seeds               []Seed
	Answers             []string
	HasAudio            bool
	Questions           []types.Question
}

func newPromptData(ctx types.ProgramContext, rec *types.RecommenderInfo) PromptData {
	ctx = ctx.Normalized()
	data := PromptData{
		ApplicantName:       ctx.ApplicantName,
		TargetProgramName:   ctx.TargetProgramName,
		SubmissionDeadline:  ctx.SubmissionDeadline,
		OpportunityContext:  ctx.OpportunityContext,
		RelationshipContext: relationshipContext(rec),
		RecommenderLine:     recommenderLine(rec),
	}
	for i := range types.QualitySlots {
		data.Seeds = append(data.Seeds, Seed{
			Number:   i + 1,
			Quality:  ctx.QualityAt(i),
			Anecdote: ctx.AnecdoteAt(i),
		})
	}
	return data
}

// recommenderLine introduces the recommender inside the letter prompt
func recommenderLine(rec *types.RecommenderInfo) string {
	if rec == nil {
		return "I am a recommender for the applicant."
	}
	company := ""
	if rec.Company != "" {
		company = " at " + rec.Company
	}
	line := fmt.Sprintf("My name is %s, and I am the %s%s. My relationship to the applicant is: %s",
		rec.Name, rec.Title, company, rec.Relationship)
	if rec.RelationshipOther != "" {
		line += fmt.Sprintf(" (%s)", rec.RelationshipOther)
	}
	return line + "."
}

// relationshipContext tells the question generator who will be answering
func relationshipContext(rec *types.RecommenderInfo) string {
	if rec == nil {
		return "The interviewer is a professional recommender."
	}
	company := ""
	if rec.Company != "" {
		company = " at " + rec.Company
	}
	relationship := rec.Relationship
	if rec.Relationship == types.RelationshipOther && rec.RelationshipOther != "" {
		relationship = rec.RelationshipOther
	}
	return fmt.Sprintf("The interviewer is the applicant's %s (%s%s). Tailor the questions to be appropriate for this professional relationship.",
		relationship, rec.Title, company)
}

// renderPrompt executes a user prompt template. Templates come from config
// files as well as the defaults, so parse errors are returned, not panicked on.
func renderPrompt(name, text string, data PromptData) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse %s prompt template: %w", name, err)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("failed to render %s prompt template: %w", name, err)
	}
	return sb.String(), nil
}
