package letter

import (
	"fmt"
	"strings"

	"recletter/internal/types"
)

// Question ids produced by DeriveDefaultQuestions
const (
	QuestionIDRelationship = "rel"
	QuestionIDFit          = "fit"
	QuestionIDClose        = "close"
)

// GeneralDemonstrationContext is the contextContext of a quality question with no anecdote
const GeneralDemonstrationContext = "General demonstration of this quality."

var fallbackQuestions = []types.Question{
	{ID: "1", Text: "How long and in what capacity have you known the applicant?", FocusQuality: "Relationship", ContextContext: "General context"},
	{ID: "2", Text: "Describe a specific, compelling example of the applicant's work ethic.", FocusQuality: "Work Ethic", ContextContext: "General observation"},
	{ID: "3", Text: "Why do you recommend them for this opportunity?", FocusQuality: "Endorsement", ContextContext: "Overall recommendation"},
}

// FallbackQuestions returns the generic list used when no quality is configured
func FallbackQuestions() []types.Question {
	out := make([]types.Question, len(fallbackQuestions))
	copy(out, fallbackQuestions)
	return out
}

// QualityQuestionID returns the id of the question for the quality at original index i
func QualityQuestionID(i int) string {
	return fmt.Sprintf("qual-%d", i)
}

// DeriveDefaultQuestions builds the deterministic interview question list for a context.
// Question count is driven by the non-blank qualities; anecdotes only change phrasing.
func DeriveDefaultQuestions(ctx types.ProgramContext) []types.Question {
	if !hasAnyQuality(ctx) {
		return FallbackQuestions()
	}

	questions := []types.Question{{
		ID:             QuestionIDRelationship,
		Text:           "How long and in what capacity have you known the applicant, and in what setting did you observe their skills most directly?",
		FocusQuality:   "Context & Relationship",
		ContextContext: "Establish credibility of the recommendation.",
	}}

	for i, quality := range ctx.CoreQualities {
		if isBlank(quality) {
			continue
		}
		questions = append(questions, qualityQuestion(i, quality, ctx.AnecdoteAt(i)))
	}

	if !isBlank(ctx.OpportunityContext) {
		questions = append(questions, types.Question{
			ID:             QuestionIDFit,
			Text:           `Considering the opportunity involves "` + ctx.OpportunityContext + `", how has the applicant demonstrated they are ready for this specific challenge?`,
			FocusQuality:   "Fit for Opportunity",
			ContextContext: ctx.OpportunityContext,
		})
	}

	return append(questions, types.Question{
		ID:             QuestionIDClose,
		Text:           "Why do you give the applicant your strongest, most enthusiastic recommendation for future success?",
		FocusQuality:   "Final Endorsement",
		ContextContext: "Summary of potential.",
	})
}

func qualityQuestion(index int, quality, anecdote string) types.Question {
	if isBlank(anecdote) {
		return types.Question{
			ID:             QualityQuestionID(index),
			Text:           fmt.Sprintf("Please describe a specific, meaningful instance where the applicant demonstrated %s.", quality),
			FocusQuality:   quality,
			ContextContext: GeneralDemonstrationContext,
		}
	}
	return types.Question{
		ID:             QualityQuestionID(index),
		Text:           `The applicant mentions experience with: "` + anecdote + `". Can you elaborate on your observation of their ` + quality + ` in this or a similar context?`,
		FocusQuality:   quality,
		ContextContext: anecdote,
	}
}

// ActiveQuestions returns the stored custom questions, or the derived defaults when none are stored
func ActiveQuestions(ctx types.ProgramContext) []types.Question {
	if len(ctx.CustomQuestions) > 0 {
		out := make([]types.Question, len(ctx.CustomQuestions))
		copy(out, ctx.CustomQuestions)
		return out
	}
	return DeriveDefaultQuestions(ctx)
}

func hasAnyQuality(ctx types.ProgramContext) bool {
	for _, q := range ctx.CoreQualities {
		if !isBlank(q) {
			return true
		}
	}
	return false
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
