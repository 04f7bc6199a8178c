package letter

import (
	"regexp"
	"strings"

	"recletter/internal/types"
)

// Placeholders used when recommender details are missing
const (
	PlaceholderTitle        = "[Title]"
	PlaceholderRelationship = "[Relationship]"
	PlaceholderName         = "[Recommender Name]"
	PlaceholderCompany      = "[Organization/Company]"
	PlaceholderDate         = "[Date]"
)

// GeneralAssessmentHeader labels an answer whose position has no matching question
const GeneralAssessmentHeader = "General Assessment"

// ComposeLetter assembles the template letter from the context, answers and questions.
// It never fails: missing recommender fields become bracketed placeholders and blank
// answers are skipped. Answers are emitted in ascending position order.
func ComposeLetter(ctx types.ProgramContext, answers types.AnswerMap, questions []types.Question, rec *types.RecommenderInfo) string {
	var b strings.Builder

	header := []string{
		PlaceholderDate,
		"To the Admissions Committee of " + orDefault(ctx.TargetProgramName, "the Opportunity"),
		"Re: Recommendation for " + ctx.ApplicantName,
		"Deadline: " + orDefault(ctx.SubmissionDeadline, "N/A"),
		"---",
		"It is with immense pleasure that I recommend " + ctx.ApplicantName + " for the " + ctx.TargetProgramName + ".",
		"I am the " + recommenderTitle(rec) + companySuffix(rec) + " and have known " + ctx.ApplicantName + " as their " + relationshipLabel(rec) + ".",
	}
	b.WriteString(strings.Join(header, "\n"))

	for _, i := range answers.Indices() {
		answer := answers[i]
		if isBlank(answer) {
			continue
		}
		b.WriteString("\n\n**")
		b.WriteString(sectionHeader(questions, i))
		b.WriteString(":**\n")
		b.WriteString(answer)
	}

	closing := []string{
		"\n\nBased on the demonstrated excellence and clear potential for leadership/scholarship (as detailed above), I give my strongest possible endorsement.",
		"I am confident that they will not only succeed but will profoundly contribute to your program. Please feel free to contact me with any further questions.",
		"\nSincerely,",
		recommenderField(rec, func(r *types.RecommenderInfo) string { return r.Name }, PlaceholderName),
		recommenderTitle(rec),
		recommenderField(rec, func(r *types.RecommenderInfo) string { return r.Company }, PlaceholderCompany),
	}
	b.WriteString(strings.Join(closing, "\n"))

	return b.String()
}

func sectionHeader(questions []types.Question, index int) string {
	if index < 0 || index >= len(questions) {
		return GeneralAssessmentHeader
	}
	return questions[index].FocusQuality
}

func relationshipLabel(rec *types.RecommenderInfo) string {
	if rec == nil {
		return PlaceholderRelationship
	}
	if rec.RelationshipOther != "" {
		return rec.Relationship + " (" + rec.RelationshipOther + ")"
	}
	return rec.Relationship
}

func companySuffix(rec *types.RecommenderInfo) string {
	if rec == nil || isBlank(rec.Company) {
		return ""
	}
	return " at " + rec.Company
}

func recommenderTitle(rec *types.RecommenderInfo) string {
	return recommenderField(rec, func(r *types.RecommenderInfo) string { return r.Title }, PlaceholderTitle)
}

func recommenderField(rec *types.RecommenderInfo, get func(*types.RecommenderInfo) string, placeholder string) string {
	if rec == nil {
		return placeholder
	}
	return orDefault(get(rec), placeholder)
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// ExportFilename returns the download name for a letter about the named applicant
func ExportFilename(applicantName string) string {
	return "Recommendation_" + whitespaceRun.ReplaceAllString(applicantName, "_") + "_Draft.txt"
}
