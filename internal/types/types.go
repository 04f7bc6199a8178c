package types

import (
	"slices"
	"sort"
	"strings"
	"time"
)

// QualitySlots is the fixed number of quality/anecdote pairs an applicant supplies
const QualitySlots = 3

// ProgramContext describes the applicant and the opportunity being applied for
type ProgramContext struct {
	ApplicantName      string     `json:"applicantName" yaml:"applicantName"`
	TargetProgramName  string     `json:"targetProgramName" yaml:"targetProgramName"`
	SubmissionDeadline string     `json:"submissionDeadline" yaml:"submissionDeadline"`
	OpportunityContext string     `json:"opportunityContext" yaml:"opportunityContext"`
	CoreQualities      []string   `json:"coreQualities" yaml:"coreQualities"`
	SpecificAnecdotes  []string   `json:"specificAnecdotes" yaml:"specificAnecdotes"`
	CustomQuestions    []Question `json:"customQuestions" yaml:"customQuestions"`
	WebhookURL         string     `json:"webhookUrl,omitempty" yaml:"webhookUrl,omitempty"`
}

// Normalized returns a copy whose quality and anecdote lists hold exactly QualitySlots entries
func (c ProgramContext) Normalized() ProgramContext {
	out := c
	out.CoreQualities = fitSlots(c.CoreQualities)
	out.SpecificAnecdotes = fitSlots(c.SpecificAnecdotes)
	out.CustomQuestions = slices.Clone(c.CustomQuestions)
	return out
}

func fitSlots(values []string) []string {
	out := make([]string, QualitySlots)
	copy(out, values)
	return out
}

// QualityAt returns the quality at index i, or "" when unset
func (c ProgramContext) QualityAt(i int) string {
	if i < 0 || i >= len(c.CoreQualities) {
		return ""
	}
	return c.CoreQualities[i]
}

// AnecdoteAt returns the anecdote paired with quality i, or "" when unset
func (c ProgramContext) AnecdoteAt(i int) string {
	if i < 0 || i >= len(c.SpecificAnecdotes) {
		return ""
	}
	return c.SpecificAnecdotes[i]
}

// SeedsChanged reports whether any field that feeds question generation differs.
// Custom questions become stale whenever this is true.
func (c ProgramContext) SeedsChanged(other ProgramContext) bool {
	a, b := c.Normalized(), other.Normalized()
	return a.ApplicantName != b.ApplicantName ||
		a.TargetProgramName != b.TargetProgramName ||
		a.OpportunityContext != b.OpportunityContext ||
		!slices.Equal(a.CoreQualities, b.CoreQualities) ||
		!slices.Equal(a.SpecificAnecdotes, b.SpecificAnecdotes)
}

// DefaultProgramContext returns the context a fresh installation starts with
func DefaultProgramContext() ProgramContext {
	return ProgramContext{
		ApplicantName:      "Jeffrey Clarke",
		TargetProgramName:  "PosseNext Alumni Fellowship",
		SubmissionDeadline: "2025-12-09",
		OpportunityContext: `An invite-only prestigious fellowship focusing on leadership development and community impact for early career Posse Alum.

After 36 years, Posse boasts more than 8,000 graduates. The PosseNext Fellows Program is a career accelerator for exceptional Posse alumni.

Twenty-five Posse Alumni will be selected as the very first cohort of PosseNext Fellows. These Fellows will participate in an exclusive three-month program that will fit their current schedule and responsibilities. PosseNext Fellows will:
- Get matched with an executive coach in the industry of their interest and experience;
- Receive access to a private speaker series with industry leaders and experts;
- Attend an all-expense-paid kickoff retreat;
- Receive a $2,500 stipend.

Recommendations should emphasize leadership, values, and professional vision, not just accomplishments, but how the applicant embodies these qualities consistently.`,
		CoreQualities: []string{
			"Leadership & Teamwork",
			"Commitment to Posse Values",
			"Professional Growth & Vision",
		},
		SpecificAnecdotes: []string{
			"Share specific examples of when you took initiative, guided a team, or influenced outcomes. Emphasize consistency of leadership across professional, academic, and community settings.",
			"Show how you embody Posse’s mission of diversity, equity, and collaboration. Provide anecdotes of applying Posse values in real-world contexts (workplace, graduate school, civic engagement).",
			"Speak to your trajectory: how you’ve grown, adapted, and taken on increasing responsibility. Reinforce your clarity of vision and ability to translate ambition into action.",
		},
		CustomQuestions: []Question{},
	}
}

// RelationshipOther is the relationship label that enables the free-text override
const RelationshipOther = "Other"

// RelationshipOptions is the fixed set of relationship labels a recommender can choose from
var RelationshipOptions = []string{
	"Direct Supervisor or Manager",
	"Dean of Graduate Program",
	"Mentor / Campus Liaison (Posse)",
	"Posse Mate",
	"Professional Mentor / Coach",
	"Former Supervisor",
	"Pastor / Spiritual Mentor",
	"Professor / Instructor",
	RelationshipOther,
}

// IsValidRelationship reports whether label is one of RelationshipOptions
func IsValidRelationship(label string) bool {
	return slices.Contains(RelationshipOptions, label)
}

// RecommenderInfo identifies the person writing the letter
type RecommenderInfo struct {
	Name              string `json:"name" yaml:"name"`
	Title             string `json:"title" yaml:"title"`
	Company           string `json:"company" yaml:"company"`
	Relationship      string `json:"relationship" yaml:"relationship"`
	RelationshipOther string `json:"otherRelationship,omitempty" yaml:"otherRelationship,omitempty"`
}

// Question is a single interview prompt shown to the recommender
type Question struct {
	ID             string `json:"id" yaml:"id"`
	Text           string `json:"text" yaml:"text"`
	FocusQuality   string `json:"focusQuality" yaml:"focusQuality"`
	ContextContext string `json:"contextContext" yaml:"contextContext"`
}

// AnswerMap maps a question position to the recommender's response
type AnswerMap map[int]string

// Indices returns the answer positions in ascending order
func (a AnswerMap) Indices() []int {
	idx := make([]int, 0, len(a))
	for i := range a {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

// HasContent reports whether at least one answer is non-blank
func (a AnswerMap) HasContent() bool {
	for _, v := range a {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

// Clone returns an independent copy of the map
func (a AnswerMap) Clone() AnswerMap {
	out := make(AnswerMap, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// DraftLabel records where a draft came from
type DraftLabel string

const (
	DraftLabelAI       DraftLabel = "AI Generated"
	DraftLabelFallback DraftLabel = "Template (Fallback)"
	DraftLabelTemplate DraftLabel = "Template"
	DraftLabelManual   DraftLabel = "Manual Edit"
)

// Draft is an immutable snapshot of a generated or edited letter
type Draft struct {
	ID        string     `json:"id"`
	Timestamp time.Time  `json:"timestamp"`
	Content   string     `json:"content"`
	Label     DraftLabel `json:"label"`
}

// AudioPayload is a recorded voice memo
type AudioPayload struct {
	Data     []byte `json:"data"`
	MIMEType string `json:"mimeType"`
}

// DefaultAudioMIMEType is assumed when a recording carries no type
const DefaultAudioMIMEType = "audio/webm"

// EffectiveMIMEType returns the payload MIME type or the default
func (p *AudioPayload) EffectiveMIMEType() string {
	if p == nil || p.MIMEType == "" {
		return DefaultAudioMIMEType
	}
	return p.MIMEType
}

// TailorQuestionsInput is the request for AI-tailored interview questions
type TailorQuestionsInput struct {
	Context     ProgramContext   `json:"context"`
	Recommender *RecommenderInfo `json:"recommender,omitempty"`
}

// TailorQuestionsOutput holds the AI-proposed question list
type TailorQuestionsOutput struct {
	Questions []Question `json:"questions"`
}

// GenerateLetterInput is the request for an AI-written letter
type GenerateLetterInput struct {
	Context     ProgramContext   `json:"context"`
	Answers     AnswerMap        `json:"answers"`
	Questions   []Question       `json:"questions"`
	Audio       *AudioPayload    `json:"audio,omitempty"`
	Recommender *RecommenderInfo `json:"recommender,omitempty"`
}

// GenerateLetterOutput holds the generated letter body
type GenerateLetterOutput struct {
	Letter string `json:"letter"`
}

// AnalyzeAudioInput is the request to transcribe a recording against a question list
type AnalyzeAudioInput struct {
	Audio     AudioPayload `json:"audio"`
	Questions []Question   `json:"questions"`
}

// Transcript is one question's share of a recording
type Transcript struct {
	QuestionID string `json:"questionId"`
	Text       string `json:"text"`
}

// AnalyzeAudioOutput maps question ids to the transcribed answer text.
// The key "general" holds speech not tied to any question.
type AnalyzeAudioOutput struct {
	Transcripts map[string]string `json:"transcripts"`
}

// GeneralTranscriptKey collects transcribed speech that does not answer a specific question
const GeneralTranscriptKey = "general"
