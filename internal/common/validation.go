package common

import (
	"fmt"
	"slices"

	"recletter/internal/errors"
	"recletter/internal/types"
)

// ValidateOutputFormat validates format against configured supported formats
func ValidateOutputFormat(format string, supportedFormats []string) error {
	if len(supportedFormats) == 0 {
		return nil // No restrictions configured
	}

	if slices.Contains(supportedFormats, format) {
		return nil
	}

	return fmt.Errorf("unsupported output format '%s'. Supported formats: %v",
		format, supportedFormats)
}

// GetSupportedFormats returns the list of supported formats
func GetSupportedFormats(supportedFormats []string) []string {
	return supportedFormats
}

// ValidateInterview checks an interview file before a letter is written.
// requireRecommender is set for the AI path, which needs a named writer.
func ValidateInterview(iv Interview, hasAudio, requireRecommender bool) error {
	rec := iv.Recommender
	if requireRecommender && (rec == nil || rec.Name == "" || rec.Title == "") {
		return errors.NewValidationError(errors.ErrCodeMissingRecommender,
			"Please fill in your Name and Title.", nil)
	}
	if rec != nil && rec.Relationship != "" && !types.IsValidRelationship(rec.Relationship) {
		return errors.NewValidationError(errors.ErrCodeInvalidRelationship,
			fmt.Sprintf("unknown relationship %q; expected one of %v", rec.Relationship, types.RelationshipOptions), nil)
	}
	if !iv.Answers.HasContent() && !hasAudio {
		return errors.NewValidationError(errors.ErrCodeNoAnswers,
			"Please answer at least one question or record audio.", nil)
	}
	return nil
}
