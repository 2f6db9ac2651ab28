package types

import "github.com/mehtab-afsar/qcombinator-backend/internal/scoring"

// SubmitAssessmentRequest is the request body for the assessment endpoint.
// Sector may be empty; the default weighting profile applies.
type SubmitAssessmentRequest struct {
	Sector   string                             `json:"sector"`
	Sections map[string]scoring.SectionResponse `json:"sections" binding:"required"`
}

// CompleteArtifactRequest is the request body for artifact completion signals
type CompleteArtifactRequest struct {
	ArtifactType string `json:"artifact_type" binding:"required"`
}
