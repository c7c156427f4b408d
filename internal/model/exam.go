package model

import (
	"github.com/google/uuid"
)

// Question is a single exam question as served to the taker.
// The correct answer never crosses this boundary.
type Question struct {
	ID           uuid.UUID `json:"id"`
	QuestionText string    `json:"questionText"`
	Options      []string  `json:"options"`
	Points       int       `json:"points"`
}

// Exam is the paper payload fetched from exstem-backend.
type Exam struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	Description     *string    `json:"description"`
	DurationMinutes int        `json:"durationMinutes"`
	Questions       []Question `json:"questions"`
}

// SubmissionSummary is the server-computed result of a recorded attempt.
// The gateway never computes scores itself.
type SubmissionSummary struct {
	Score            float64 `json:"score"`
	TotalScore       float64 `json:"totalScore"`
	TimeSpentMinutes int     `json:"timeSpentMinutes"`
}

// ExamEnvelope is the response of GET /exams/{id} on the upstream API.
type ExamEnvelope struct {
	Exam         Exam               `json:"exam"`
	HasSubmitted bool               `json:"hasSubmitted"`
	Submission   *SubmissionSummary `json:"submission,omitempty"`
}

// SubmissionRequest is the body of POST /submissions on the upstream API.
// Answers map question ID to the chosen option index.
type SubmissionRequest struct {
	ExamID           uuid.UUID         `json:"examId"`
	Answers          map[uuid.UUID]int `json:"answers"`
	TimeSpentMinutes int               `json:"timeSpentMinutes"`
}

// SubmissionResult is the 201 response of POST /submissions.
type SubmissionResult struct {
	Score      float64   `json:"score"`
	TotalScore float64   `json:"totalScore"`
	ExamID     uuid.UUID `json:"examId"`
}
