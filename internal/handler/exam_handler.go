package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/examapi"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// ExamHandler serves the exam paper and the proctoring rules the client must
// render on the start screen before opening the proctor stream.
type ExamHandler struct {
	proctorService *service.ProctorService
	log            zerolog.Logger
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(proctorService *service.ProctorService, log zerolog.Logger) *ExamHandler {
	return &ExamHandler{
		proctorService: proctorService,
		log:            log.With().Str("component", "exam_handler").Logger(),
	}
}

// examURI is the validated route parameter set.
type examURI struct {
	ExamID string `uri:"exam_id" json:"exam_id" binding:"required,uuid"`
}

// examResponse bundles the upstream envelope with this gateway's rules.
type examResponse struct {
	Exam             model.Exam               `json:"exam"`
	HasSubmitted     bool                     `json:"hasSubmitted"`
	Submission       *model.SubmissionSummary `json:"submission,omitempty"`
	MaxTabSwitches   int                      `json:"maxTabSwitches"`
	WarningThreshold int                      `json:"warningThreshold"`
	BlockedShortcuts []string                 `json:"blockedShortcuts"`
}

// GetExam godoc
// GET /api/v1/student/exams/:exam_id
// Proxies the exam paper from exstem-backend and attaches proctoring rules.
func (h *ExamHandler) GetExam(c *gin.Context) {
	var uri examURI
	if err := c.ShouldBindUri(&uri); err != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidID, validator.TranslateErrors(err))
		return
	}
	examID := uuid.MustParse(uri.ExamID) // Safe after the uuid binding rule

	bearer := middleware.GetBearerToken(c)

	envelope, err := h.proctorService.FetchExam(c.Request.Context(), examID, bearer)
	if err != nil {
		switch {
		case errors.Is(err, examapi.ErrExamNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, examapi.ErrUnauthorized):
			response.Fail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
		default:
			h.log.Error().Err(err).Str("exam_id", examID.String()).Msg("Upstream exam fetch failed")
			response.Fail(c, http.StatusServiceUnavailable, response.ErrUpstreamUnavailable)
		}
		return
	}

	maxTabSwitches, warningThreshold := h.proctorService.Rules()

	response.Success(c, http.StatusOK, examResponse{
		Exam:             envelope.Exam,
		HasSubmitted:     envelope.HasSubmitted,
		Submission:       envelope.Submission,
		MaxTabSwitches:   maxTabSwitches,
		WarningThreshold: warningThreshold,
		BlockedShortcuts: proctor.DeniedChords(),
	})
}
