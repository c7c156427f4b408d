package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/examapi"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
)

// AlreadySubmittedError gates session creation for exams the student has
// already completed; the existing result is attached when known.
type AlreadySubmittedError struct {
	Submission *model.SubmissionSummary
}

func (e *AlreadySubmittedError) Error() string {
	return "exam has already been submitted"
}

// ProctorService builds proctored sessions and owns the violation audit
// queueing. Session lifetime is bound to one WebSocket connection; there is no
// registry because navigating away destroys the attempt.
type ProctorService struct {
	cfg    *config.Config
	client *examapi.Client
	rdb    *redis.Client
	log    zerolog.Logger
}

// NewProctorService creates a new ProctorService.
func NewProctorService(cfg *config.Config, client *examapi.Client, rdb *redis.Client, log zerolog.Logger) *ProctorService {
	return &ProctorService{
		cfg:    cfg,
		client: client,
		rdb:    rdb,
		log:    log.With().Str("component", "proctor_service").Logger(),
	}
}

// FetchExam retrieves the exam paper and submission status for the student.
func (s *ProctorService) FetchExam(ctx context.Context, examID uuid.UUID, bearer string) (*model.ExamEnvelope, error) {
	envelope, err := s.client.GetExam(ctx, examID, bearer)
	if err != nil {
		return nil, fmt.Errorf("fetch exam: %w", err)
	}
	return envelope, nil
}

// Rules reports the proctoring thresholds applied to every session, for
// display on the start screen.
func (s *ProctorService) Rules() (maxTabSwitches, warningThreshold int) {
	return s.cfg.MaxTabSwitches, s.cfg.WarningThreshold
}

// CreateSession fetches the exam and assembles a session for one attempt.
// A prior submission blocks the attempt and surfaces the existing result.
func (s *ProctorService) CreateSession(
	ctx context.Context,
	examID uuid.UUID,
	studentID int,
	bearer string,
	fullscreenSupported bool,
	commands proctor.CommandSink,
	events proctor.SessionEvents,
) (*proctor.Session, error) {
	envelope, err := s.client.GetExam(ctx, examID, bearer)
	if err != nil {
		return nil, fmt.Errorf("fetch exam: %w", err)
	}
	if envelope.HasSubmitted {
		return nil, &AlreadySubmittedError{Submission: envelope.Submission}
	}

	session, err := proctor.NewSession(proctor.SessionConfig{
		Exam:                &envelope.Exam,
		StudentID:           studentID,
		Bearer:              bearer,
		MaxTabSwitches:      s.cfg.MaxTabSwitches,
		WarningThreshold:    s.cfg.WarningThreshold,
		LockGrace:           s.cfg.LockGrace,
		SubmitTimeout:       s.submitBudget(),
		FullscreenSupported: fullscreenSupported,
		Submitter:           s.client,
		Commands:            commands,
		Events:              events,
		Audit:               s.recordViolation,
		Log:                 s.log,
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// submitBudget leaves room for every retry attempt plus backoff.
func (s *ProctorService) submitBudget() time.Duration {
	perAttempt := s.cfg.ExamAPITimeout + s.cfg.SubmitBackoff
	return time.Duration(s.cfg.SubmitMaxRetries)*perAttempt + 5*time.Second
}

// recordViolation queues a violation event for the audit worker. Best-effort:
// a full or unreachable queue must not disturb the attempt.
func (s *ProctorService) recordViolation(ev model.ViolationEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	payload, err := json.Marshal(ev)
	if err != nil {
		s.log.Error().Err(err).Msg("Encode violation event failed")
		return
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, payload).Err(); err != nil {
		s.log.Error().Err(err).
			Str("exam_id", ev.ExamID.String()).
			Int("student_id", ev.StudentID).
			Msg("Queue violation event failed")
	}
}

// PublishState caches the latest proctoring snapshot for admin monitoring.
// Best-effort, short TTL.
func (s *ProctorService) PublishState(examID uuid.UUID, studentID int, snapshot proctor.StateSnapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	key := config.CacheKey.ProctorStateKey(examID.String(), studentID)
	if err := s.rdb.Set(ctx, key, payload, 5*time.Minute).Err(); err != nil {
		s.log.Debug().Err(err).Msg("Publish proctor state failed")
	}
}
