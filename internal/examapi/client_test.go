package examapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/model"
)

func newTestClient(baseURL string, maxRetries int) *Client {
	return NewClient(baseURL, 2*time.Second, maxRetries, time.Millisecond, zerolog.Nop())
}

func TestGetExam(t *testing.T) {
	examID := uuid.New()
	envelope := model.ExamEnvelope{
		Exam: model.Exam{
			ID:              examID,
			Title:           "Ujian Fisika",
			DurationMinutes: 90,
		},
		HasSubmitted: false,
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/exams/"+examID.String(), r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(envelope)
	}))
	defer srv.Close()

	got, err := newTestClient(srv.URL, 3).GetExam(context.Background(), examID, "secret")
	require.NoError(t, err)
	assert.Equal(t, envelope.Exam.ID, got.Exam.ID)
	assert.Equal(t, 90, got.Exam.DurationMinutes)
	assert.False(t, got.HasSubmitted)
}

func TestGetExamErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"not found", http.StatusNotFound, ErrExamNotFound},
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL, 3).GetExam(context.Background(), uuid.New(), "secret")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGetExamUpstreamDownIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 3).GetExam(context.Background(), uuid.New(), "secret")
	var te *TransientError
	assert.ErrorAs(t, err, &te)
	assert.False(t, IsTerminal(err))
}

func TestSubmitSuccess(t *testing.T) {
	examID := uuid.New()
	qID := uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/submissions", r.URL.Path)

		var req model.SubmissionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, examID, req.ExamID)
		assert.Equal(t, 2, req.Answers[qID])
		assert.Equal(t, 15, req.TimeSpentMinutes)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(model.SubmissionResult{Score: 80, TotalScore: 100, ExamID: examID})
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL, 3).Submit(context.Background(), "secret", model.SubmissionRequest{
		ExamID:           examID,
		Answers:          map[uuid.UUID]int{qID: 2},
		TimeSpentMinutes: 15,
	})
	require.NoError(t, err)
	assert.Equal(t, 80.0, res.Score)
	assert.Equal(t, 100.0, res.TotalScore)
}

func TestSubmitRetriesTransientThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(model.SubmissionResult{Score: 50, TotalScore: 100})
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL, 3).Submit(context.Background(), "secret", model.SubmissionRequest{ExamID: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 50.0, res.Score)
}

func TestSubmitExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 3).Submit(context.Background(), "secret", model.SubmissionRequest{ExamID: uuid.New()})
	assert.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSubmitDuplicateIsTerminal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "You have already submitted this exam"})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 3).Submit(context.Background(), "secret", model.SubmissionRequest{ExamID: uuid.New()})
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	assert.Equal(t, int32(1), calls.Load(), "terminal rejections must not be retried")
}

func TestSubmitValidationRejectionIsTerminal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "Invalid request data"})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 3).Submit(context.Background(), "secret", model.SubmissionRequest{ExamID: uuid.New()})
	var se *SubmissionError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "Invalid request data", se.Message)
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, IsTerminal(err))
}
