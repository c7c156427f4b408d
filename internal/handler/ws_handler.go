package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler runs one proctored exam attempt per WebSocket connection. The
// browser forwards raw environment events; the session state machine on this
// side decides what they mean.
type WSHandler struct {
	proctorService *service.ProctorService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(proctorService *service.ProctorService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		proctorService: proctorService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// ProctorStream godoc
// WS /ws/v1/student/exams/:exam_id/proctor
// Upgrades to WebSocket and runs the proctored attempt until submission or
// disconnect. Disconnecting tears the session down; there is no resume.
func (h *WSHandler) ProctorStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	bearer := middleware.GetBearerToken(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	studentID := claims.UserID
	writer := ws.NewConnWriter(conn)

	wsLog := h.log.With().
		Int("student_id", studentID).
		Str("exam_id", examID.String()).
		Logger()

	wsLog.Info().Msg("Student connected")

	var session *proctor.Session
	defer func() {
		if session != nil {
			session.Close()
		}
	}()

	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		if fields := validator.Check(&msg); fields != nil {
			writer.WriteFieldErrors(fields)
			continue
		}

		if msg.Action == ws.ActionPing {
			writer.WriteTyped(ws.PongResponse{Event: ws.EventPong})
			continue
		}

		if msg.Action == ws.ActionStart {
			if session != nil {
				writer.WriteError("exam already started")
				continue
			}
			session = h.startSession(c, writer, wsLog, examID, studentID, bearer, &msg)
			continue
		}

		if session == nil {
			writer.WriteError("send start before any other action")
			continue
		}

		h.dispatch(writer, wsLog, session, &msg)
	}
}

// startSession builds and starts the attempt. Returns nil when the attempt is
// rejected (already submitted, upstream failure); the error frame has already
// been written.
func (h *WSHandler) startSession(
	c *gin.Context,
	writer *ws.ConnWriter,
	wsLog zerolog.Logger,
	examID uuid.UUID,
	studentID int,
	bearer string,
	msg *ws.RequestPayload,
) *proctor.Session {
	commands := func(cmd proctor.Command) {
		writer.WriteTyped(ws.CommandResponse{Event: ws.EventCommand, Command: cmd})
	}

	events := proctor.SessionEvents{
		OnState: func(snap proctor.StateSnapshot) {
			writer.WriteTyped(ws.StateResponse{Event: ws.EventState, State: snap})
			h.proctorService.PublishState(examID, studentID, snap)
		},
		OnTick: func(remaining int) {
			writer.WriteTyped(ws.TickResponse{Event: ws.EventTick, TimeRemaining: remaining})
		},
		OnWarning: func(tabSwitches, maxTabSwitches int) {
			writer.WriteTyped(ws.WarningResponse{
				Event:          ws.EventWarning,
				TabSwitches:    tabSwitches,
				MaxTabSwitches: maxTabSwitches,
			})
		},
		OnLocked: func(tabSwitches, maxTabSwitches int) {
			writer.WriteTyped(ws.LockedResponse{
				Event:          ws.EventLocked,
				TabSwitches:    tabSwitches,
				MaxTabSwitches: maxTabSwitches,
			})
		},
		OnSubmitted: func(res *model.SubmissionResult, elapsedMinutes int) {
			writer.WriteTyped(ws.SubmittedResponse{
				Event:            ws.EventSubmitted,
				Score:            res.Score,
				TotalScore:       res.TotalScore,
				TimeSpentMinutes: elapsedMinutes,
			})
		},
		OnSubmitFailed: func(err error, answers map[uuid.UUID]int) {
			echoed := make(map[string]int, len(answers))
			for q, a := range answers {
				echoed[q.String()] = a
			}
			writer.WriteTyped(ws.ErrorResponse{
				Event:   ws.EventError,
				Error:   err.Error(),
				Answers: echoed,
			})
		},
	}

	session, err := h.proctorService.CreateSession(
		c.Request.Context(), examID, studentID, bearer,
		msg.FullscreenSupported, commands, events,
	)
	if err != nil {
		var already *service.AlreadySubmittedError
		if errors.As(err, &already) {
			writer.WriteError(response.GetMessage(response.ErrAlreadySubmitted))
			return nil
		}
		wsLog.Error().Err(err).Msg("Session creation failed")
		writer.WriteError("failed to start the exam session")
		return nil
	}

	if err := session.Start(); err != nil {
		writer.WriteError(err.Error())
		session.Close()
		return nil
	}
	return session
}

// dispatch routes one inbound frame to the session.
func (h *WSHandler) dispatch(writer *ws.ConnWriter, wsLog zerolog.Logger, session *proctor.Session, msg *ws.RequestPayload) {
	switch msg.Action {
	case ws.ActionAnswer:
		qID, err := uuid.Parse(msg.QID)
		if err != nil {
			writer.WriteError("invalid q_id format")
			return
		}
		if msg.Option == nil {
			writer.WriteError("option is required")
			return
		}
		if err := session.SelectAnswer(qID, *msg.Option); err != nil {
			writer.WriteError(err.Error())
			return
		}
		writer.WriteTyped(ws.StateResponse{Event: ws.EventState, State: session.Snapshot()})

	case ws.ActionSubmit:
		if err := session.Submit(); err != nil {
			writer.WriteError(err.Error())
		}

	case ws.ActionAckWarning:
		session.AckWarning()

	case ws.ActionRetryFullscreen:
		if err := session.RetryFullscreen(); err != nil {
			writer.WriteError(err.Error())
		}

	case ws.ActionFullscreenResult:
		if err := session.HandleFullscreenResult(msg.OK, msg.Reason); err != nil {
			writer.WriteError(err.Error())
		}

	case ws.ActionFullscreenChange:
		session.HandleFullscreenChange(msg.Active)

	case ws.ActionVisibility:
		session.HandleVisibility(msg.Hidden)

	case ws.ActionBlur:
		session.HandleBlur()

	case ws.ActionFocus:
		session.HandleFocus()

	case ws.ActionKeyDown:
		session.HandleKeyDown(msg.Key)

	default:
		wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		writer.WriteError("unknown action: " + string(msg.Action))
	}
}
