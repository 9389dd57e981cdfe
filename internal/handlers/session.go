package handlers

import (
	"telehealth/internal/models"
	"telehealth/internal/services"
	"telehealth/internal/utils"

	"github.com/gin-gonic/gin"
)

type SessionHandler struct {
	sessions *services.VideoSessionService
}

func NewSessionHandler(sessions *services.VideoSessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

type createSessionRequest struct {
	AppointmentID string `json:"appointment_id" binding:"required" validate:"required,object_id"`
}

type joinSessionRequest struct {
	Quality models.ConnectionQuality `json:"quality" validate:"omitempty,connection_quality"`
}

type setStatusRequest struct {
	Status models.SessionStatus `json:"status" binding:"required" validate:"required,session_status"`
	Notes  *string              `json:"notes" validate:"omitempty,max=5000"`
}

type notesRequest struct {
	Text string `json:"text" validate:"max=5000"`
}

type issueRequest struct {
	Issue string `json:"issue" binding:"required" validate:"required,max=500"`
}

type consentRequest struct {
	Consent *bool `json:"consent" binding:"required" validate:"required"`
}

type qualityRequest struct {
	Quality models.ConnectionQuality `json:"quality" binding:"required" validate:"required,connection_quality"`
}

// CreateSession returns the appointment's session, creating it on first use.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	caller, ok := identity(c)
	if !ok {
		return
	}
	var req createSessionRequest
	if !bindJSON(c, &req) {
		return
	}

	session, err := h.sessions.Create(c.Request.Context(), caller, req.AppointmentID)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, session)
}

func (h *SessionHandler) ListSessions(c *gin.Context) {
	caller, ok := identity(c)
	if !ok {
		return
	}
	sessions, err := h.sessions.ListSessions(c.Request.Context(), caller, queryInt(c, "limit", 0))
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, sessions)
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	caller, ok := identity(c)
	if !ok {
		return
	}
	session, err := h.sessions.GetSession(c.Request.Context(), c.Param("room_id"), caller)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, session)
}

func (h *SessionHandler) GetByAppointment(c *gin.Context) {
	caller, ok := identity(c)
	if !ok {
		return
	}
	session, err := h.sessions.GetByAppointment(c.Request.Context(), c.Param("appointment_id"), caller)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, session)
}

func (h *SessionHandler) JoinSession(c *gin.Context) {
	caller, ok := identity(c)
	if !ok {
		return
	}
	var req joinSessionRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	if req.Quality == "" {
		req.Quality = models.QualityGood
	}

	session, err := h.sessions.Join(c.Request.Context(), c.Param("room_id"), caller, req.Quality)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, session.Summary())
}

func (h *SessionHandler) LeaveSession(c *gin.Context) {
	caller, ok := identity(c)
	if !ok {
		return
	}
	session, err := h.sessions.Leave(c.Request.Context(), c.Param("room_id"), caller)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, session.Summary())
}

// SetStatus drives the session state machine. Ending reports whether the
// appointment was marked completed inline.
func (h *SessionHandler) SetStatus(c *gin.Context) {
	caller, ok := identity(c)
	if !ok {
		return
	}
	var req setStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	var notes *services.NotesUpdate
	if req.Notes != nil {
		notes = &services.NotesUpdate{Text: *req.Notes}
	}

	result, err := h.sessions.SetStatus(c.Request.Context(), c.Param("room_id"), caller, req.Status, notes)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, result)
}

func (h *SessionHandler) UpdateNotes(c *gin.Context) {
	caller, ok := identity(c)
	if !ok {
		return
	}
	var req notesRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.sessions.UpdateNotes(c.Request.Context(), c.Param("room_id"), caller, req.Text)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.SuccessResponseWithMessage(c, "Notes saved", session.SessionNotes)
}

func (h *SessionHandler) ReportIssue(c *gin.Context) {
	caller, ok := identity(c)
	if !ok {
		return
	}
	var req issueRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.sessions.ReportTechnicalIssue(c.Request.Context(), c.Param("room_id"), caller, req.Issue)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.SuccessResponseWithMessage(c, "Issue recorded", session.SessionNotes.TechnicalIssues)
}

func (h *SessionHandler) SetRecordingConsent(c *gin.Context) {
	caller, ok := identity(c)
	if !ok {
		return
	}
	var req consentRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.sessions.SetRecordingConsent(c.Request.Context(), c.Param("room_id"), caller, *req.Consent)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, session.Recording)
}

func (h *SessionHandler) UpdateQuality(c *gin.Context) {
	caller, ok := identity(c)
	if !ok {
		return
	}
	var req qualityRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.sessions.UpdateConnectionQuality(c.Request.Context(), c.Param("room_id"), caller, req.Quality)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, session.Summary())
}
