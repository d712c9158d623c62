package webapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"mailsched/internal/chatbot"
	"mailsched/internal/schedule"
	"mailsched/internal/storage"
	logx "mailsched/pkg/logx"
)

// Armer mirrors dispatch.Service.
type Armer interface {
	Arm(id uuid.UUID, at time.Time)
	Disarm(id uuid.UUID)
}

type Handler struct {
	store storage.Store
	armer Armer
	chat  *chatbot.Service
	loc   *time.Location
	log   logx.Logger

	now func() time.Time
}

func NewHandler(store storage.Store, armer Armer, chat *chatbot.Service, loc *time.Location, log logx.Logger) *Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	if loc == nil {
		loc = schedule.DefaultLocation()
	}
	return &Handler{store: store, armer: armer, chat: chat, loc: loc, log: log, now: time.Now}
}

func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": h.now().UTC()})
}

type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}

// POST /api/auth/register
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid request", "detail": err.Error()})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "could not hash password"})
		return
	}
	u := storage.User{
		ID:           uuid.New(),
		Email:        strings.ToLower(req.Email),
		Username:     req.Username,
		PasswordHash: hash,
		CreatedAt:    h.now(),
	}
	if err := h.store.CreateUser(c.Request.Context(), u); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Email already exists"})
			return
		}
		h.log.Error("register failed", logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "registration failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success", "user_id": u.ID, "message": "User registered successfully"})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// POST /api/auth/login
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid request"})
		return
	}

	u, err := h.store.UserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "User not found"})
			return
		}
		h.log.Error("login lookup failed", logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "login failed"})
		return
	}
	if bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "Invalid credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "success",
		"user_id":  u.ID,
		"username": u.Username,
		"email":    u.Email,
		"message":  "Login successful",
	})
}

type scheduleRequest struct {
	RecipientEmail string `json:"recipient_email" binding:"required,email"`
	Subject        string `json:"subject"`
	Content        string `json:"content" binding:"required"`
	EmailHeader    string `json:"email_header"`
	ScheduledTime  string `json:"scheduled_time" binding:"required"`
	RecurrenceType string `json:"recurrence_type"`
}

// POST /api/email/schedule
func (h *Handler) Schedule(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Missing required fields: recipient_email, content, scheduled_time", "detail": err.Error()})
		return
	}

	at, err := parseScheduledTime(req.ScheduledTime, h.loc)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Invalid datetime format. Use ISO format: 2025-11-07T14:00:00"})
		return
	}
	rec, err := schedule.ParseRecurrence(req.RecurrenceType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Invalid recurrence_type"})
		return
	}

	// The recipient owns the schedule; first contact creates the account.
	user, err := h.store.EnsureUser(c.Request.Context(), req.RecipientEmail)
	if err != nil {
		h.log.Error("ensure user failed", logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "scheduling failed"})
		return
	}

	subject := req.Subject
	if subject == "" {
		subject = "Scheduled Message"
	}
	header := req.EmailHeader
	if header == "" {
		header = "Scheduled Message"
	}
	next := at
	e := schedule.Email{
		ID:          uuid.New(),
		OwnerID:     user.ID,
		Recipient:   req.RecipientEmail,
		Subject:     subject,
		Body:        req.Content,
		Header:      header,
		ScheduledAt: at,
		Recurrence:  rec,
		Active:      true,
		NextSendAt:  &next,
		CreatedAt:   h.now(),
	}
	if err := h.store.CreateEmail(c.Request.Context(), e); err != nil {
		h.log.Error("schedule create failed", logx.Err(err))
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Error scheduling email"})
		return
	}
	if h.armer != nil {
		h.armer.Arm(e.ID, at)
	}

	c.JSON(http.StatusCreated, gin.H{
		"status":    "success",
		"email_id":  e.ID,
		"message":   "✅ Email scheduled for " + at.Format("Monday, January 02 at 03:04 PM MST"),
		"recipient": req.RecipientEmail,
	})
}

// GET /api/email/list?recipient_email=...
func (h *Handler) List(c *gin.Context) {
	recipient := strings.TrimSpace(c.Query("recipient_email"))
	if recipient == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "recipient_email is required"})
		return
	}

	user, err := h.store.UserByEmail(c.Request.Context(), recipient)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusOK, gin.H{"status": "success", "count": 0, "emails": []schedule.Email{}})
			return
		}
		h.log.Error("list lookup failed", logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "listing failed"})
		return
	}
	emails, err := h.store.ActiveByOwner(c.Request.Context(), user.ID)
	if err != nil {
		h.log.Error("list failed", logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "listing failed"})
		return
	}
	if emails == nil {
		emails = []schedule.Email{}
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "count": len(emails), "emails": emails})
}

// DELETE /api/email/cancel/:id
func (h *Handler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid email id"})
		return
	}

	e, err := h.store.Email(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "❌ Email not found"})
			return
		}
		h.log.Error("cancel lookup failed", logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "cancel failed"})
		return
	}
	if err := h.store.Deactivate(c.Request.Context(), id, e.OwnerID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "❌ Email not found"})
			return
		}
		h.log.Error("cancel failed", logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "cancel failed"})
		return
	}
	if h.armer != nil {
		h.armer.Disarm(id)
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "✅ Email \"" + e.Subject + "\" has been cancelled"})
}

type parseRequest struct {
	RequestText    string `json:"request_text" binding:"required"`
	RecipientEmail string `json:"recipient_email"`
	EmailHeader    string `json:"email_header"`
}

// POST /api/email/parse
//
// Dry-run: extracts the pieces of a natural language request without
// creating anything.
func (h *Handler) Parse(c *gin.Context) {
	var req parseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "No request text provided"})
		return
	}

	parsed, err := chatbot.Parse(req.RequestText, h.now(), h.loc)
	switch {
	case errors.Is(err, chatbot.ErrNoContent):
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": `Could not extract email content. Use format: Send me "Your message" on [date] at [time]`})
		return
	case errors.Is(err, chatbot.ErrNoEmail) && req.RecipientEmail == "":
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Recipient email required"})
		return
	case errors.Is(err, chatbot.ErrNoTime):
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Could not parse time. Use format: 2pm, 14:00, 2:30pm"})
		return
	case err != nil && !errors.Is(err, chatbot.ErrNoEmail):
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Could not parse request"})
		return
	}

	recipient := req.RecipientEmail
	if recipient == "" {
		recipient = parsed.Recipient
	}
	header := req.EmailHeader
	if header == "" {
		header = parsed.Header
	}
	if header == "" {
		header = "Scheduled Message"
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"parsed_data": gin.H{
			"subject":         parsed.Subject,
			"content":         parsed.Content,
			"recipient_email": recipient,
			"scheduled_time":  parsed.At,
			"recurrence_type": parsed.Recurrence,
			"email_header":    header,
		},
		"message": "Email request parsed successfully",
	})
}

type webhookRequest struct {
	Type    string `json:"type"`
	Message struct {
		Text string `json:"text"`
	} `json:"message"`
	SenderID    string `json:"sender_id"`
	SenderEmail string `json:"sender_email" binding:"required,email"`
	ChannelID   string `json:"channel_id"`
}

// POST /api/chat/webhook
//
// The reply travels back in the response body; the chat platform relays
// it to the channel.
func (h *Handler) ChatWebhook(c *gin.Context) {
	var req webhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid webhook payload"})
		return
	}
	if req.Type != "" && req.Type != "message" {
		c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Event processed"})
		return
	}
	text := strings.TrimSpace(req.Message.Text)
	if text == "" {
		c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Empty message ignored"})
		return
	}

	reply := h.chat.Handle(c.Request.Context(), req.SenderEmail, text)
	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"channel_id": req.ChannelID,
		"reply":      reply,
	})
}

// parseScheduledTime accepts RFC3339 or a naive ISO timestamp, which is
// interpreted in the service timezone.
func parseScheduledTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), nil
	}
	return time.ParseInLocation("2006-01-02T15:04:05", s, loc)
}
