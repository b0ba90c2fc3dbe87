package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"folionotify/internal/mailer"
	"folionotify/internal/notify"
	"folionotify/pkg/logx"
)

// ---- public ----

type contactRequest struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Subject string `json:"subject"`
	Message string `json:"message" validate:"required"`
}

func (s *Server) handleContact(c echo.Context) error {
	var req contactRequest
	if err := c.Bind(&req); err != nil {
		return &ValidationError{Field: "body", Message: "invalid request body"}
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if s.tracker != nil {
		s.tracker.RecordMessage()
	}

	rec, err := s.engine.NotifyContactSubmission(c.Request().Context(), notify.ContactSubmission{
		Name:    req.Name,
		Email:   req.Email,
		Subject: req.Subject,
		Message: req.Message,
	})
	if err != nil {
		return err
	}

	// Mail relay is best-effort and must not hold the response.
	go s.relayContact(req)

	return JSON(c, http.StatusCreated, rec)
}

func (s *Server) relayContact(req contactRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	subject := req.Subject
	if subject == "" {
		subject = "No subject"
	}
	err := s.mail.Send(ctx, mailer.Message{
		Subject: fmt.Sprintf("Contact form: %s", subject),
		Body:    fmt.Sprintf("From: %s <%s>\n\n%s", req.Name, req.Email, req.Message),
		ReplyTo: req.Email,
	})
	if err != nil {
		s.log.Warn("contact mail relay failed", logx.Err(err))
	}
}

func (s *Server) handlePublicProjects(c echo.Context) error {
	return JSON(c, http.StatusOK, s.registry.Published())
}

func (s *Server) handleProjectView(c echo.Context) error {
	p, err := s.registry.Get(c.Param("id"))
	if err != nil {
		return err
	}

	views := s.tracker.RecordView(p.ID, p.Title)

	// Fires only on exact milestone membership; nil record otherwise.
	if _, err := s.engine.NotifyProjectMilestone(c.Request().Context(), p, views); err != nil {
		s.log.Warn("milestone notification failed",
			logx.String("project", p.ID), logx.Err(err))
	}

	return JSON(c, http.StatusOK, map[string]any{"views": views})
}

type loginRequest struct {
	Password string `json:"password" validate:"required"`
}

func (s *Server) handleLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return &ValidationError{Field: "body", Message: "invalid request body"}
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if !s.auth.checkPassword(req.Password) {
		return errUnauthorized
	}

	now := time.Now()
	token, err := s.auth.issueToken(now)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, map[string]any{
		"token":     token,
		"expiresAt": now.Add(s.auth.ttl).Format(time.RFC3339),
	})
}

// ---- admin: notification feed ----

// feedItem pairs a record with its dashboard navigation target.
type feedItem struct {
	notify.Record
	Action notify.FeedAction `json:"action"`
}

type feedResponse struct {
	Notifications []feedItem `json:"notifications"`
	Unread        int        `json:"unread"`
}

func (s *Server) feedSnapshot(category, status, sortBy string, desc bool) feedResponse {
	recs := s.feed.Snapshot()
	recs = notify.FilterRecords(recs, notify.FeedFilter{
		Category: notify.Category(category),
		Status:   status,
	})
	recs = notify.SortRecords(recs, sortBy, desc)

	items := make([]feedItem, 0, len(recs))
	for _, r := range recs {
		items = append(items, feedItem{Record: r, Action: notify.ActionFor(r)})
	}
	return feedResponse{Notifications: items, Unread: s.feed.UnreadCount()}
}

func (s *Server) handleNotifications(c echo.Context) error {
	resp := s.feedSnapshot(
		c.QueryParam("category"),
		c.QueryParam("status"),
		c.QueryParam("sort"),
		c.QueryParam("order") != "asc",
	)
	return JSON(c, http.StatusOK, resp)
}

func (s *Server) handleMarkRead(c echo.Context) error {
	if err := s.feed.MarkRead(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return JSON(c, http.StatusOK, map[string]any{"unread": s.feed.UnreadCount()})
}

func (s *Server) handleMarkUnread(c echo.Context) error {
	if err := s.feed.MarkUnread(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return JSON(c, http.StatusOK, map[string]any{"unread": s.feed.UnreadCount()})
}

func (s *Server) handleReadAll(c echo.Context) error {
	n, err := s.feed.MarkAllRead(c.Request().Context())
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, map[string]any{"updated": n})
}

func (s *Server) handleDeleteNotification(c echo.Context) error {
	if err := s.feed.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// handleStream pushes the live feed over server-sent events. Every change to
// the top-N list resends the full snapshot; a comment line every 30s keeps
// proxies from closing the idle connection.
func (s *Server) handleStream(c echo.Context) error {
	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ch, unsub := s.feed.Subscribe(4)
	defer unsub()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return nil
			}
			w.Flush()
		case recs, ok := <-ch:
			if !ok {
				return nil
			}
			items := make([]feedItem, 0, len(recs))
			unread := 0
			for _, r := range recs {
				if !r.Read {
					unread++
				}
				items = append(items, feedItem{Record: r, Action: notify.ActionFor(r)})
			}
			b, err := json.Marshal(feedResponse{Notifications: items, Unread: unread})
			if err != nil {
				s.log.Warn("stream encode failed", logx.Err(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}

// ---- admin: projects ----

func (s *Server) handleAdminProjects(c echo.Context) error {
	return JSON(c, http.StatusOK, s.registry.List())
}

type projectUpdateRequest struct {
	Published *bool `json:"published"`
	Featured  *bool `json:"featured"`
}

func (s *Server) handleProjectUpdate(c echo.Context) error {
	var req projectUpdateRequest
	if err := c.Bind(&req); err != nil {
		return &ValidationError{Field: "body", Message: "invalid request body"}
	}
	if req.Published == nil && req.Featured == nil {
		return &ValidationError{Field: "body", Message: "nothing to update"}
	}

	p, oldStatus, newStatus, err := s.registry.Apply(c.Param("id"), req.Published, req.Featured)
	if err != nil {
		return err
	}

	if s.tracker != nil {
		s.tracker.SetProjectCounts(s.registry.Counts())
	}

	if oldStatus != newStatus {
		if _, err := s.engine.NotifyProjectStatus(c.Request().Context(), p, oldStatus, newStatus); err != nil {
			s.log.Warn("status notification failed",
				logx.String("project", p.ID), logx.Err(err))
		}
	}

	return JSON(c, http.StatusOK, p)
}

// ---- admin: operational events ----

type eventRequest struct {
	Type string `json:"type" validate:"required,oneof=maintenance security backup"`

	// maintenance
	Kind         string `json:"kind,omitempty"`
	ScheduledFor string `json:"scheduledFor,omitempty"` // RFC 3339

	// security
	Severity string `json:"severity,omitempty"`

	// backup
	Status string `json:"status,omitempty"`

	Detail string `json:"detail,omitempty"`
}

// handleEvent records a maintenance, security or backup notification reported
// by an external operator or job.
func (s *Server) handleEvent(c echo.Context) error {
	var req eventRequest
	if err := c.Bind(&req); err != nil {
		return &ValidationError{Field: "body", Message: "invalid request body"}
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	var rec *notify.Record
	var err error

	switch req.Type {
	case "maintenance":
		kind := notify.MaintenanceKind(req.Kind)
		switch kind {
		case notify.MaintenanceScheduled, notify.MaintenanceEmergency, notify.MaintenanceCompleted:
		default:
			return &ValidationError{Field: "kind", Message: "must be scheduled, emergency or completed"}
		}
		ev := notify.MaintenanceEvent{Kind: kind, Detail: req.Detail}
		if req.ScheduledFor != "" {
			at, perr := time.Parse(time.RFC3339, req.ScheduledFor)
			if perr != nil {
				return &ValidationError{Field: "scheduledFor", Message: "must be RFC 3339"}
			}
			ev.ScheduledFor = at
		}
		rec, err = s.engine.NotifyMaintenance(ctx, ev)

	case "security":
		tier := notify.SecurityTier(req.Severity)
		switch tier {
		case notify.SecurityLow, notify.SecurityMedium, notify.SecurityHigh, notify.SecurityCritical:
		default:
			return &ValidationError{Field: "severity", Message: "must be low, medium, high or critical"}
		}
		if req.Kind == "" {
			return &ValidationError{Field: "kind", Message: "required for security events"}
		}
		rec, err = s.engine.NotifySecurity(ctx, notify.SecurityEvent{
			Kind:     req.Kind,
			Detail:   req.Detail,
			Severity: tier,
		})

	case "backup":
		status := notify.BackupStatus(req.Status)
		if status != notify.BackupSucceeded && status != notify.BackupFailed {
			return &ValidationError{Field: "status", Message: "must be succeeded or failed"}
		}
		rec, err = s.engine.NotifyBackup(ctx, notify.BackupEvent{Status: status, Detail: req.Detail})
	}

	if err != nil {
		return err
	}
	return JSON(c, http.StatusCreated, rec)
}
