package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"firstcontact/internal/contacts"
	"firstcontact/internal/messenger"
)

type statusResponse struct {
	Authenticated bool   `json:"authenticated"`
	MessagesSent  int64  `json:"messagesSent"`
	SessionActive bool   `json:"sessionActive"`
	MaxPerSession int    `json:"maxPerSession"`
	DelayRange    string `json:"delayRange"`
}

// Template opts in to rendering the message as a text/template per
// recipient. Without it the message is typed exactly as given.
type sendMessageRequest struct {
	Username string `json:"username"`
	Message  string `json:"message"`
	Template bool   `json:"template"`
}

type sendBulkRequest struct {
	Recipients []string `json:"recipients"`
	Message    string   `json:"message"`
	Template   bool     `json:"template"`
}

type bulkResponse struct {
	Success        bool               `json:"success"`
	SessionID      string             `json:"sessionId"`
	Results        []messenger.Result `json:"results"`
	TotalProcessed int                `json:"totalProcessed"`
	Successful     int                `json:"successful"`
	Failed         int                `json:"failed"`
	Skipped        int                `json:"skipped"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": serviceName,
		"version": Version,
		"status":  "running",
		"endpoints": map[string]string{
			"GET /status":        "Service status",
			"POST /auth":         "Check authentication",
			"POST /send-message": "Send single message",
			"POST /send-bulk":    "Send bulk messages",
			"POST /stop-session": "Stop active session",
		},
		"authenticated": s.svc.Authenticated(),
		"messagesSent":  s.svc.MessagesSent(),
		"sessionActive": s.svc.SessionActive(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Authenticated: s.svc.Authenticated(),
		MessagesSent:  s.svc.MessagesSent(),
		SessionActive: s.svc.SessionActive(),
		MaxPerSession: s.svc.MaxPerSession(),
		DelayRange:    s.delayRange,
	})
}

func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Authenticate(r.Context())
	if err != nil {
		s.log.Error("Auth endpoint error", zap.Error(err))
		if errors.Is(err, messenger.ErrBrowserInit) {
			writeError(w, http.StatusInternalServerError, "Failed to initialize browser")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decode(w, r, &req); err != nil || strings.TrimSpace(req.Username) == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "Username and message are required")
		return
	}
	if !s.svc.Authenticated() {
		writeError(w, http.StatusUnauthorized, messenger.ErrNotAuthenticated.Error())
		return
	}

	recipient := contacts.Recipient{Username: strings.TrimSpace(req.Username)}
	message, err := renderMessage(req.Message, req.Template, recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.svc.SendMessage(r.Context(), recipient.Username, message)
	switch {
	case errors.Is(err, messenger.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, err.Error())
	case err != nil:
		s.log.Error("Send message endpoint error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleSendBulk(w http.ResponseWriter, r *http.Request) {
	var req sendBulkRequest
	if err := decode(w, r, &req); err != nil || req.Recipients == nil || req.Message == "" {
		writeError(w, http.StatusBadRequest, "Recipients array and message are required")
		return
	}
	tmpl, err := messageTemplate(req.Message, req.Template)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.svc.Authenticated() {
		writeError(w, http.StatusUnauthorized, messenger.ErrNotAuthenticated.Error())
		return
	}
	if s.svc.SessionActive() {
		writeError(w, http.StatusConflict, messenger.ErrSessionActive.Error())
		return
	}

	report, err := s.svc.RunBulk(s.sessionCtx, contacts.FromUsernames(req.Recipients), tmpl)
	switch {
	case errors.Is(err, messenger.ErrSessionActive), errors.Is(err, messenger.ErrPageBusy):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, messenger.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, err.Error())
	case err != nil:
		s.log.Error("Bulk send endpoint error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, bulkResponse{
			Success:        true,
			SessionID:      report.SessionID,
			Results:        report.Results,
			TotalProcessed: len(report.Results),
			Successful:     report.Successful(),
			Failed:         report.Failed(),
			Skipped:        report.Skipped(),
		})
	}
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	s.svc.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Session stopped"})
}

func messageTemplate(text string, asTemplate bool) (*contacts.Template, error) {
	if !asTemplate {
		return contacts.Literal(text), nil
	}
	return contacts.ParseTemplate(text)
}

func renderMessage(text string, asTemplate bool, r contacts.Recipient) (string, error) {
	tmpl, err := messageTemplate(text, asTemplate)
	if err != nil {
		return "", err
	}
	return tmpl.Render(r)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
