package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	blobcore "rentalcore/internal/blob/core"
	"rentalcore/internal/core"
	"rentalcore/internal/identity"
	"rentalcore/internal/roleview"
	"rentalcore/pkg/domain"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

// statusFor maps an error kind onto an HTTP status.
func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindInvalidTransition, domain.KindDuplicateRequest, domain.KindNotListed:
		return http.StatusConflict
	case domain.KindConstraintViolation:
		return http.StatusUnprocessableEntity
	case domain.KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]any{
		"error":  err.Error(),
		"kind":   string(kind),
		"notice": domain.Notice(err),
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// composer builds the per-request role view for the authenticated session.
func (s *Server) composer(w http.ResponseWriter, r *http.Request) (*roleview.Composer, bool) {
	session, _ := identity.FromContext(r.Context())
	c, err := roleview.New(session, s.svc, s.hub)
	if err != nil {
		s.writeFailure(w, r, err)
		return nil, false
	}
	return c, true
}

type registerBody struct {
	ID          string      `json:"id"`
	Email       string      `json:"email"`
	DisplayName string      `json:"displayName"`
	Role        domain.Role `json:"role"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body registerBody
	if !decodeBody(w, r, &body) {
		return
	}
	user, _, err := s.svc.RegisterUser(r.Context(), domain.User{
		Base:        domain.Base{ID: body.ID},
		Email:       body.Email,
		DisplayName: body.DisplayName,
		Role:        body.Role,
	})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	token, err := s.tokens.Issue(domain.Session{UserID: user.ID, Role: user.Role})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user, "token": token})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	session, _ := identity.FromContext(r.Context())
	views := roleview.Views(session.Role)
	writeJSON(w, http.StatusOK, map[string]any{"session": session, "views": views})
}

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/assets/")
	obj, rc, err := s.files.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, blobcore.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer func() { _ = rc.Close() }()
	if obj.ContentType != "" {
		w.Header().Set("Content-Type", obj.ContentType)
	}
	if obj.ETag != "" {
		w.Header().Set("ETag", `"`+obj.ETag+`"`)
	}
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	_, _ = io.Copy(w, rc)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	c, ok := s.composer(w, r)
	if !ok {
		return
	}
	defer c.Close()
	results, err := c.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"properties": results})
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	c, ok := s.composer(w, r)
	if !ok {
		return
	}
	defer c.Close()
	detail, err := c.Detail(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleCreateProperty(w http.ResponseWriter, r *http.Request) {
	var draft domain.PropertyDraft
	if !decodeBody(w, r, &draft) {
		return
	}
	c, ok := s.composer(w, r)
	if !ok {
		return
	}
	defer c.Close()
	p, err := c.CreateProperty(r.Context(), draft)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleUpdateProperty(w http.ResponseWriter, r *http.Request) {
	var patch domain.PropertyPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	c, ok := s.composer(w, r)
	if !ok {
		return
	}
	defer c.Close()
	p, err := c.UpdateProperty(r.Context(), mux.Vars(r)["id"], patch)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleSetListed(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IsListed *bool `json:"isListed"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.IsListed == nil {
		writeError(w, http.StatusBadRequest, "isListed is required")
		return
	}
	c, ok := s.composer(w, r)
	if !ok {
		return
	}
	defer c.Close()
	p, err := c.SetListed(r.Context(), mux.Vars(r)["id"], *body.IsListed)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleToggleListed(w http.ResponseWriter, r *http.Request) {
	c, ok := s.composer(w, r)
	if !ok {
		return
	}
	defer c.Close()
	p, err := c.ToggleListed(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProperty(w http.ResponseWriter, r *http.Request) {
	c, ok := s.composer(w, r)
	if !ok {
		return
	}
	defer c.Close()
	if err := c.DeleteProperty(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddImage(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxImageBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "image exceeds upload limit")
		return
	}
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	c, ok := s.composer(w, r)
	if !ok {
		return
	}
	defer c.Close()
	p, err := c.AddPropertyImage(r.Context(), mux.Vars(r)["id"], data, contentType)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleSubmitRequest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message string `json:"message"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	c, ok := s.composer(w, r)
	if !ok {
		return
	}
	defer c.Close()
	req, err := c.SubmitRequest(r.Context(), mux.Vars(r)["id"], body.Message)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (s *Server) handleToggleShortlist(w http.ResponseWriter, r *http.Request) {
	c, ok := s.composer(w, r)
	if !ok {
		return
	}
	defer c.Close()
	state, err := c.ToggleShortlist(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": state})
}

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Decision core.Decision `json:"decision"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	c, ok := s.composer(w, r)
	if !ok {
		return
	}
	defer c.Close()
	req, err := c.Decide(r.Context(), mux.Vars(r)["id"], body.Decision)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	c, ok := s.composer(w, r)
	if !ok {
		return
	}
	defer c.Close()
	if err := c.Withdraw(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
