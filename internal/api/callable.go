package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/yalla-nemshi/nemshi/internal/app/invite"
	"github.com/yalla-nemshi/nemshi/internal/domain"
)

// callableRequest is the callable protocol request body.
type callableRequest struct {
	Data domain.Fields `json:"data"`
}

// callableError is the callable protocol error body.
type callableError struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// callableStatus maps an error kind to the callable status name and the
// HTTP code that carries it.
func callableStatus(kind domain.ErrorKind) (string, int) {
	switch kind {
	case domain.KindUnauthenticated:
		return "UNAUTHENTICATED", http.StatusUnauthorized
	case domain.KindInvalidInput:
		return "INVALID_ARGUMENT", http.StatusBadRequest
	case domain.KindNotFound:
		return "NOT_FOUND", http.StatusNotFound
	case domain.KindFailedPrecondition:
		return "FAILED_PRECONDITION", http.StatusBadRequest
	case domain.KindPermissionDenied:
		return "PERMISSION_DENIED", http.StatusForbidden
	}
	return "INTERNAL", http.StatusInternalServerError
}

func (s *Server) handleRedeemWalkInvite(w http.ResponseWriter, r *http.Request) {
	var body callableRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&body); err != nil {
		writeCallableError(w, domain.E("invite.redeem", domain.KindInvalidInput, errors.New("malformed request")))
		return
	}

	uid := s.callerUID(r)
	if err := s.svc.Invites.Redeem(r.Context(), uid, invite.RequestFromData(body.Data)); err != nil {
		writeCallableError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"result": map[string]bool{"ok": true},
	})
}

// callerUID returns the uid of a valid bearer ID token, or "".
func (s *Server) callerUID(r *http.Request) string {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	token = strings.TrimSpace(token)
	if !ok || token == "" || s.svc.Verifier == nil {
		return ""
	}
	uid, err := s.svc.Verifier.VerifyToken(r.Context(), token)
	if err != nil {
		log.Printf("[api] rejected ID token: %v", err)
		return ""
	}
	return uid
}

func writeCallableError(w http.ResponseWriter, err error) {
	status, code := callableStatus(domain.KindOf(err))
	msg := err.Error()
	var op *domain.OpError
	if errors.As(err, &op) && op.Err != nil {
		msg = op.Err.Error()
	}
	if code == http.StatusInternalServerError {
		log.Printf("[api] callable failed: %v", err)
		msg = "internal error"
	}
	writeJSON(w, code, map[string]any{
		"error": callableError{Status: status, Message: msg},
	})
}
