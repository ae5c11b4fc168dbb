package httpserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	xlsxadapter "tallyhub/contexts/election-results/tally-engine/adapters/xlsx"
	"tallyhub/contexts/election-results/tally-engine/domain/entities"
	tallyerrors "tallyhub/contexts/election-results/tally-engine/domain/errors"
	tallyhttp "tallyhub/contexts/election-results/tally-engine/transport/http"
)

const maxTallyBodyBytes = 1 << 20

func (s *Server) handleSubmitTally(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}
	var req tallyhttp.SubmitTallyRequest
	if !decodeTallyBody(w, r, &req) {
		return
	}
	resp, err := s.tally.Handler.SubmitTallyHandler(r.Context(), actor, req)
	if err != nil {
		s.writeTallyDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	resp, err := s.tally.Handler.GetSubmissionHandler(r.Context(), r.PathValue("submission_id"))
	if err != nil {
		s.writeTallyDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReviewSubmission(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}
	var req tallyhttp.ReviewRequest
	if !decodeTallyBody(w, r, &req) {
		return
	}
	resp, err := s.tally.Handler.ReviewSubmissionHandler(r.Context(), actor, r.PathValue("submission_id"), req)
	if err != nil {
		s.writeTallyDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	resp, err := s.tally.Handler.ListReviewsHandler(r.Context(), r.PathValue("submission_id"))
	if err != nil {
		s.writeTallyDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReviewQueue(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	resp, err := s.tally.Handler.ReviewQueueHandler(r.Context(), query.Get("filter"))
	if err != nil {
		s.writeTallyDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetAggregate(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	resp, err := s.tally.Handler.AggregateHandler(
		r.Context(),
		r.PathValue("location_id"),
		query.Get("level"),
		query.Get("position"),
	)
	if err != nil {
		s.writeTallyDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExportAggregate(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	locationID := r.PathValue("location_id")

	var body bytes.Buffer
	err := s.tally.Handler.ExportAggregateHandler(
		r.Context(),
		&body,
		locationID,
		query.Get("level"),
		query.Get("position"),
	)
	if err != nil {
		s.writeTallyDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", xlsxadapter.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+exportFilename(locationID, query.Get("position"))+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = body.WriteTo(w)
}

// requirePrincipal reads the identity headers set by the gateway.
func (s *Server) requirePrincipal(w http.ResponseWriter, r *http.Request) (entities.Principal, bool) {
	userID := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if userID == "" {
		writeTallyError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required", nil)
		return entities.Principal{}, false
	}
	role := entities.Role(strings.ToLower(strings.TrimSpace(r.Header.Get("X-User-Role"))))
	if !role.IsValid() {
		writeTallyError(w, http.StatusUnauthorized, "invalid_role", "X-User-Role must be admin, candidate or agent", nil)
		return entities.Principal{}, false
	}
	actor := entities.Principal{
		UserID:          userID,
		Role:            role,
		ScopeLocationID: strings.TrimSpace(r.Header.Get("X-Scope-Location")),
	}
	if raw := r.Header.Get("X-Candidate-Position"); strings.TrimSpace(raw) != "" {
		position, ok := entities.ParsePosition(raw)
		if !ok {
			writeTallyError(w, http.StatusBadRequest, "invalid_position", "X-Candidate-Position is not a known position", nil)
			return entities.Principal{}, false
		}
		actor.Position = position
	}
	return actor, true
}

func decodeTallyBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTallyBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeTallyError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON", nil)
		return false
	}
	return true
}

func (s *Server) writeTallyDomainError(w http.ResponseWriter, err error) {
	var fields tallyhttp.FieldErrors
	switch {
	case errors.As(err, &fields):
		writeTallyError(w, http.StatusBadRequest, "invalid_request", "request failed validation", fields)
	case errors.Is(err, tallyerrors.ErrInvalidInput):
		writeTallyError(w, http.StatusBadRequest, "invalid_input", err.Error(), nil)
	case errors.Is(err, tallyerrors.ErrUnauthorizedActor),
		errors.Is(err, tallyerrors.ErrOutOfScope):
		writeTallyError(w, http.StatusForbidden, "forbidden", err.Error(), nil)
	case tallyerrors.IsNotFound(err):
		writeTallyError(w, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, tallyerrors.ErrDuplicateSubmission):
		writeTallyError(w, http.StatusConflict, "duplicate_submission", err.Error(), nil)
	case errors.Is(err, tallyerrors.ErrInvalidAction):
		writeTallyError(w, http.StatusConflict, "invalid_transition", err.Error(), nil)
	case errors.Is(err, tallyerrors.ErrEvidenceMissing):
		writeTallyError(w, http.StatusUnprocessableEntity, "evidence_missing", err.Error(), nil)
	default:
		s.logger.Error("tally request failed",
			"event", "http_tally_internal_error",
			"module", "internal/platform/httpserver",
			"layer", "platform",
			"error", err.Error(),
		)
		writeTallyError(w, http.StatusInternalServerError, "internal_error", "internal server error", nil)
	}
}

func writeTallyError(w http.ResponseWriter, status int, code string, message string, fields map[string]string) {
	writeJSON(w, status, tallyhttp.ErrorResponse{
		Code:    code,
		Message: message,
		Fields:  fields,
	})
}

func exportFilename(locationID string, position string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, locationID+"-"+position)
	return "aggregate-" + name + ".xlsx"
}
