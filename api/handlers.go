/*
handlers.go - HTTP API handlers for the lieu-time engine

PURPOSE:
  Exposes toil.Service over REST. Handles HTTP request/response, JSON
  serialization and validation, and delegates to the service.

ENDPOINTS:
  Engine:
    POST   /api/toil/recompute                     Evaluate entries, nothing stored
    GET    /api/toil/durations?input=8.5           Codec normalization

  Employee (X-User-ID must equal {id}):
    GET    /api/employees/{id}/toil/balance        Balance snapshot
    GET    /api/employees/{id}/toil/weeks/{date}   Week view, any date in the week
    PUT    /api/employees/{id}/toil/entries/{date} Save one day
    POST   /api/employees/{id}/toil/weeks/{date}/submit
    GET    /api/employees/{id}/toil/submissions    ?status=pending,approved&from=&to=

  Submissions:
    GET    /api/toil/submissions/pending           Approver queue
    GET    /api/toil/submissions/{sid}             Owner or decider
    POST   /api/toil/submissions/{sid}/cancel      Owner only
    POST   /api/toil/submissions/{sid}/approve     Anyone but the owner
    POST   /api/toil/submissions/{sid}/reject      Anyone but the owner

  Balances:
    PUT    /api/toil/balances/{id}                 Set opening balance (not one's own)

REQUEST FLOW:
  1. Parse path params and body
  2. Validate input (validator tags, dates)
  3. Call toil.Service
  4. Serialize response
  5. Map errors to status codes (writeServiceError)

ERROR HANDLING:
  - 400: Malformed body, invalid date
  - 401: Missing X-User-ID
  - 403: Acting on another user's data, or deciding on one's own
  - 404: Submission not found
  - 409: Week locked, illegal transition, active submission exists
  - 422: Balance limits violated (details = violation list)
  - 429: Rate limited
  - 503: Transient storage failure, retry
  - 500: Anything else

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/toil-engine/toil"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *toil.Service
	DB      Pinger

	logger   *zap.Logger
	validate *validator.Validate
}

// NewHandler creates a new handler over the given service. db may be nil.
func NewHandler(svc *toil.Service, db Pinger, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Service:  svc,
		DB:       db,
		logger:   logger.Named("api"),
		validate: newValidator(),
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON names, not Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// =============================================================================
// ENGINE
// =============================================================================

// Recompute evaluates the posted entries against the configured limits.
func (h *Handler) Recompute(w http.ResponseWriter, r *http.Request) {
	var req RecomputeRequest
	if !h.decodeAndValidate(w, r, &req, false) {
		return
	}

	entries, err := toEntries(req.Entries)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid entry date (use YYYY-MM-DD)", err)
		return
	}

	eval := h.Service.Evaluate(toil.ParseDuration(req.CarryIn), entries)
	if eval.Errors == nil {
		eval.Errors = []toil.ValidationError{}
	}
	if eval.Days == nil {
		eval.Days = []toil.DailyBalance{}
	}
	writeJSON(w, http.StatusOK, eval)
}

// NormalizeDuration shows the canonical form of ?input=.
func (h *Handler) NormalizeDuration(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toDurationDTO(r.URL.Query().Get("input")))
}

// Health pings the database when one is configured.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.DB == nil {
		writeJSON(w, http.StatusOK, HealthDTO{Status: "ok"})
		return
	}
	if err := h.DB.Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, HealthDTO{Status: "degraded", Database: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, HealthDTO{Status: "ok", Database: "ok"})
}

// =============================================================================
// BALANCE
// =============================================================================

// GetBalance returns the employee's balance snapshot.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.Service.GetBalance(r.Context(), employeeID(r))
	if err != nil {
		h.writeServiceError(w, r, "Failed to get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(balance))
}

// SetBalance overwrites {id}'s balance snapshot on behalf of the caller.
func (h *Handler) SetBalance(w http.ResponseWriter, r *http.Request) {
	var req SetBalanceRequest
	if !h.decodeAndValidate(w, r, &req, false) {
		return
	}

	actor := string(UserIDFrom(r.Context()))
	balance, err := h.Service.SetBalance(r.Context(), actor, employeeID(r), toil.ParseDuration(req.Total))
	if err != nil {
		h.writeServiceError(w, r, "Failed to set balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(balance))
}

// =============================================================================
// WEEK
// =============================================================================

// GetWeek returns the week containing {date}.
func (h *Handler) GetWeek(w http.ResponseWriter, r *http.Request) {
	date, ok := pathDate(w, r)
	if !ok {
		return
	}

	view, err := h.Service.LoadWeek(r.Context(), employeeID(r), date)
	if err != nil {
		h.writeServiceError(w, r, "Failed to load week", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// SaveEntry stores requested/used hours for {date}.
func (h *Handler) SaveEntry(w http.ResponseWriter, r *http.Request) {
	date, ok := pathDate(w, r)
	if !ok {
		return
	}
	var req SaveEntryRequest
	if !h.decodeAndValidate(w, r, &req, false) {
		return
	}

	view, err := h.Service.SaveEntry(r.Context(), employeeID(r), date, req.Requested, req.Used)
	if err != nil {
		h.writeServiceError(w, r, "Failed to save entry", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// SubmitWeek submits the week containing {date} for approval.
func (h *Handler) SubmitWeek(w http.ResponseWriter, r *http.Request) {
	date, ok := pathDate(w, r)
	if !ok {
		return
	}
	var req SubmitWeekRequest
	if !h.decodeAndValidate(w, r, &req, true) {
		return
	}

	sub, err := h.Service.Submit(r.Context(), employeeID(r), date, req.Comments)
	if err != nil {
		h.writeServiceError(w, r, "Failed to submit week", err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// =============================================================================
// SUBMISSIONS
// =============================================================================

// ListUserSubmissions lists the employee's submissions.
func (h *Handler) ListUserSubmissions(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseFilter(w, r)
	if !ok {
		return
	}
	filter.UserID = employeeID(r)

	subs, err := h.Service.ListSubmissions(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, "Failed to list submissions", err)
		return
	}
	writeJSON(w, http.StatusOK, toSubmissionList(subs))
}

// ListPendingSubmissions is the approver queue.
func (h *Handler) ListPendingSubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.Service.ListSubmissions(r.Context(), toil.SubmissionFilter{
		Statuses: []toil.SubmissionStatus{toil.SubmissionPending},
	})
	if err != nil {
		h.writeServiceError(w, r, "Failed to list pending submissions", err)
		return
	}
	writeJSON(w, http.StatusOK, toSubmissionList(subs))
}

// GetSubmission returns a single submission to its owner or decider.
func (h *Handler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	sub, err := h.Service.GetSubmission(r.Context(), UserIDFrom(r.Context()), submissionID(r))
	if err != nil {
		h.writeServiceError(w, r, "Failed to get submission", err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// CancelSubmission withdraws the caller's own pending submission.
func (h *Handler) CancelSubmission(w http.ResponseWriter, r *http.Request) {
	sub, err := h.Service.Cancel(r.Context(), UserIDFrom(r.Context()), submissionID(r))
	if err != nil {
		h.writeServiceError(w, r, "Failed to cancel submission", err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// ApproveSubmission approves a pending submission as the caller.
func (h *Handler) ApproveSubmission(w http.ResponseWriter, r *http.Request) {
	sub, err := h.Service.Approve(r.Context(), string(UserIDFrom(r.Context())), submissionID(r))
	if err != nil {
		h.writeServiceError(w, r, "Failed to approve submission", err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// RejectSubmission rejects a pending submission with a reason.
func (h *Handler) RejectSubmission(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if !h.decodeAndValidate(w, r, &req, false) {
		return
	}

	sub, err := h.Service.Reject(r.Context(), string(UserIDFrom(r.Context())), submissionID(r), req.Reason)
	if err != nil {
		h.writeServiceError(w, r, "Failed to reject submission", err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// =============================================================================
// HELPERS
// =============================================================================

func employeeID(r *http.Request) toil.UserID {
	return toil.UserID(chi.URLParam(r, "id"))
}

func submissionID(r *http.Request) toil.SubmissionID {
	return toil.SubmissionID(chi.URLParam(r, "sid"))
}

func pathDate(w http.ResponseWriter, r *http.Request) (toil.Date, bool) {
	date, err := toil.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return toil.Date{}, false
	}
	return date, true
}

// parseFilter reads ?status=a,b&from=YYYY-MM-DD&to=YYYY-MM-DD.
func parseFilter(w http.ResponseWriter, r *http.Request) (toil.SubmissionFilter, bool) {
	var filter toil.SubmissionFilter
	q := r.URL.Query()

	if raw := q.Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			filter.Statuses = append(filter.Statuses, toil.SubmissionStatus(strings.TrimSpace(s)))
		}
	}
	for _, p := range []struct {
		key  string
		dest **toil.Date
	}{{"from", &filter.From}, {"to", &filter.To}} {
		raw := q.Get(p.key)
		if raw == "" {
			continue
		}
		d, err := toil.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid "+p.key+" date (use YYYY-MM-DD)", err)
			return filter, false
		}
		*p.dest = &d
	}
	return filter, true
}

// decodeAndValidate decodes the JSON body into dst and runs validator tags.
// An empty body is accepted when optional is set.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if !(optional && errors.Is(err, io.EOF)) {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return false
		}
	}

	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Namespace()] = fe.Tag()
			}
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "Invalid request body",
				Code:    "invalid_input",
				Details: fields,
			})
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// writeServiceError maps toil errors onto HTTP status codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, message string, err error) {
	var vf *toil.ValidationFailedError
	switch {
	case errors.As(err, &vf):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   message,
			Code:    "validation_failed",
			Details: vf.Errors,
		})
	case errors.Is(err, toil.ErrSelfDecision):
		writeErrorCode(w, http.StatusForbidden, message, "self_decision", err)
	case toil.IsForbidden(err):
		writeErrorCode(w, http.StatusForbidden, message, "not_owner", err)
	case toil.IsNotFound(err):
		writeErrorCode(w, http.StatusNotFound, message, "not_found", err)
	case errors.Is(err, toil.ErrActiveSubmissionExists):
		writeErrorCode(w, http.StatusConflict, message, "active_submission_exists", err)
	case errors.Is(err, toil.ErrWeekLocked):
		writeErrorCode(w, http.StatusConflict, message, "week_locked", err)
	case toil.IsConflict(err):
		writeErrorCode(w, http.StatusConflict, message, "invalid_transition", err)
	case toil.IsClientError(err):
		writeErrorCode(w, http.StatusBadRequest, message, "invalid_input", err)
	case toil.IsRetryable(err):
		h.logger.Warn(message, zap.String("path", r.URL.Path), zap.Error(err))
		writeErrorCode(w, http.StatusServiceUnavailable, message, "retry", err)
	default:
		h.logger.Error(message, zap.String("path", r.URL.Path), zap.Error(err))
		writeErrorCode(w, http.StatusInternalServerError, message, "", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	writeErrorCode(w, status, message, "", err)
}

func writeErrorCode(w http.ResponseWriter, status int, message, code string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
