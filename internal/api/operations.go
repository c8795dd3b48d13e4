package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/benchrig/benchrig-core/internal/adapter"
	"github.com/benchrig/benchrig-core/internal/driver"
	"github.com/benchrig/benchrig-core/internal/protocol"
	"github.com/benchrig/benchrig-core/internal/transport"
)

// OperationRequest is the body of a read, write, or invoke request.
// Value is only meaningful for writes.
type OperationRequest struct {
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

// OperationResponse reports a completed instrument operation.
type OperationResponse struct {
	Instrument string `json:"instrument"`
	Path       string `json:"path"`
	Verb       string `json:"verb"`
	Value      any    `json:"value,omitempty"`
	ElapsedMs  int64  `json:"elapsed_ms"`
}

// handleRead queries a command and returns the decoded device value.
func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	s.runOperation(w, r, adapter.KindGet)
}

// handleWrite sends a value to a command and waits for the exchange to
// complete. The response echoes the submitted value.
func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	s.runOperation(w, r, adapter.KindSet)
}

// handleInvoke fires an action command. Actions carry no value.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	s.runOperation(w, r, adapter.KindInvoke)
}

// runOperation submits one operation to the instrument's adapter and
// blocks until the device answers or the request-scoped timeout fires.
// The HTTP response therefore carries the device's actual answer, not
// an acknowledgement that the request was queued.
func (s *Server) runOperation(w http.ResponseWriter, r *http.Request, kind adapter.Kind) {
	name := chi.URLParam(r, "name")

	var req OperationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Path == "" {
		writeBadRequest(w, "path field is required")
		return
	}

	entry, ok := s.registry.Get(name)
	if !ok {
		writeNotFound(w, "instrument not running")
		return
	}

	started := time.Now()

	var op *adapter.Pending
	var err error
	switch kind {
	case adapter.KindGet:
		op, err = entry.Adapter.Get(req.Path)
	case adapter.KindSet:
		op, err = entry.Adapter.Set(req.Path, req.Value)
	case adapter.KindInvoke:
		op, err = entry.Adapter.Invoke(req.Path)
	}
	if err != nil {
		writeOperationError(w, err)
		return
	}

	// The deadline is scoped to this request: a disconnecting client
	// cancels the wait, and the worker discards the operation if it has
	// not started yet.
	ctx, cancel := context.WithTimeout(r.Context(), s.cmdTimeout)
	defer cancel()

	result, err := op.Await(ctx)
	if err != nil {
		op.Cancel()
		writeOperationError(w, err)
		return
	}

	value := result
	if kind == adapter.KindSet {
		value = req.Value
	}

	writeJSON(w, http.StatusOK, OperationResponse{
		Instrument: name,
		Path:       req.Path,
		Verb:       kind.String(),
		Value:      value,
		ElapsedMs:  time.Since(started).Milliseconds(),
	})
}

// writeOperationError maps operation failures onto HTTP statuses. The
// message is always the underlying error text so bench scripts can log
// something actionable.
func writeOperationError(w http.ResponseWriter, err error) {
	var devErr *protocol.DeviceError

	switch {
	case errors.Is(err, driver.ErrPathNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, driver.ErrAccessViolation):
		writeError(w, http.StatusForbidden, ErrCodeForbidden, err.Error())
	case errors.Is(err, driver.ErrOutOfRange), errors.Is(err, driver.ErrEncode):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, transport.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, err.Error())
	case errors.As(err, &devErr):
		writeError(w, http.StatusBadGateway, ErrCodeDevice, err.Error())
	case errors.Is(err, driver.ErrDecode):
		writeError(w, http.StatusBadGateway, ErrCodeDecode, err.Error())
	case errors.Is(err, adapter.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, ErrCodeBusy, err.Error())
	case errors.Is(err, adapter.ErrClosed), errors.Is(err, adapter.ErrCancelled):
		writeConflict(w, "instrument shutting down")
	default:
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
