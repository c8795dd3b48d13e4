package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/benchrig/benchrig-core/internal/driver"
	"github.com/benchrig/benchrig-core/internal/rig"
)

// InstrumentView is an instrument record plus its runtime state.
type InstrumentView struct {
	rig.InstrumentRecord
	Running bool `json:"running"`
}

// view pairs a record with whether the registry currently runs it.
func (s *Server) view(rec rig.InstrumentRecord) InstrumentView {
	_, running := s.registry.Get(rec.Name)
	return InstrumentView{InstrumentRecord: rec, Running: running}
}

// handleListInstruments returns all configured instruments, running or not.
func (s *Server) handleListInstruments(w http.ResponseWriter, r *http.Request) {
	records, err := s.repo.List(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list instruments")
		return
	}

	views := make([]InstrumentView, 0, len(records))
	for _, rec := range records {
		views = append(views, s.view(rec))
	}

	writeJSON(w, http.StatusOK, map[string]any{"instruments": views, "count": len(views)})
}

// handleCreateInstrument persists a new instrument record. When the
// record is enabled the instrument is started immediately; a start
// failure does not roll back the record, it is reported alongside it.
func (s *Server) handleCreateInstrument(w http.ResponseWriter, r *http.Request) {
	var rec rig.InstrumentRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.repo.Create(r.Context(), &rec); err != nil {
		switch {
		case errors.Is(err, rig.ErrInvalidRecord), errors.Is(err, rig.ErrInvalidTransport):
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		case errors.Is(err, rig.ErrRecordExists):
			writeConflict(w, "instrument already exists")
		default:
			writeInternalError(w, "failed to create instrument")
		}
		return
	}

	response := map[string]any{"instrument": s.view(rec)}
	if rec.Enabled {
		if err := s.registry.Start(r.Context(), rec.Name); err != nil {
			s.logger.Error("failed to start new instrument",
				"name", rec.Name,
				"error", err)
			response["start_error"] = err.Error()
		} else {
			response["instrument"] = s.view(rec)
		}
	}

	writeJSON(w, http.StatusCreated, response)
}

// handleGetInstrument returns a single instrument by name.
func (s *Server) handleGetInstrument(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	rec, err := s.repo.GetByName(r.Context(), name)
	if err != nil {
		if errors.Is(err, rig.ErrRecordNotFound) {
			writeNotFound(w, "instrument not found")
			return
		}
		writeInternalError(w, "failed to get instrument")
		return
	}

	writeJSON(w, http.StatusOK, s.view(*rec))
}

// handleUpdateInstrument partially updates an instrument record.
//
// Name and ID are immutable. A running instrument keeps its old
// configuration until it is stopped and started again.
func (s *Server) handleUpdateInstrument(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	existing, err := s.repo.GetByName(r.Context(), name)
	if err != nil {
		if errors.Is(err, rig.ErrRecordNotFound) {
			writeNotFound(w, "instrument not found")
			return
		}
		writeInternalError(w, "failed to get instrument")
		return
	}

	// Decode partial update onto existing record
	updated := *existing
	if err := json.NewDecoder(r.Body).Decode(&updated); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	updated.ID = existing.ID // Ensure identity cannot be changed
	updated.Name = existing.Name

	if err := s.repo.Update(r.Context(), &updated); err != nil {
		switch {
		case errors.Is(err, rig.ErrInvalidRecord), errors.Is(err, rig.ErrInvalidTransport):
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		default:
			writeInternalError(w, "failed to update instrument")
		}
		return
	}

	writeJSON(w, http.StatusOK, s.view(updated))
}

// handleDeleteInstrument stops a running instrument and removes its record.
func (s *Server) handleDeleteInstrument(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	rec, err := s.repo.GetByName(r.Context(), name)
	if err != nil {
		if errors.Is(err, rig.ErrRecordNotFound) {
			writeNotFound(w, "instrument not found")
			return
		}
		writeInternalError(w, "failed to get instrument")
		return
	}

	if err := s.registry.Stop(name); err != nil && !errors.Is(err, rig.ErrNotRunning) {
		s.logger.Error("failed to stop instrument before delete",
			"name", name,
			"error", err)
	}

	if err := s.repo.Delete(r.Context(), rec.ID); err != nil {
		writeInternalError(w, "failed to delete instrument")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleStartInstrument opens the transport and starts the worker for
// an instrument.
func (s *Server) handleStartInstrument(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := s.registry.Start(r.Context(), name); err != nil {
		switch {
		case errors.Is(err, rig.ErrRecordNotFound):
			writeNotFound(w, "instrument not found")
		case errors.Is(err, rig.ErrDisabled), errors.Is(err, rig.ErrAlreadyRunning):
			writeConflict(w, err.Error())
		case errors.Is(err, rig.ErrDriverUnknown):
			writeBadRequest(w, err.Error())
		default:
			// Transport open or driver build failure
			writeError(w, http.StatusBadGateway, ErrCodeUpstream, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "started", "name": name})
}

// handleStopInstrument drains and stops a running instrument.
func (s *Server) handleStopInstrument(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := s.registry.Stop(name); err != nil {
		if errors.Is(err, rig.ErrNotRunning) {
			writeConflict(w, err.Error())
			return
		}
		writeInternalError(w, "failed to stop instrument")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "stopped", "name": name})
}

// CommandDescriptor describes one command in an instrument's tree.
type CommandDescriptor struct {
	Path          string      `json:"path"`
	Access        string      `json:"access"`
	Bounds        *BoundsView `json:"bounds,omitempty"`
	ReadMnemonic  string      `json:"read_mnemonic,omitempty"`
	WriteMnemonic string      `json:"write_mnemonic,omitempty"`
}

// BoundsView is the JSON shape of a numeric range constraint.
type BoundsView struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// handleListCommands walks a running instrument's command tree and
// returns every command in declaration order.
func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	entry, ok := s.registry.Get(name)
	if !ok {
		writeNotFound(w, "instrument not running")
		return
	}

	commands := describeTree(entry.Instrument.Root())
	writeJSON(w, http.StatusOK, map[string]any{
		"instrument": name,
		"commands":   commands,
		"count":      len(commands),
	})
}

// describeTree collects command descriptors depth-first. Commands of a
// subsystem come before its children, both in declaration order.
func describeTree(sub *driver.Subsystem) []CommandDescriptor {
	var out []CommandDescriptor
	for _, cmdName := range sub.Commands() {
		cmd := sub.Command(cmdName)
		desc := CommandDescriptor{
			Path:          cmd.Path(),
			Access:        cmd.Access().String(),
			ReadMnemonic:  cmd.ReadMnemonic(),
			WriteMnemonic: cmd.WriteMnemonic(),
		}
		if b := cmd.Bounds(); b != nil {
			desc.Bounds = &BoundsView{Min: b.Min, Max: b.Max}
		}
		out = append(out, desc)
	}
	for _, childName := range sub.Children() {
		out = append(out, describeTree(sub.Child(childName))...)
	}
	return out
}
