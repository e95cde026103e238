package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/parishkeep/parishkeep/internal/importer"
)

// fieldDTO is the JSON shape of one catalog field for the mapping UI.
type fieldDTO struct {
	Key        string   `json:"key"`
	Label      string   `json:"label"`
	Required   bool     `json:"required"`
	Type       string   `json:"type"`
	Synonyms   []string `json:"synonyms,omitempty"`
	EnumValues []string `json:"enum_values,omitempty"`
	Example    string   `json:"example,omitempty"`
}

// handleHealth reports process liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleListFields returns the canonical field catalog.
func (s *Server) handleListFields(w http.ResponseWriter, r *http.Request) {
	catalog := s.service.Importer().Catalog()
	fields := make([]fieldDTO, len(catalog))
	for i, f := range catalog {
		fields[i] = fieldDTO{
			Key:        f.Key,
			Label:      f.Label,
			Required:   f.Required,
			Type:       f.Type.String(),
			Synonyms:   f.Synonyms,
			EnumValues: f.EnumValues,
			Example:    f.Example,
		}
	}
	writeJSON(w, map[string]interface{}{"fields": fields})
}

// handleDownloadTemplate serves the fill-in CSV template.
func (s *Server) handleDownloadTemplate(w http.ResponseWriter, r *http.Request) {
	data := importer.GenerateTemplate(s.service.Importer().Catalog())

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="member_import_template.csv"`)
	w.Write(data)
}

// handleStartImport accepts a multipart CSV upload and starts an
// asynchronous import, returning its ID with 202 Accepted.
func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	data, fileName, opts, ok := s.readImportRequest(w, r)
	if !ok {
		return
	}

	importID, err := s.service.Start(r.Context(), fileName, data, opts)
	if err != nil {
		if errors.Is(err, importer.ErrTooManyImports) {
			w.Header().Set("Retry-After", "30")
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"import_id": importID})
}

// handlePreview runs the pipeline without committing and returns the
// predicted result.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	data, _, opts, ok := s.readImportRequest(w, r)
	if !ok {
		return
	}

	result, err := s.service.Importer().Analyze(r.Context(), data, opts)
	if err != nil {
		s.respondImportError(w, err)
		return
	}

	writeJSON(w, s.renderResult(result))
}

// handleImportProgress returns the current phase without blocking.
func (s *Server) handleImportProgress(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")
	progress, err := s.service.Progress(importID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, progress)
}

// handleImportEvents streams phase transitions via Server-Sent Events.
func (s *Server) handleImportEvents(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")

	events, err := s.service.Subscribe(importID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	for {
		select {
		case update, ok := <-events:
			if !ok {
				// Channel closed - import finished
				fmt.Fprintf(w, "event: done\ndata: {}\n\n")
				flusher.Flush()
				return
			}
			data, _ := json.Marshal(update)
			fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// handleImportResult returns the final result of an import, blocking until
// it completes. Whole-batch aborts come back as 422 with a typed payload.
func (s *Server) handleImportResult(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")

	result, err := s.service.Result(importID)
	if err != nil {
		if errors.Is(err, importer.ErrImportNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.respondImportError(w, err)
		return
	}

	writeJSON(w, s.renderResult(result))
}

// handleCancelImport cancels an in-progress import.
func (s *Server) handleCancelImport(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")
	if err := s.service.Cancel(importID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "cancelled"})
}

// handleLimiterStatus reports current import slot usage.
func (s *Server) handleLimiterStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.service.LimiterStatus())
}

// readImportRequest parses the multipart form shared by the import and
// preview endpoints. On failure it writes the error response and returns
// ok=false.
func (s *Server) readImportRequest(w http.ResponseWriter, r *http.Request) (data []byte, fileName string, opts importer.Options, ok bool) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or invalid form")
		return nil, "", opts, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return nil, "", opts, false
	}
	defer file.Close()

	data, err = io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read file")
		return nil, "", opts, false
	}

	// Optional header -> canonical key overrides as JSON
	if mappingJSON := r.FormValue("mapping"); mappingJSON != "" {
		if err := json.Unmarshal([]byte(mappingJSON), &opts.Mapping); err != nil {
			writeError(w, http.StatusBadRequest, "invalid mapping format")
			return nil, "", opts, false
		}
	}

	policy, err := importer.ParsePolicy(r.FormValue("duplicate_policy"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, "", opts, false
	}
	opts.Policy = policy
	opts.Concurrency = s.cfg.Import.RowConcurrency

	return data, header.Filename, opts, true
}

// importErrorResponse is the payload for whole-batch aborts.
type importErrorResponse struct {
	ErrorType       string   `json:"error_type"`
	Message         string   `json:"message"`
	MissingRequired []string `json:"missing_required,omitempty"`
	UnknownKeys     []string `json:"unknown_keys,omitempty"`
}

// respondImportError maps pipeline errors to HTTP responses. Structural and
// mapping errors are client problems (422); everything else is a server
// failure.
func (s *Server) respondImportError(w http.ResponseWriter, err error) {
	var structural *importer.StructuralError
	var mapping *importer.MappingError

	switch {
	case errors.As(err, &structural):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(importErrorResponse{
			ErrorType: "structural_error",
			Message:   structural.Error(),
		})
	case errors.As(err, &mapping):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(importErrorResponse{
			ErrorType:       "mapping_error",
			Message:         mapping.Error(),
			MissingRequired: mapping.MissingRequired,
			UnknownKeys:     mapping.UnknownKeys,
		})
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// renderResult returns a response copy of a result with its error list
// capped at the configured maximum, appending a summary entry when anything
// was dropped. The stored result is shared between requests and keeps every
// diagnostic, so capping must never touch it.
func (s *Server) renderResult(result *importer.ImportResult) importer.ImportResult {
	out := *result
	max := s.cfg.Import.MaxReportedErrors
	if max <= 0 || len(result.Errors) <= max {
		out.Errors = append([]importer.RowError(nil), result.Errors...)
		return out
	}
	dropped := len(result.Errors) - max
	errs := append([]importer.RowError(nil), result.Errors[:max]...)
	out.Errors = append(errs, importer.RowError{
		Kind:    importer.KindValidation,
		Message: strconv.Itoa(dropped) + " more errors not shown",
	})
	return out
}
