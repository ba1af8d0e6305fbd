package web

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/JonMunkholm/transitwatch/internal/core"
	"github.com/JonMunkholm/transitwatch/internal/importer"
)

const (
	// multipartMemory is the part of a multipart upload kept in memory;
	// the rest spills to temporary files.
	multipartMemory = 32 << 20

	// multipartOverhead allows for boundaries and form fields on top of
	// the file itself.
	multipartOverhead = 1 << 20

	// maxPreviewRows caps the rows query parameter of a preview.
	maxPreviewRows = 100
)

// readUpload extracts the file from a multipart form field named "file",
// or takes the raw body with the name from X-Filename (or ?filename=).
// The returned cleanup must be called once the body has been consumed.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (importer.Request, func(), error) {
	noop := func() {}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxFileSize+multipartOverhead)

	contentType := r.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return importer.Request{}, noop, fmt.Errorf("%w: %w", core.ErrInputTooLarge, err)
			}
			return importer.Request{}, noop, fmt.Errorf("%w: invalid form: %v", core.ErrFileRejected, err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			r.MultipartForm.RemoveAll()
			return importer.Request{}, noop, core.ErrNoFile
		}
		cleanup := func() {
			file.Close()
			r.MultipartForm.RemoveAll()
		}
		return importer.Request{
			FileName:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Body:        file,
		}, cleanup, nil
	}

	name := r.Header.Get("X-Filename")
	if name == "" {
		name = r.URL.Query().Get("filename")
	}

	size := r.ContentLength
	var body io.Reader = r.Body
	if size < 0 {
		// Chunked upload: buffer it to learn the size. MaxBytesReader
		// bounds the read.
		data, err := io.ReadAll(r.Body)
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return importer.Request{}, noop, fmt.Errorf("%w: %w", core.ErrInputTooLarge, err)
			}
			return importer.Request{}, noop, fmt.Errorf("read body: %w", err)
		}
		size = int64(len(data))
		body = bytes.NewReader(data)
	}
	if size == 0 {
		return importer.Request{}, noop, core.ErrNoFile
	}

	return importer.Request{
		FileName:    name,
		ContentType: contentType,
		Size:        size,
		Body:        body,
	}, noop, nil
}

// importMode reads the mode from the query string or form, falling back to
// the configured default. Validation happens in the importer.
func (s *Server) importMode(r *http.Request) core.ImportMode {
	if m := r.URL.Query().Get("mode"); m != "" {
		return core.ImportMode(m)
	}
	if r.MultipartForm != nil {
		if v := r.MultipartForm.Value["mode"]; len(v) > 0 && v[0] != "" {
			return core.ImportMode(v[0])
		}
	}
	return core.ImportMode(s.cfg.Import.DefaultMode)
}

// handleImport imports a CSV file and returns the summary once the store
// has been updated.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	req, cleanup, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer cleanup()
	req.Mode = s.importMode(r)

	summary, err := s.importer.Import(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	render.JSON(w, r, summary)
}

// handleStartImport reads the file and processes it in the background.
func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	req, cleanup, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer cleanup()
	req.Mode = s.importMode(r)

	id, err := s.importer.Start(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]string{
		"importId":    id,
		"progressUrl": "/api/imports/" + id + "/progress",
	})
}

// importStatusResponse is the state of a background import. Summary and
// Error are set once the import has finished.
type importStatusResponse struct {
	Progress importer.Progress  `json:"progress"`
	Summary  *core.ImportSummary `json:"summary,omitempty"`
	Error    *ErrorResponse      `json:"error,omitempty"`
}

// handleImportStatus returns the progress of an import, plus its result
// when finished.
func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "importID")

	progress, err := s.importer.Progress(id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	resp := importStatusResponse{Progress: progress}
	if progress.Phase.Done() {
		summary, err := s.importer.Result(r.Context(), id)
		resp.Summary = summary
		if err != nil {
			e := newErrorResponse(err)
			resp.Error = &e
		}
	}
	render.JSON(w, r, resp)
}

// handleImportProgress streams import progress via Server-Sent Events.
// Supports resumption via lastEventId query parameter for reconnection.
func (s *Server) handleImportProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "importID")

	// The event ID is the progress percentage, allowing clients to skip
	// already-received events after reconnection
	lastEventIDStr := r.URL.Query().Get("lastEventId")
	if lastEventIDStr == "" {
		lastEventIDStr = r.Header.Get("Last-Event-ID")
	}
	lastEventID, resuming := -1, false
	if n, err := strconv.Atoi(lastEventIDStr); err == nil {
		lastEventID, resuming = n, true
	}

	progressCh, err := s.importer.SubscribeProgress(id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	stream := newEventStream(w)
	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				// Channel closed: import complete, failed, or cancelled
				stream.send("complete", "", struct{}{})
				return
			}

			percent := progress.Percent()
			if resuming && percent <= lastEventID && !progress.Phase.Done() {
				continue
			}
			if err := stream.send("progress", strconv.Itoa(percent), progress); err != nil {
				return
			}

		case <-r.Context().Done():
			return
		}
	}
}

// handleCancelImport cancels an in-progress import.
func (s *Server) handleCancelImport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "importID")
	if err := s.importer.Cancel(id); err != nil {
		s.respondError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]string{"status": "cancelled"})
}

// handlePreview returns the header row and the first data rows of a file,
// with the field each header maps to.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	req, cleanup, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer cleanup()

	text, err := core.ReadText(req.Body, core.TextOptions{MaxBytes: s.cfg.Import.MaxFileSize})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	rows := min(parseIntParam(r, "rows", core.DefaultPreviewRows), maxPreviewRows)
	render.JSON(w, r, core.BuildPreview(text, rows))
}

// validateRequest describes a file the client is about to upload.
type validateRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// validateResponse lists the checks the file failed.
type validateResponse struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// handleValidate runs the file-level checks on a file description so that
// clients can reject a file before uploading it.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		s.respondError(w, r, fmt.Errorf("%w: %v", core.ErrBadParameter, err))
		return
	}

	problems := s.importer.Validate(req.FileName, req.ContentType, req.Size)
	render.JSON(w, r, validateResponse{Valid: len(problems) == 0, Errors: problems})
}
