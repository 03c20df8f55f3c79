package web

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/JonMunkholm/salesrecon/internal/core"
	"github.com/JonMunkholm/salesrecon/internal/job"
	"github.com/JonMunkholm/salesrecon/internal/report"
)

// ErrNoFile is returned when a required upload part is missing.
var ErrNoFile = errors.New("no file provided")

// pipelineInput is a parsed multipart pipeline submission.
type pipelineInput struct {
	Primary   *core.Table
	Secondary *core.Table
	Request   job.Request
}

// parsePipelineForm reads the primary and secondary CSVs and the request
// document from a multipart form. Checkbox values named "rule" and "report"
// are added to the request's selections.
func (s *Server) parsePipelineForm(w http.ResponseWriter, r *http.Request) (*pipelineInput, error) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(s.cfg.Upload.MaxMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, fmt.Errorf("file too large: limit is %d bytes", maxErr.Limit)
		}
		return nil, fmt.Errorf("%w: %v", job.ErrInvalidRequest, err)
	}

	in := &pipelineInput{}
	var err error

	in.Primary, err = readTableField(r, "primary")
	if err != nil {
		if errors.Is(err, ErrNoFile) {
			return nil, core.ErrNoPrimary
		}
		return nil, err
	}
	in.Secondary, err = readTableField(r, "secondary")
	if err != nil && !errors.Is(err, ErrNoFile) {
		return nil, err
	}

	in.Request, err = job.DecodeJSON([]byte(r.FormValue("request")))
	if err != nil {
		return nil, err
	}
	for _, id := range r.MultipartForm.Value["rule"] {
		in.Request.Rules = append(in.Request.Rules, core.RuleID(id))
	}
	for _, id := range r.MultipartForm.Value["report"] {
		in.Request.Reports = append(in.Request.Reports, report.ID(id))
	}

	if err := in.Request.Validate(); err != nil {
		return nil, err
	}
	return in, nil
}

func readTableField(r *http.Request, name string) (*core.Table, error) {
	file, header, err := r.FormFile(name)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, ErrNoFile
		}
		return nil, fmt.Errorf("%w: %v", job.ErrInvalidRequest, err)
	}
	defer file.Close()

	t, err := core.ReadCSV(file)
	if err != nil {
		return nil, fmt.Errorf("%s file %q: %w", name, header.Filename, err)
	}
	return t, nil
}
