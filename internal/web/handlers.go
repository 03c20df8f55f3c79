package web

import (
	"fmt"
	"net/http"

	"github.com/JonMunkholm/salesrecon/internal/core"
	"github.com/JonMunkholm/salesrecon/internal/export"
	"github.com/JonMunkholm/salesrecon/internal/job"
	"github.com/JonMunkholm/salesrecon/internal/logging"
	"github.com/JonMunkholm/salesrecon/internal/report"
	"github.com/JonMunkholm/salesrecon/internal/web/templates"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// handleDashboard renders the main dashboard page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	templates.Dashboard(templates.DashboardData{
		Rules:       core.RuleCatalog(),
		Reports:     report.Catalog(),
		Fields:      s.service.Fields(),
		MaxFileSize: s.cfg.Upload.MaxFileSize,
	}).Render(r.Context(), w)
}

// handleHealth reports liveness and pipeline slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, map[string]any{
		"status": "ok",
		"runs":   s.limiter.Status(),
	})
}

// handleRuleCatalog lists the exception rules in evaluation order.
func (s *Server) handleRuleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, core.RuleCatalog())
}

// handleReportCatalog lists the available reports.
func (s *Server) handleReportCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, report.Catalog())
}

// handleNulls maps the secondary table and lists the fields that still hold
// nulls, with the policies each accepts.
func (s *Server) handleNulls(w http.ResponseWriter, r *http.Request) {
	in, err := s.parsePipelineForm(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if in.Secondary == nil {
		s.respondError(w, r, fmt.Errorf("secondary: %w", ErrNoFile))
		return
	}
	writeJSON(w, r, s.service.PrepareNulls(in.Secondary, in.Primary, in.Request.Mapping))
}

// pipelineResponse is a pipeline result plus any requested reports.
type pipelineResponse struct {
	*core.Result
	Reports report.Results `json:"reports,omitempty"`
}

// handlePipeline runs the full pipeline and returns every stage's output.
func (s *Server) handlePipeline(w http.ResponseWriter, r *http.Request) {
	in, err := s.parsePipelineForm(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	res, err := s.run(r, in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	resp := pipelineResponse{Result: res}
	if len(in.Request.Reports) > 0 {
		reports, warnings := report.Generate(res.Filtered, in.Request.Reports, s.service.Fields())
		resp.Reports = reports
		res.Warnings = append(res.Warnings, warnings...)
	}
	writeJSON(w, r, resp)
}

// handleExportFiltered runs the pipeline and downloads the filtered table.
func (s *Server) handleExportFiltered(w http.ResponseWriter, r *http.Request) {
	s.exportCSV(w, r, "filtered.csv", func(res *core.Result) *core.Table { return res.Filtered })
}

// handleExportMerged runs the pipeline and downloads the merged table.
func (s *Server) handleExportMerged(w http.ResponseWriter, r *http.Request) {
	s.exportCSV(w, r, "merged.csv", func(res *core.Result) *core.Table { return res.Merged })
}

// handleExportMapped runs the pipeline and downloads the secondary table after
// mapping and null resolution. It needs a secondary file and a mapping.
func (s *Server) handleExportMapped(w http.ResponseWriter, r *http.Request) {
	s.exportCSV(w, r, "mapped.csv", func(res *core.Result) *core.Table { return res.Cleaned })
}

func (s *Server) exportCSV(w http.ResponseWriter, r *http.Request, filename string, pick func(*core.Result) *core.Table) {
	in, err := s.parsePipelineForm(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	res, err := s.run(r, in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	t := pick(res)
	if t == nil {
		s.respondError(w, r, fmt.Errorf("%w: %s needs a secondary file and a mapping", job.ErrInvalidRequest, filename))
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", attachment(filename))
	w.Header().Set("X-Run-ID", res.RunID)
	if err := export.WriteCSV(w, t); err != nil {
		logging.FromContext(r.Context()).Error("csv export failed", "run_id", res.RunID, "error", err)
	}
}

// handleExportExceptions runs the pipeline and downloads one worksheet per
// exception result.
func (s *Server) handleExportExceptions(w http.ResponseWriter, r *http.Request) {
	in, err := s.parsePipelineForm(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	res, err := s.run(r, in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.writeWorkbook(w, r, "exceptions.xlsx", res.RunID, export.ExceptionSheets(res.Exceptions))
}

// reportsResponse carries generated reports.
type reportsResponse struct {
	RunID    string         `json:"runId"`
	Reports  report.Results `json:"reports"`
	Warnings []core.Warning `json:"warnings,omitempty"`
}

// handleReports runs the pipeline and returns the selected reports over the
// filtered table.
func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	res, reports, warnings, ok := s.runReports(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, reportsResponse{RunID: res.RunID, Reports: reports, Warnings: warnings})
}

// handleExportReports downloads the selected reports as a workbook.
func (s *Server) handleExportReports(w http.ResponseWriter, r *http.Request) {
	res, reports, _, ok := s.runReports(w, r)
	if !ok {
		return
	}
	s.writeWorkbook(w, r, "reports.xlsx", res.RunID, reports.Sheets())
}

func (s *Server) runReports(w http.ResponseWriter, r *http.Request) (*core.Result, report.Results, []core.Warning, bool) {
	in, err := s.parsePipelineForm(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return nil, nil, nil, false
	}
	res, err := s.run(r, in)
	if err != nil {
		s.respondError(w, r, err)
		return nil, nil, nil, false
	}
	reports, warnings := report.Generate(res.Filtered, in.Request.Reports, s.service.Fields())
	return res, reports, warnings, true
}

func (s *Server) writeWorkbook(w http.ResponseWriter, r *http.Request, filename, runID string, sheets []export.Sheet) {
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", attachment(filename))
	w.Header().Set("X-Run-ID", runID)
	if err := export.WriteWorkbook(w, sheets); err != nil {
		logging.FromContext(r.Context()).Error("workbook export failed", "run_id", runID, "error", err)
	}
}

// run executes the pipeline. The caller already holds a run slot.
func (s *Server) run(r *http.Request, in *pipelineInput) (*core.Result, error) {
	return s.service.Run(WithRequestMetadata(r.Context(), r), in.Request.Pipeline(in.Primary, in.Secondary))
}

// runSlot holds a run slot for the whole request, so uploads are only read
// into memory once the run may proceed.
func (s *Server) runSlot(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.limiter.Acquire(r.Context()); err != nil {
			s.respondError(w, r, err)
			return
		}
		defer s.limiter.Release()
		next.ServeHTTP(w, r)
	})
}

func attachment(filename string) string {
	return fmt.Sprintf("attachment; filename=%q", filename)
}
