package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Options configures a Service.
type Options struct {
	Fields         Fields
	EnumerationCap int              // Row limit of an enumeration numeric filter (default: DefaultEnumerationCap)
	Now            func() time.Time // Reference clock for date rules (default: time.Now)
	Observer       Observer         // Optional measurement sink
}

// Service runs the reconciliation pipeline. It holds no per-run state:
// every call to Run is independent and returns its own Result.
type Service struct {
	fields   Fields
	enumCap  int
	now      func() time.Time
	observer Observer
}

// NewService creates a new Service instance.
func NewService(opts Options) *Service {
	s := &Service{
		fields:   opts.Fields.withDefaults(),
		enumCap:  opts.EnumerationCap,
		now:      opts.Now,
		observer: opts.Observer,
	}
	if s.enumCap <= 0 {
		s.enumCap = DefaultEnumerationCap
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.observer == nil {
		s.observer = nopObserver{}
	}
	return s
}

// Fields returns the designated fields the service evaluates against.
func (s *Service) Fields() Fields {
	return s.fields
}

// Run executes map, null resolution, merge, filter and exception detection
// in that order. Only a missing primary table is an error; every other
// problem is reported in the Result.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Primary == nil {
		return nil, ErrNoPrimary
	}

	start := time.Now()
	res := &Result{
		RunID:     uuid.NewString(),
		StartedAt: s.now(),
	}
	ctx = ContextWithRunID(ctx, res.RunID)
	logger := slog.Default().With("run_id", res.RunID)
	if ip := IPAddressFromContext(ctx); ip != "" {
		logger = logger.With("ip", ip)
	}

	logger.InfoContext(ctx, "pipeline started",
		"primary_rows", req.Primary.Len(),
		"secondary_rows", req.Secondary.Len(),
		"mapped_fields", len(req.Mapping),
		"rules", len(req.Rules),
	)

	switch {
	case req.Secondary != nil && len(req.Mapping) > 0:
		s.stage(StageMap, func() {
			res.Mapped, res.MappingErrors = MapColumns(req.Secondary, req.Primary, req.Mapping)
		})
		for _, e := range res.MappingErrors {
			logger.WarnContext(ctx, "mapping entry rejected", "field", e.Field, "target", e.Value, "code", e.Code)
		}

		s.stage(StageNulls, func() {
			var w []Warning
			res.Cleaned, w = ResolveNulls(res.Mapped, req.Policies)
			res.Warnings = append(res.Warnings, w...)
		})

		s.stage(StageMerge, func() {
			res.Merged = Merge(req.Primary, res.Cleaned)
		})

	default:
		if req.Secondary != nil {
			res.Warnings = append(res.Warnings, Warning{
				Code:    WarnEmptySelection,
				Stage:   StageMap,
				Message: "no mapping declared, secondary dataset ignored",
			})
		}
		res.Merged = req.Primary.Clone()
	}

	s.stage(StageFilter, func() {
		var w []Warning
		res.Filtered, w = ApplyFilters(res.Merged, s.fields, req.Categorical, req.Numeric, s.enumCap)
		res.Warnings = append(res.Warnings, w...)
	})

	s.stage(StageExceptions, func() {
		var w []Warning
		engine := NewExceptionEngine(s.fields, s.now)
		res.Exceptions, w = engine.Run(res.Filtered, req.Rules)
		res.Warnings = append(res.Warnings, w...)
	})
	for _, r := range res.Exceptions {
		s.observer.RuleEvaluated(r.Name, r.Table.Len())
	}

	for _, w := range res.Warnings {
		logger.WarnContext(ctx, "pipeline warning", "stage", w.Stage, "code", w.Code, "field", w.Field, "message", w.Message)
	}

	res.Duration = time.Since(start)
	s.observer.RunCompleted(res.Filtered.Len(), len(res.Warnings))

	logger.InfoContext(ctx, "pipeline completed",
		"merged_rows", res.Merged.Len(),
		"filtered_rows", res.Filtered.Len(),
		"exception_results", len(res.Exceptions),
		"warnings", len(res.Warnings),
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// NullPreview describes the mapped secondary table before null policies
// apply.
type NullPreview struct {
	Nulls         []NullColumn      `json:"nulls"`
	MappingErrors []ValidationError `json:"mappingErrors,omitempty"`
	NewFields     []string          `json:"newFields"`
}

// PrepareNulls maps the secondary table once and reports which of its fields
// contain nulls and which it would add to the primary, so a caller can choose
// policies before running.
func (s *Service) PrepareNulls(secondary, primary *Table, mapping FieldMapping) NullPreview {
	mapped, errs := MapColumns(secondary, primary, mapping)
	p := NullPreview{
		Nulls:         NullSummary(mapped),
		MappingErrors: errs,
		NewFields:     NewFields(primary, mapped),
	}
	if p.Nulls == nil {
		p.Nulls = []NullColumn{}
	}
	if p.NewFields == nil {
		p.NewFields = []string{}
	}
	return p
}

func (s *Service) stage(name string, fn func()) {
	start := time.Now()
	fn()
	s.observer.StageCompleted(name, time.Since(start))
}
