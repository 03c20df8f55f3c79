package core

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

type recordingObserver struct {
	mu     sync.Mutex
	stages []string
	rules  map[string]int
	runs   int
}

func (o *recordingObserver) StageCompleted(stage string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stages = append(o.stages, stage)
}

func (o *recordingObserver) RuleEvaluated(result string, rows int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.rules == nil {
		o.rules = make(map[string]int)
	}
	o.rules[result] = rows
}

func (o *recordingObserver) RunCompleted(int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs++
}

func pipelineTables() (primary, secondary *Table) {
	primary = NewTable("State", "Dealer", "Inv Date", "Sales Amt", "Qty")
	primary.AppendRow(TextValue("TX"), TextValue("Acme"), TextValue("2024-01-10"), NumberValue(100), NumberValue(2))
	primary.AppendRow(TextValue("TX"), TextValue("Acme"), TextValue("2024-01-10"), NumberValue(100), NumberValue(2))
	primary.AppendRow(TextValue("CA"), TextValue("Bolt"), TextValue("2099-01-01"), NumberValue(-5), NumberValue(1))
	primary.AppendRow(TextValue("NY"), TextValue("Core"), TextValue("2024-03-01"), NumberValue(0), NumberValue(4))

	secondary = NewTable("state_code", "region", "notes")
	secondary.AppendRow(TextValue("TX"), TextValue("South"), TextValue("a"))
	secondary.AppendRow(NullValue(), TextValue("South"), TextValue("b"))
	secondary.AppendRow(TextValue("CA"), NullValue(), TextValue("c"))
	return primary, secondary
}

func TestService_Run(t *testing.T) {
	primary, secondary := pipelineTables()
	obs := &recordingObserver{}
	svc := NewService(Options{
		Now:      func() time.Time { return fixedNow },
		Observer: obs,
	})

	res, err := svc.Run(context.Background(), Request{
		Primary:   primary,
		Secondary: secondary,
		Mapping:   FieldMapping{"state_code": "State", "region": "Region"},
		Policies:  []FieldPolicy{{Field: "State", Policy: DropRow}},
		Rules:     []RuleID{RuleNegatives, RuleDuplicates, RuleInvalidDates, RuleMismatch},
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if res.RunID == "" {
		t.Error("RunID should be set")
	}
	if !res.StartedAt.Equal(fixedNow) {
		t.Errorf("StartedAt = %v, want %v", res.StartedAt, fixedNow)
	}

	// "region" targets a field the primary table does not have.
	if len(res.MappingErrors) != 1 || res.MappingErrors[0].Code != CodeUnknownPrimaryField {
		t.Errorf("MappingErrors = %v, want one %s", res.MappingErrors, CodeUnknownPrimaryField)
	}
	if want := []string{"State"}; !reflect.DeepEqual(res.Mapped.Fields, want) {
		t.Errorf("Mapped.Fields = %v, want %v", res.Mapped.Fields, want)
	}
	if res.Cleaned.Len() != 2 {
		t.Errorf("Cleaned.Len = %d, want 2", res.Cleaned.Len())
	}

	// Mapped fields share primary names, so the merge keeps the primary layout.
	if !reflect.DeepEqual(res.Merged.Fields, primary.Fields) {
		t.Errorf("Merged.Fields = %v, want %v", res.Merged.Fields, primary.Fields)
	}
	if res.Merged.Len() != 4 || res.Filtered.Len() != 4 {
		t.Errorf("Merged.Len = %d, Filtered.Len = %d, want 4 and 4", res.Merged.Len(), res.Filtered.Len())
	}

	counts := map[string]int{}
	for _, r := range res.Exceptions {
		counts[r.Name] = r.Table.Len()
	}
	want := map[string]int{
		ResultNegatives:    1,
		ResultDuplicates:   1,
		ResultInvalidDates: 1,
		ResultMismatch:     1,
	}
	if !reflect.DeepEqual(counts, want) {
		t.Errorf("exception counts = %v, want %v", counts, want)
	}

	wantStages := []string{StageMap, StageNulls, StageMerge, StageFilter, StageExceptions}
	if !reflect.DeepEqual(obs.stages, wantStages) {
		t.Errorf("stages = %v, want %v", obs.stages, wantStages)
	}
	if !reflect.DeepEqual(obs.rules, want) {
		t.Errorf("observed rules = %v, want %v", obs.rules, want)
	}
	if obs.runs != 1 {
		t.Errorf("runs = %d, want 1", obs.runs)
	}
}

func TestService_RunWithFilters(t *testing.T) {
	primary, _ := pipelineTables()
	svc := NewService(Options{Now: func() time.Time { return fixedNow }})

	res, err := svc.Run(context.Background(), Request{
		Primary:     primary,
		Categorical: &CategoricalFilter{Values: []string{"TX", "CA"}},
		Numeric:     &NumericFilter{Field: "Sales Amt", Threshold: ptr(0)},
		Rules:       []RuleID{RuleNegatives, RuleDuplicates},
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if res.Filtered.Len() != 2 {
		t.Errorf("Filtered.Len = %d, want 2", res.Filtered.Len())
	}
	neg, _ := res.Exceptions.Get(ResultNegatives)
	if neg.Len() != 0 {
		t.Errorf("negatives after filtering = %d, want 0", neg.Len())
	}
	dup, _ := res.Exceptions.Get(ResultDuplicates)
	if dup.Len() != 1 {
		t.Errorf("duplicates after filtering = %d, want 1", dup.Len())
	}
}

func TestService_SecondaryWithoutMapping(t *testing.T) {
	primary, secondary := pipelineTables()
	svc := NewService(Options{})

	res, err := svc.Run(context.Background(), Request{Primary: primary, Secondary: secondary})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Mapped != nil {
		t.Error("Mapped should be nil without a mapping")
	}
	if !reflect.DeepEqual(res.Merged.Fields, primary.Fields) {
		t.Errorf("Merged.Fields = %v, want %v", res.Merged.Fields, primary.Fields)
	}

	var codes []WarningCode
	for _, w := range res.Warnings {
		codes = append(codes, w.Code)
	}
	// One for the ignored secondary table, one for no rules selected.
	if want := []WarningCode{WarnEmptySelection, WarnEmptySelection}; !reflect.DeepEqual(codes, want) {
		t.Errorf("warning codes = %v, want %v", codes, want)
	}
}

func TestService_NoPrimary(t *testing.T) {
	_, err := NewService(Options{}).Run(context.Background(), Request{})
	if !errors.Is(err, ErrNoPrimary) {
		t.Errorf("Run() error = %v, want ErrNoPrimary", err)
	}
}

func TestService_DoesNotModifyInputs(t *testing.T) {
	primary, secondary := pipelineTables()
	p, s := primary.Clone(), secondary.Clone()

	_, err := NewService(Options{}).Run(context.Background(), Request{
		Primary:   primary,
		Secondary: secondary,
		Mapping:   FieldMapping{"state_code": "State"},
		Policies:  []FieldPolicy{{Field: "State", Policy: FillMode}},
		Rules:     []RuleID{RuleOutliers},
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !reflect.DeepEqual(primary, p) || !reflect.DeepEqual(secondary, s) {
		t.Error("inputs were modified")
	}
}

func TestService_PrepareNulls(t *testing.T) {
	primary, secondary := pipelineTables()
	svc := NewService(Options{})

	p := svc.PrepareNulls(secondary, primary, FieldMapping{"state_code": "State", "notes": "Dealer"})
	if len(p.MappingErrors) != 0 {
		t.Errorf("unexpected errors: %v", p.MappingErrors)
	}
	if len(p.Nulls) != 1 || p.Nulls[0].Field != "State" || p.Nulls[0].Nulls != 1 {
		t.Errorf("Nulls = %+v, want State with 1 null", p.Nulls)
	}
	if p.NewFields == nil || len(p.NewFields) != 0 {
		t.Errorf("NewFields = %#v, want empty", p.NewFields)
	}

	p = svc.PrepareNulls(secondary, primary, FieldMapping{"state_code": "State", "region": "Region"})
	if len(p.MappingErrors) != 1 || p.MappingErrors[0].Code != CodeUnknownPrimaryField {
		t.Errorf("MappingErrors = %v, want one %s", p.MappingErrors, CodeUnknownPrimaryField)
	}
}

func TestService_FieldsDefaults(t *testing.T) {
	svc := NewService(Options{Fields: Fields{Region: "Territory"}})
	f := svc.Fields()
	if f.Region != "Territory" {
		t.Errorf("Region = %q, want Territory", f.Region)
	}
	if f.SalesAmount != "Sales Amt" {
		t.Errorf("SalesAmount = %q, want default", f.SalesAmount)
	}
}

func TestService_EnumerationCap(t *testing.T) {
	primary := NewTable("Code")
	for range 10 {
		primary.AppendRow(NumberValue(7))
	}
	req := Request{Primary: primary, Numeric: &NumericFilter{Field: "Code"}}

	capped, err := NewService(Options{EnumerationCap: 3}).Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if capped.Filtered.Len() != 3 {
		t.Errorf("capped Filtered.Len = %d, want 3", capped.Filtered.Len())
	}

	other, err := NewService(Options{}).Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if other.Filtered.Len() != 10 {
		t.Errorf("default Filtered.Len = %d, want 10", other.Filtered.Len())
	}
}
