// Package core implements the sales reconciliation pipeline. It has no
// knowledge of HTTP or files beyond reading CSV; the web server and the
// reconcile command both drive it through [Service].
//
// # Stages
//
// Each stage returns a new table and leaves its input untouched:
//
//  1. [MapColumns] renames mapped secondary fields onto primary names and
//     drops unmapped ones. Bad entries are rejected, the rest still apply.
//  2. [ResolveNulls] applies a [NullPolicy] per field in declaration order.
//  3. [Merge] places the cleaned secondary fields beside the primary table by
//     row position. Primary fields win on name clashes.
//  4. [ApplyFilters] runs the categorical filter then the numeric filter.
//  5. [ExceptionEngine] evaluates the selected rules against the filtered table.
//
// [Service.Run] chains them and returns a [Result] for reporting and export.
//
// # Rules
//
// Exception rules register themselves from init in exceptions.go:
//
//	RegisterRule(RuleDefinition{
//	    Info:     RuleInfo{ID: RuleDuplicates, Label: "Duplicate Rows", Order: 2},
//	    Evaluate: duplicateRows,
//	})
//
// Order fixes both evaluation order and the sheet order of an export.
//
// # Problems
//
// Only unreadable input fails a run. Rejected mapping entries (VAL010-VAL012)
// come back as [ValidationError] values and skipped steps as [Warning]
// values. [MapError] turns a failure into a coded [UserMessage]: FILE0xx for
// uploads, REQ0xx for requests, ERR000 otherwise.
package core
