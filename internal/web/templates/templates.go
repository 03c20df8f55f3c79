// Package templates renders the dashboard and HTMX fragments.
package templates

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/salesrecon/internal/core"
	"github.com/JonMunkholm/salesrecon/internal/report"
)

// DashboardData is everything the dashboard page shows.
type DashboardData struct {
	Rules       []core.RuleInfo
	Reports     []report.Info
	Fields      core.Fields
	MaxFileSize int64
}

// Dashboard renders the upload form with the rule and report catalogs.
func Dashboard(data DashboardData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		b.WriteString(`<title>Sales Reconciliation</title></head><body>`)
		b.WriteString(`<main><h1>Sales Reconciliation</h1>`)
		fmt.Fprintf(&b, `<p>Files up to %d MB. Region field: <code>%s</code>, sales field: <code>%s</code>, quantity field: <code>%s</code>.</p>`,
			data.MaxFileSize/(1024*1024),
			templ.EscapeString(data.Fields.Region),
			templ.EscapeString(data.Fields.SalesAmount),
			templ.EscapeString(data.Fields.Quantity),
		)

		b.WriteString(`<form id="pipeline" method="post" action="/api/pipeline" enctype="multipart/form-data">`)
		b.WriteString(`<label>Primary CSV <input type="file" name="primary" accept=".csv" required></label>`)
		b.WriteString(`<label>Secondary CSV <input type="file" name="secondary" accept=".csv"></label>`)
		b.WriteString(`<label>Request <textarea name="request" rows="8">{}</textarea></label>`)

		b.WriteString(`<fieldset><legend>Exception rules</legend>`)
		for _, r := range data.Rules {
			fmt.Fprintf(&b, `<label><input type="checkbox" name="rule" value="%s"> %s</label>`,
				templ.EscapeString(string(r.ID)), templ.EscapeString(r.Label))
		}
		b.WriteString(`</fieldset>`)

		b.WriteString(`<fieldset><legend>Reports</legend>`)
		for _, r := range data.Reports {
			fmt.Fprintf(&b, `<label><input type="checkbox" name="report" value="%s"> %s</label>`,
				templ.EscapeString(string(r.ID)), templ.EscapeString(r.Title))
		}
		b.WriteString(`</fieldset>`)

		b.WriteString(`<button type="submit">Run</button></form>`)
		b.WriteString(`<div id="errors"></div></main></body></html>`)

		_, err := io.WriteString(w, b.String())
		return err
	})
}

// ErrorAlert renders an error message fragment for HTMX swaps.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<div class="alert alert-error" role="alert">`)
		fmt.Fprintf(&b, `<p class="alert-message">%s</p>`, templ.EscapeString(message))
		if action != "" {
			fmt.Fprintf(&b, `<p class="alert-action">%s</p>`, templ.EscapeString(action))
		}
		fmt.Fprintf(&b, `<p class="alert-code">Code: %s</p></div>`, templ.EscapeString(code))
		_, err := io.WriteString(w, b.String())
		return err
	})
}
