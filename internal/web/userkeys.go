// Package web renders groupkeeper's server-side HTML pages. Each page is an
// html/template compiled at init, executed against a view model the handler
// assembles; rendering never touches the database.
package web

import (
	"html/template"
	"io"
	"time"
)

// UserKeysForm mirrors the query parameters of the public keys page
type UserKeysForm struct {
	Enabled     bool
	Limit       int
	Offset      int
	SortBy      string
	Fingerprint string
}

// KeyRow is one rendered table row
type KeyRow struct {
	Username    string
	KeyType     string
	KeySize     int
	Fingerprint string
	Comment     string
	CreatedAt   time.Time
}

// UserKeysPage is the full view model of the public keys page. Total counts
// distinct key owners and drives the heading; TotalKeys counts rows and
// drives the paginator.
type UserKeysPage struct {
	Form      UserKeysForm
	Total     int
	TotalKeys int
	Keys      []KeyRow
}

// Column describes one sortable table header
type Column struct {
	Key   string
	Label string
}

// Columns returns the table headers in display order. Keys match the sort_by
// values the handler accepts.
func (p UserKeysPage) Columns() []Column {
	return []Column{
		{Key: "user", Label: "User"},
		{Key: "fingerprint", Label: "Fingerprint"},
		{Key: "created", Label: "Created"},
	}
}

// PrevOffset returns the offset of the previous page, floored at zero
func (p UserKeysPage) PrevOffset() int {
	prev := p.Form.Offset - p.Form.Limit
	if prev < 0 {
		prev = 0
	}
	return prev
}

// NextOffset returns the offset of the next page
func (p UserKeysPage) NextOffset() int {
	return p.Form.Offset + p.Form.Limit
}

// HasPrev reports whether a previous page exists
func (p UserKeysPage) HasPrev() bool {
	return p.Form.Offset > 0
}

// HasNext reports whether a next page exists
func (p UserKeysPage) HasNext() bool {
	return p.Form.Offset+len(p.Keys) < p.TotalKeys
}

// The heading, pluralization, and sort-header link shapes are contract:
// a column header is plain text when it is the current sort key and a
// bare "?sort_by={key}" link otherwise.
var userKeysTmpl = template.Must(template.New("userkeys").Parse(`<!DOCTYPE html>
<html>
<head>
  <title>{{if not .Form.Enabled}}Disabled {{end}}User Public Keys</title>
</head>
<body>
<h2>{{if not .Form.Enabled}}Disabled {{end}}User Public Keys</h2>
<p>{{.Total}} user{{if gt .Total 1}}s{{end}}</p>
<table>
  <thead>
    <tr>
{{- range $col := .Columns}}
      <th>{{if eq $.Form.SortBy $col.Key}}{{$col.Label}}{{else}}<a href="?sort_by={{$col.Key}}">{{$col.Label}}</a>{{end}}</th>
{{- end}}
      <th>Type</th>
      <th>Size</th>
    </tr>
  </thead>
  <tbody>
{{- range .Keys}}
    <tr>
      <td>{{.Username}}</td>
      <td><code>{{.Fingerprint}}</code></td>
      <td>{{.CreatedAt.UTC.Format "2006-01-02 15:04"}}</td>
      <td>{{.KeyType}}</td>
      <td>{{.KeySize}}</td>
    </tr>
{{- end}}
  </tbody>
</table>
<div class="paginator">
{{- if .HasPrev}}
  <a href="?offset={{.PrevOffset}}&amp;limit={{.Form.Limit}}&amp;sort_by={{.Form.SortBy}}">Previous</a>
{{- end}}
{{- if .HasNext}}
  <a href="?offset={{.NextOffset}}&amp;limit={{.Form.Limit}}&amp;sort_by={{.Form.SortBy}}">Next</a>
{{- end}}
</div>
</body>
</html>
`))

// RenderUserKeys writes the public keys page to w
func RenderUserKeys(w io.Writer, page UserKeysPage) error {
	return userKeysTmpl.Execute(w, page)
}
