// Package mail renders and delivers groupkeeper's notification emails:
// membership request filed, request resolved, and membership expired.
// Rendering is separated from delivery so the exact message text is testable
// without an SMTP server.
package mail

import (
	"bytes"
	"fmt"
	"text/template"
	"time"
)

// MembershipRequestData is the view model for the request-filed email sent to
// a group's approvers
type MembershipRequestData struct {
	Requester   string // who the membership is for
	RequestedBy string // who filed the request
	GroupName   string
	Role        string
	Expiration  *time.Time // nil means the membership never expires
	Reason      string
	URL         string // base URL of the groupkeeper UI, no trailing slash
}

// ExpiresWhen renders the expiration the way the emails show it
func (d MembershipRequestData) ExpiresWhen() string {
	return expiresWhen(d.Expiration)
}

func expiresWhen(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}

// The attribution line renders only when the request was filed on the
// requester's behalf. The deep link format is load-bearing: monitoring
// and mail-client integrations match on it.
var membershipRequestTmpl = template.Must(template.New("membership_request").Parse(
	`{{.Requester}} has requested membership in {{.GroupName}}.

To approve or deny this request, visit:

    {{.URL}}/groups/{{.GroupName}}/requests?status=pending

Request details:

    Group:   {{.GroupName}}
    Member:  {{.Requester}}
    Role:    {{.Role}}
    Expires: {{.ExpiresWhen}}
    Reason:  {{.Reason}}
{{if ne .RequestedBy .Requester}}
This request was made on behalf of {{.Requester}} by {{.RequestedBy}}.
{{end}}`))

// RenderMembershipRequest produces the subject and plain-text body of the
// request-filed email
func RenderMembershipRequest(data MembershipRequestData) (subject, body string, err error) {
	var buf bytes.Buffer
	if err := membershipRequestTmpl.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render membership request email: %w", err)
	}
	subject = fmt.Sprintf("Membership request: %s in %s", data.Requester, data.GroupName)
	return subject, buf.String(), nil
}

// RequestResolvedData is the view model for the email sent to the requester
// once their request is approved or denied
type RequestResolvedData struct {
	Requester  string
	GroupName  string
	Role       string
	Status     string // "approved" or "denied"
	ResolvedBy string
	Note       string
	URL        string
}

var requestResolvedTmpl = template.Must(template.New("request_resolved").Parse(
	`Your request for {{.Role}} membership in {{.GroupName}} was {{.Status}} by {{.ResolvedBy}}.
{{if .Note}}
Note from the approver:

    {{.Note}}
{{end}}
Group page: {{.URL}}/groups/{{.GroupName}}
`))

// RenderRequestResolved produces the subject and body of the resolution email
func RenderRequestResolved(data RequestResolvedData) (subject, body string, err error) {
	var buf bytes.Buffer
	if err := requestResolvedTmpl.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render request resolved email: %w", err)
	}
	subject = fmt.Sprintf("Membership request %s: %s", data.Status, data.GroupName)
	return subject, buf.String(), nil
}

// EdgeExpiredData is the view model for the email sent when a membership
// lapses
type EdgeExpiredData struct {
	Member    string
	GroupName string
	ExpiredAt time.Time
	URL       string
}

var edgeExpiredTmpl = template.Must(template.New("edge_expired").Parse(
	`The membership of {{.Member}} in {{.GroupName}} expired on {{.ExpiredAt.UTC.Format "2006-01-02 15:04:05 UTC"}} and has been removed.

To request membership again, visit:

    {{.URL}}/groups/{{.GroupName}}
`))

// RenderEdgeExpired produces the subject and body of the expiry email
func RenderEdgeExpired(data EdgeExpiredData) (subject, body string, err error) {
	var buf bytes.Buffer
	if err := edgeExpiredTmpl.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render edge expired email: %w", err)
	}
	subject = fmt.Sprintf("Membership expired: %s", data.GroupName)
	return subject, buf.String(), nil
}
