package usecase

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/kirillkom/renewal-tracker/internal/core/domain"
)

type alertMessage struct {
	Subject  string
	Title    string
	Text     string
	Name     string
	Tier     string
	CancelBy string
	EndDate  string
	URL      string
}

func buildAlertMessage(doc *domain.Document, u domain.Urgency, url string) alertMessage {
	name := doc.DisplayName()
	left := *u.DaysLeftToCancel
	msg := alertMessage{
		Name:     name,
		Tier:     string(u.Tier),
		CancelBy: u.CancelBy.String(),
		EndDate:  doc.EndDate.String(),
		URL:      url,
	}
	switch {
	case left < 0:
		msg.Title = fmt.Sprintf("Cancellation deadline passed for %s", name)
		msg.Text = fmt.Sprintf("The cancellation deadline for %s was %s (%d days ago). The term ends on %s.", name, msg.CancelBy, -left, msg.EndDate)
	case left == 0:
		msg.Title = fmt.Sprintf("Last day to cancel %s", name)
		msg.Text = fmt.Sprintf("Today (%s) is the last day to cancel %s before it ends on %s.", msg.CancelBy, name, msg.EndDate)
	default:
		msg.Title = fmt.Sprintf("%d days left to cancel %s", left, name)
		msg.Text = fmt.Sprintf("You have %d days, until %s, to cancel %s. The term ends on %s.", left, msg.CancelBy, name, msg.EndDate)
	}
	if doc.AutoRenews != nil && *doc.AutoRenews {
		msg.Text += " It renews automatically if you do nothing."
	}
	msg.Subject = "Renewal alert: " + msg.Title
	return msg
}

var alertEmailTemplate = template.Must(template.New("alert").Parse(`<!doctype html>
<html><body style="font-family:sans-serif">
<p>Hi{{if .Recipient}} {{.Recipient}}{{end}},</p>
<h2>{{.Message.Title}}</h2>
<p>{{.Message.Text}}</p>
<table>
<tr><td>Document</td><td>{{.Message.Name}}</td></tr>
<tr><td>Cancel by</td><td>{{.Message.CancelBy}}</td></tr>
<tr><td>Term ends</td><td>{{.Message.EndDate}}</td></tr>
<tr><td>Urgency</td><td>{{.Message.Tier}}</td></tr>
</table>
{{if .Message.URL}}<p><a href="{{.Message.URL}}">Review this document</a></p>{{end}}
</body></html>`))

func renderAlertEmail(recipient string, msg alertMessage) (string, error) {
	var buf bytes.Buffer
	err := alertEmailTemplate.Execute(&buf, struct {
		Recipient string
		Message   alertMessage
	}{Recipient: recipient, Message: msg})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
