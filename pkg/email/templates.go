package email

import (
	"bytes"
	"html/template"
)

// TemplateManager holds the parsed notification email template.
type TemplateManager struct {
	notificationTmpl *template.Template
}

// NewTemplateManager parses the email templates at startup.
func NewTemplateManager() (*TemplateManager, error) {
	tmpl, err := template.New("notification").Parse(notificationTemplate)
	if err != nil {
		return nil, err
	}
	return &TemplateManager{notificationTmpl: tmpl}, nil
}

// NotificationData holds the dynamic data for a notification email.
type NotificationData struct {
	Title   string
	Message string
	Link    string
}

// GenerateNotificationEmailHTML renders the notification email body.
func (tm *TemplateManager) GenerateNotificationEmailHTML(data NotificationData) (string, error) {
	var body bytes.Buffer
	if err := tm.notificationTmpl.Execute(&body, data); err != nil {
		return "", err
	}
	return body.String(), nil
}

const notificationTemplate = `
<!DOCTYPE html>
<html>
<head>
	<title>{{.Title}}</title>
</head>
<body style="font-family: Arial, sans-serif;">
	<h2>{{.Title}}</h2>
	<p>{{.Message}}</p>
	{{if .Link}}<p><a href="{{.Link}}">View details</a></p>{{end}}
	<p>You are receiving this email because of activity on your courier account.</p>
</body>
</html>
`
