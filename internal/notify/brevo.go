package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	texttemplate "text/template"

	brevo "github.com/getbrevo/brevo-go/lib"

	apperrors "github.com/curtistech/unlock-server/internal/errors"
)

type BrevoConfig struct {
	APIKey      string
	FromEmail   string
	FromName    string
	ProductName string
	// BasePath overrides the API endpoint.
	BasePath string
}

// BrevoNotifier sends the unlock code as a transactional email.
type BrevoNotifier struct {
	client      *brevo.APIClient
	fromEmail   string
	fromName    string
	productName string
}

func NewBrevoNotifier(cfg BrevoConfig) *BrevoNotifier {
	bc := brevo.NewConfiguration()
	bc.AddDefaultHeader("api-key", cfg.APIKey)
	if cfg.BasePath != "" {
		bc.BasePath = cfg.BasePath
	}

	return &BrevoNotifier{
		client:      brevo.NewAPIClient(bc),
		fromEmail:   cfg.FromEmail,
		fromName:    cfg.FromName,
		productName: cfg.ProductName,
	}
}

func (n *BrevoNotifier) Notify(ctx context.Context, msg Message) error {
	data := n.templateData(msg)

	var html, text bytes.Buffer
	if err := htmlBody.Execute(&html, data); err != nil {
		return fmt.Errorf("render html body: %w", err)
	}
	if err := textBody.Execute(&text, data); err != nil {
		return fmt.Errorf("render text body: %w", err)
	}

	email := brevo.SendSmtpEmail{
		Sender: &brevo.SendSmtpEmailSender{
			Name:  n.fromName,
			Email: n.fromEmail,
		},
		To: []brevo.SendSmtpEmailTo{
			{Email: msg.Email, Name: msg.Name},
		},
		Subject:     fmt.Sprintf("Your %s unlock code", data.ProductName),
		HtmlContent: html.String(),
		TextContent: text.String(),
	}

	_, resp, err := n.client.TransactionalEmailsApi.SendTransacEmail(ctx, email)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return apperrors.External("brevo", err)
	}
	return nil
}

type templateData struct {
	Greeting    string
	ProductName string
	Code        string
}

func (n *BrevoNotifier) templateData(msg Message) templateData {
	greeting := "Hi there"
	if msg.Name != "" {
		greeting = "Hi " + msg.Name
	}
	name := n.productName
	if name == "" {
		name = msg.Product
	}
	return templateData{Greeting: greeting, ProductName: name, Code: msg.Code}
}

var htmlBody = template.Must(template.New("html").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>{{.ProductName}}</title></head>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background-color: #f8f9fa; padding: 30px; border-radius: 10px; text-align: center;">
		<h1 style="color: #333;">Thanks for your purchase!</h1>
		<p style="color: #666; font-size: 16px;">{{.Greeting}}, your {{.ProductName}} unlock code is:</p>
		<div style="background-color: #007bff; color: white; padding: 20px; border-radius: 10px; font-size: 32px; font-weight: bold; letter-spacing: 5px; margin: 20px 0;">{{.Code}}</div>
		<p style="color: #999; font-size: 14px;">Enter it in the app to unlock premium features. The code works once.</p>
	</div>
</body>
</html>
`))

var textBody = texttemplate.Must(texttemplate.New("text").Parse(`{{.Greeting}},

Thanks for your purchase! Your {{.ProductName}} unlock code is:

    {{.Code}}

Enter it in the app to unlock premium features. The code works once.
`))
