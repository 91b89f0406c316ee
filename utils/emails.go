package utils

import (
	"bytes"
	"context"
	"crypto/tls"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/mailgun/mailgun-go/v3"
	"gopkg.in/gomail.v2"
)

//go:embed email_template/*.html
var emailTemplates embed.FS

// EmailData represents the data format for emails
type EmailData struct {
	Title       string
	ContentData interface{}
	EmailTo     string
	Template    string
}

// Mailer sends rendered emails
type Mailer interface {
	SendEmail(ctx context.Context, data EmailData) error
}

// RenderEmail executes an email template against data.ContentData
func RenderEmail(data EmailData) (string, error) {
	tmpl, err := template.ParseFS(emailTemplates, "email_template/"+data.Template)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data.ContentData); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// MailgunMailer sends through the Mailgun API
type MailgunMailer struct {
	mg   mailgun.Mailgun
	from string
}

// NewMailgunMailer ...
func NewMailgunMailer(domain, privateKey, from string) *MailgunMailer {
	return &MailgunMailer{mg: mailgun.NewMailgun(domain, privateKey), from: from}
}

// SendEmail ...
func (m *MailgunMailer) SendEmail(ctx context.Context, data EmailData) error {
	body, err := RenderEmail(data)
	if err != nil {
		return err
	}

	message := m.mg.NewMessage(m.from, data.Title, "Sent from GigPay", data.EmailTo)
	message.SetHtml(body)

	ctx, cancel := context.WithTimeout(ctx, time.Second*30)
	defer cancel()

	_, _, err = m.mg.Send(ctx, message)
	return err
}

// SMTPMailer sends through an SMTP relay with gomail
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPMailer ...
func NewSMTPMailer(host string, port int, sender, password, from string) *SMTPMailer {
	d := gomail.NewDialer(host, port, sender, password)
	d.TLSConfig = &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
	return &SMTPMailer{dialer: d, from: from}
}

// SendEmail ...
func (m *SMTPMailer) SendEmail(_ context.Context, data EmailData) error {
	body, err := RenderEmail(data)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", data.EmailTo)
	msg.SetHeader("Subject", data.Title)
	msg.SetBody("text/html", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// NopMailer drops every email
type NopMailer struct{}

// SendEmail ...
func (NopMailer) SendEmail(context.Context, EmailData) error { return nil }
