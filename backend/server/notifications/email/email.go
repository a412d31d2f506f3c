package email

import (
	"fmt"
	"html"
	"net/smtp"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	smtpHost   = "smtp.gmail.com"
	smtpServer = smtpHost + ":587"
)

// auth holds the credentials used for every message sent by SendMilestoneEmail.
var auth smtp.Auth

// fromEmail is the "From" address of outgoing messages.
var fromEmail string

// InitEmailService sets the sender credentials and checks that the SMTP
// server is reachable.
func InitEmailService(sender, password string) error {
	fromEmail = sender
	auth = smtp.PlainAuth("", sender, password, smtpHost)

	c, err := smtp.Dial(smtpServer)
	if err != nil {
		return fmt.Errorf("cannot connect to the SMTP server: %w", err)
	}

	if err := c.Close(); err != nil {
		return fmt.Errorf("cannot close the SMTP connection: %w", err)
	}

	return nil
}

// Configured reports whether InitEmailService has set a sender.
func Configured() bool {
	return fromEmail != ""
}

// headerValue drops line breaks so a value cannot start a new header.
func headerValue(s string) string {
	return strings.NewReplacer("\r", "", "\n", " ").Replace(s)
}

// BuildMilestoneMessage renders the headers and HTML body of a streak milestone email.
func BuildMilestoneMessage(from, to, habitName string, streak int) []byte {
	var b strings.Builder

	b.WriteString("From: " + headerValue(from) + "\r\n")
	b.WriteString("To: " + headerValue(to) + "\r\n")
	b.WriteString(fmt.Sprintf("Subject: %d day streak on %s\r\n", streak, headerValue(habitName)))
	b.WriteString("MIME-version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")

	b.WriteString(`<html>
	<body style="font-family: sans-serif; margin: 0; padding: 0;">
		<div style="max-width: 600px; margin: 0 auto; padding: 10px;">
			<h1>Nice work!</h1>
			<p>You have kept <strong>`)
	b.WriteString(html.EscapeString(habitName))
	b.WriteString(fmt.Sprintf(`</strong> going for <strong>%d</strong> scheduled days in a row.</p>
			<p>Keep the streak alive tomorrow.</p>
		</div>
	</body>
</html>
`, streak))

	return []byte(b.String())
}

// SendMilestoneEmail tells to that their streak on habitName reached streak days.
func SendMilestoneEmail(to, habitName string, streak int) error {
	if !Configured() {
		return fmt.Errorf("email service not initialized")
	}

	message := BuildMilestoneMessage(fromEmail, to, habitName, streak)
	if err := smtp.SendMail(smtpServer, auth, fromEmail, []string{to}, message); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	logrus.WithFields(logrus.Fields{"habit": habitName, "streak": streak}).Info("Milestone email sent")
	return nil
}
