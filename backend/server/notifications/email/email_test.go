package email

import (
	"os"
	"strings"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMilestoneMessage(t *testing.T) {
	msg := string(BuildMilestoneMessage("bot@example.com", "ada@example.com", "Read <b>", 30))

	headers, body, found := strings.Cut(msg, "\r\n\r\n")
	require.True(t, found)

	assert.Contains(t, headers, "From: bot@example.com\r\n")
	assert.Contains(t, headers, "To: ada@example.com\r\n")
	assert.Contains(t, headers, "Subject: 30 day streak on Read <b>")
	assert.Contains(t, headers, "Content-Type: text/html")

	assert.Contains(t, body, "Read &lt;b&gt;")
	assert.Contains(t, body, "<strong>30</strong>")
}

func TestBuildMilestoneMessageKeepsHeadersIntact(t *testing.T) {
	msg := string(BuildMilestoneMessage("bot@example.com", "ada@example.com\r\nBcc: eve@example.com", "Jog\r\nX-Injected: yes", 7))

	headers, _, found := strings.Cut(msg, "\r\n\r\n")
	require.True(t, found)

	lines := strings.Split(headers, "\r\n")
	assert.Len(t, lines, 5)
	for _, line := range lines {
		assert.NotContains(t, line, "\n")
		assert.False(t, strings.HasPrefix(line, "X-Injected"))
		assert.False(t, strings.HasPrefix(line, "Bcc"))
	}
	assert.Contains(t, headers, "Subject: 7 day streak on Jog X-Injected: yes\r\n")
}

func TestSendWithoutInit(t *testing.T) {
	if Configured() {
		t.Skip("email service already initialized")
	}
	assert.Error(t, SendMilestoneEmail("ada@example.com", "Read", 7))
}

func TestSendMilestoneEmail(t *testing.T) {
	_ = godotenv.Load("../../../.env")

	smtpEmail := os.Getenv("SMTP_EMAIL")
	smtpPassword := os.Getenv("SMTP_PASSWORD")
	to := os.Getenv("TEST_EMAIL_TO")
	if smtpEmail == "" || smtpPassword == "" || to == "" {
		t.Skip("SMTP credentials not set")
	}

	require.NoError(t, InitEmailService(smtpEmail, smtpPassword))
	assert.NoError(t, SendMilestoneEmail(to, "Morning Jog", 7))
}
