package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextraction/insight-engine/internal/pipeline"
)

var _ pipeline.Notifier = (*Mailer)(nil)

func TestNewMailer_AppliesDefaults(t *testing.T) {
	m := NewMailer(Config{Password: "secret"})

	assert.Equal(t, DefaultHost, m.config.Host)
	assert.Equal(t, DefaultPort, m.config.Port)
	assert.Equal(t, DefaultSender, m.config.Sender)
	assert.Equal(t, DefaultSenderName, m.config.SenderName)
	assert.Equal(t, DefaultDashboardURL, m.config.DashboardURL)
}

func TestNewMailer_KeepsExplicitConfig(t *testing.T) {
	m := NewMailer(Config{
		Host:         "mail.example.com",
		Port:         2465,
		Sender:       "noreply@example.com",
		SenderName:   "Example",
		DashboardURL: "https://example.com/app",
	})

	assert.Equal(t, "mail.example.com", m.config.Host)
	assert.Equal(t, 2465, m.config.Port)
	assert.Equal(t, "noreply@example.com", m.config.Sender)
}

func TestBuildMessage(t *testing.T) {
	m := NewMailer(Config{Password: "secret"})

	message, err := m.buildMessage("user@example.com", "Smart Bottle")
	require.NoError(t, err)

	assert.Contains(t, message, "To: user@example.com")
	assert.Contains(t, message, "From: Nextraction Team <contact@nextraction.io>")
	assert.Contains(t, message, `Subject: Your Nextraction Project "Smart Bottle" Is Ready!`)
	assert.Contains(t, message, "Content-Type: multipart/alternative")

	// Both alternatives carry the project name and the dashboard link
	assert.Contains(t, message, `Your project "Smart Bottle" has been successfully analyzed`)
	assert.Contains(t, message, "<strong>&ldquo;Smart Bottle&rdquo;</strong>")
	assert.Contains(t, message, "https://nextraction.io/dashboard")
	assert.Contains(t, message, "View Your Dashboard")
}

func TestSendProjectReady_RequiresPassword(t *testing.T) {
	m := NewMailer(Config{})

	err := m.SendProjectReady(context.Background(), "user@example.com", "Smart Bottle")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password")
}
