package email

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/lifeblood-api/internal/config"
	"github.com/jwalitptl/lifeblood-api/pkg/logger"
)

type fakeDialer struct {
	sent []*gomail.Message
	err  error
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, m...)
	return nil
}

func TestSendNotification(t *testing.T) {
	d := &fakeDialer{}
	svc := &smtpService{from: "no-reply@lifeblood.local", dialer: d, logger: logger.Nop()}

	require.NoError(t, svc.SendNotification(context.Background(), "donor@example.com", "Request accepted", "City Hospital accepted your request"))
	require.Len(t, d.sent, 1)
	assert.Equal(t, []string{"donor@example.com"}, d.sent[0].GetHeader("To"))
	assert.Equal(t, []string{"Request accepted"}, d.sent[0].GetHeader("Subject"))

	d.err = errors.New("smtp down")
	assert.Error(t, svc.SendNotification(context.Background(), "donor@example.com", "s", "b"))
}

func TestDisabledServiceIsNoop(t *testing.T) {
	svc := NewService(config.EmailConfig{Enabled: false}, logger.Nop())
	assert.NoError(t, svc.SendNotification(context.Background(), "x@example.com", "s", "b"))
}
