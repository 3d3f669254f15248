package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/BradenHooton/warden/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMessage(purpose string) OTPMessage {
	return OTPMessage{
		To:        "alice@example.com",
		Name:      "Alice",
		Code:      "482913",
		Purpose:   purpose,
		ExpiresAt: time.Now().Add(time.Minute),
	}
}

func TestRender(t *testing.T) {
	now := time.Date(2026, 5, 10, 8, 30, 0, 0, time.UTC)

	t.Run("password reset", func(t *testing.T) {
		msg := OTPMessage{To: "a@x.com", Name: "Alice", Code: "123456", Purpose: models.OTPPurposePasswordReset, ExpiresAt: now.Add(time.Minute)}
		content, err := render("Warden", msg, now)
		require.NoError(t, err)

		assert.Equal(t, "Warden verification code", content.Subject)
		assert.Contains(t, content.Text, "Hello Alice")
		assert.Contains(t, content.Text, "reset your password: 123456")
		assert.Contains(t, content.Text, "expires in 1m0s")
		assert.Contains(t, content.HTML, `<p class="code">123456</p>`)
	})

	t.Run("password change without a name", func(t *testing.T) {
		msg := OTPMessage{To: "a@x.com", Code: "000042", Purpose: models.OTPPurposePasswordChange, ExpiresAt: now.Add(-time.Second)}
		content, err := render("Warden", msg, now)
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(content.Text, "Hello,"))
		assert.Contains(t, content.Text, "change your password: 000042")
		assert.Contains(t, content.Text, "expires in 0s")
	})

	t.Run("unknown purpose", func(t *testing.T) {
		msg := OTPMessage{To: "a@x.com", Code: "1", Purpose: "login"}
		_, err := render("Warden", msg, now)
		assert.ErrorIs(t, err, ErrUnknownPurpose)
	})
}

func TestLogNotifier(t *testing.T) {
	tests := []struct {
		env        string
		expectCode bool
	}{
		{"development", true},
		{"production", false},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))
			notifier := NewLogNotifier(tt.env, logger)

			err := notifier.SendOTP(context.Background(), testMessage(models.OTPPurposePasswordReset))
			require.NoError(t, err)

			out := buf.String()
			assert.NotContains(t, out, "alice@example.com")
			assert.Equal(t, tt.expectCode, strings.Contains(out, "482913"))
		})
	}
}

type fakeSES struct {
	input *ses.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, params *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESNotifier_SendOTP(t *testing.T) {
	t.Run("sends rendered message", func(t *testing.T) {
		client := &fakeSES{}
		notifier := &SESNotifier{client: client, fromAddress: "no-reply@example.com", appName: "Warden", logger: discardLogger()}

		err := notifier.SendOTP(context.Background(), testMessage(models.OTPPurposePasswordChange))
		require.NoError(t, err)

		require.NotNil(t, client.input)
		assert.Equal(t, "no-reply@example.com", aws.ToString(client.input.Source))
		assert.Equal(t, []string{"alice@example.com"}, client.input.Destination.ToAddresses)
		assert.Contains(t, aws.ToString(client.input.Message.Body.Text.Data), "482913")
	})

	t.Run("provider failure is returned", func(t *testing.T) {
		client := &fakeSES{err: errors.New("throttled")}
		notifier := &SESNotifier{client: client, fromAddress: "no-reply@example.com", appName: "Warden", logger: discardLogger()}

		err := notifier.SendOTP(context.Background(), testMessage(models.OTPPurposePasswordChange))
		assert.Error(t, err)
	})
}

type fakeDialer struct {
	sent  []*gomail.Message
	err   error
	block chan struct{}
}

func (f *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	if f.block != nil {
		<-f.block
	}
	f.sent = append(f.sent, m...)
	return f.err
}

func TestSMTPNotifier_SendOTP(t *testing.T) {
	t.Run("sends multipart message", func(t *testing.T) {
		d := &fakeDialer{}
		notifier := NewSMTPNotifier("localhost", 25, "mailer@example.com", "pw", "", "Warden", discardLogger())
		notifier.dialer = d

		require.NoError(t, notifier.SendOTP(context.Background(), testMessage(models.OTPPurposePasswordReset)))
		require.Len(t, d.sent, 1)
		assert.Equal(t, []string{"mailer@example.com"}, d.sent[0].GetHeader("From"))
		assert.Equal(t, []string{"alice@example.com"}, d.sent[0].GetHeader("To"))

		var body bytes.Buffer
		_, err := d.sent[0].WriteTo(&body)
		require.NoError(t, err)
		assert.Contains(t, body.String(), "482913")
	})

	t.Run("dial failure is returned", func(t *testing.T) {
		notifier := NewSMTPNotifier("localhost", 25, "u", "pw", "from@example.com", "Warden", discardLogger())
		notifier.dialer = &fakeDialer{err: errors.New("connection refused")}

		assert.Error(t, notifier.SendOTP(context.Background(), testMessage(models.OTPPurposePasswordReset)))
	})

	t.Run("gives up when context ends", func(t *testing.T) {
		block := make(chan struct{})
		defer close(block)
		notifier := NewSMTPNotifier("localhost", 25, "u", "pw", "from@example.com", "Warden", discardLogger())
		notifier.dialer = &fakeDialer{block: block}

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := notifier.SendOTP(ctx, testMessage(models.OTPPurposePasswordReset))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

type fakePublisher struct {
	key string
	msg amqp.Publishing
	err error
}

func (f *fakePublisher) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	f.key = key
	f.msg = msg
	return f.err
}

func TestQueueNotifier_SendOTP(t *testing.T) {
	t.Run("publishes persistent job", func(t *testing.T) {
		pub := &fakePublisher{}
		notifier := &QueueNotifier{publisher: pub, queueName: "otp_emails", appName: "Warden", logger: discardLogger()}

		require.NoError(t, notifier.SendOTP(context.Background(), testMessage(models.OTPPurposePasswordReset)))

		assert.Equal(t, "otp_emails", pub.key)
		assert.Equal(t, amqp.Persistent, pub.msg.DeliveryMode)
		assert.Equal(t, "application/json", pub.msg.ContentType)
		assert.NotEmpty(t, pub.msg.Expiration)

		var job EmailJob
		require.NoError(t, json.Unmarshal(pub.msg.Body, &job))
		assert.Equal(t, "alice@example.com", job.To)
		assert.Equal(t, models.OTPPurposePasswordReset, job.Purpose)
		assert.Contains(t, job.Text, "482913")
	})

	t.Run("broker failure is returned", func(t *testing.T) {
		pub := &fakePublisher{err: amqp.ErrClosed}
		notifier := &QueueNotifier{publisher: pub, queueName: "otp_emails", appName: "Warden", logger: discardLogger()}

		assert.ErrorIs(t, notifier.SendOTP(context.Background(), testMessage(models.OTPPurposePasswordReset)), amqp.ErrClosed)
	})
}
