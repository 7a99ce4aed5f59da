package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"marketplace-bidding/internal/config"
)

func TestMessage_Text(t *testing.T) {
	t.Parallel()

	msg := Message{Email: "a@example.com", BidPrice: 1500, Status: "accepted"}
	require.Equal(t, "Your Bid Status: accepted", msg.Subject())
	require.Equal(t, "Your bid of ksh 1500 has been accepted.", msg.Body("ksh"))
}

func TestRelaySender_Send(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		msg        Message
		statusCode int
		wantErr    bool
	}{
		{name: "success", msg: Message{Email: "a@example.com", BidPrice: 200, Status: "rejected"}, statusCode: http.StatusOK},
		{name: "relay_failure", msg: Message{Email: "a@example.com", BidPrice: 200, Status: "accepted"}, statusCode: http.StatusInternalServerError, wantErr: true},
		{name: "empty_email", msg: Message{BidPrice: 200, Status: "accepted"}, statusCode: http.StatusOK, wantErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var got Message
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, http.MethodPost, r.Method)
				require.Equal(t, "application/json", r.Header.Get("Content-Type"))
				require.Equal(t, "Bearer relay-token", r.Header.Get("Authorization"))
				require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				w.WriteHeader(tc.statusCode)
				if tc.statusCode == http.StatusOK {
					_, _ = w.Write([]byte("Email sent"))
				} else {
					_, _ = w.Write([]byte("Error sending email"))
				}
			}))
			defer srv.Close()

			err := NewRelaySender(srv.URL+"/send-email", "relay-token", srv.Client()).Send(context.Background(), tc.msg)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrSendFailed)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.msg, got)
		})
	}
}

func TestRelaySender_Unreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewRelaySender(url, "", nil).Send(context.Background(), Message{Email: "a@example.com", Status: "accepted"})
	require.ErrorIs(t, err, ErrSendFailed)
}

// fakeSMTP records the messages handed to it
type fakeSMTP struct {
	msgs []*mail.Msg
	err  error
	wait bool
}

func (f *fakeSMTP) DialAndSendWithContext(ctx context.Context, msgs ...*mail.Msg) error {
	if f.wait {
		<-ctx.Done()
		return ctx.Err()
	}
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func TestMailer_Send(t *testing.T) {
	t.Parallel()

	client := &fakeSMTP{}
	m, err := NewMailer(config.SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "bot@example.com", Password: "x"}, "", client)
	require.NoError(t, err)

	err = m.Send(context.Background(), Message{Email: "bidder@example.com", BidPrice: 300, Status: "accepted"})
	require.NoError(t, err)
	require.Len(t, client.msgs, 1)

	sent := client.msgs[0]
	to, err := sent.GetRecipients()
	require.NoError(t, err)
	require.Equal(t, []string{"bidder@example.com"}, to)
	require.Equal(t, []string{"Your Bid Status: accepted"}, sent.GetGenHeader(mail.HeaderSubject))

	var raw bytes.Buffer
	_, err = sent.WriteTo(&raw)
	require.NoError(t, err)
	require.Contains(t, raw.String(), "bot@example.com")
	require.Contains(t, raw.String(), "Your bid of ksh 300 has been accepted.")
}

func TestNewMailer_DefaultClient(t *testing.T) {
	t.Parallel()

	m, err := NewMailer(config.SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "bot@example.com", Password: "x"}, "ksh", nil)
	require.NoError(t, err)
	require.NotNil(t, m.client)

	_, err = NewMailer(config.SMTPConfig{}, "ksh", nil)
	require.Error(t, err, "a host is required")
}

func TestMailer_Failures(t *testing.T) {
	t.Parallel()

	cfg := config.SMTPConfig{Host: "smtp.example.com", Port: 25, From: "bot@example.com"}

	t.Run("smtp_error", func(t *testing.T) {
		t.Parallel()
		m, err := NewMailer(cfg, "ksh", &fakeSMTP{err: errors.New("535 auth failed")})
		require.NoError(t, err)
		err = m.Send(context.Background(), Message{Email: "a@example.com", Status: "rejected"})
		require.ErrorIs(t, err, ErrSendFailed)
	})

	t.Run("header_injection", func(t *testing.T) {
		t.Parallel()
		client := &fakeSMTP{}
		m, err := NewMailer(cfg, "ksh", client)
		require.NoError(t, err)
		err = m.Send(context.Background(), Message{Email: "a@example.com\r\nBcc: x@example.com", Status: "rejected"})
		require.ErrorIs(t, err, ErrSendFailed)
		require.Empty(t, client.msgs)
	})

	t.Run("bad_recipient", func(t *testing.T) {
		t.Parallel()
		client := &fakeSMTP{}
		m, err := NewMailer(cfg, "ksh", client)
		require.NoError(t, err)
		err = m.Send(context.Background(), Message{Email: "not an address", Status: "rejected"})
		require.ErrorIs(t, err, ErrSendFailed)
		require.Empty(t, client.msgs)
	})

	t.Run("context_deadline", func(t *testing.T) {
		t.Parallel()
		m, err := NewMailer(cfg, "ksh", &fakeSMTP{wait: true})
		require.NoError(t, err)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err = m.Send(ctx, Message{Email: "a@example.com", Status: "rejected"})
		require.ErrorIs(t, err, ErrSendFailed)
	})
}
