package sender

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/render-ledger/internal/lib/smtp"
	"github.com/magabrotheeeer/render-ledger/internal/models"
)

type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Connect(ctx context.Context) (smtp.Client, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(smtp.Client), args.Error(1)
}

func (m *MockTransport) GetSMTPUser() string {
	args := m.Called()
	return args.String(0)
}

type MockSMTPClient struct {
	mock.Mock
}

func (m *MockSMTPClient) Mail(from string) error {
	args := m.Called(from)
	return args.Error(0)
}

func (m *MockSMTPClient) Rcpt(to string) error {
	args := m.Called(to)
	return args.Error(0)
}

func (m *MockSMTPClient) Data() (io.WriteCloser, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.WriteCloser), args.Error(1)
}

func (m *MockSMTPClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockSMTPClient) Quit() error {
	args := m.Called()
	return args.Error(0)
}

// bufferWriter собирает тело письма.
type bufferWriter struct {
	strings.Builder
	closed bool
}

func (w *bufferWriter) Close() error {
	w.closed = true
	return nil
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestSenderService_Handle(t *testing.T) {
	tests := []struct {
		name          string
		body          []byte
		setupMocks    func(*MockTransport, *bufferWriter)
		expectedError bool
		errorMessage  string
		wantInBody    []string
	}{
		{
			name: "success - verification email",
			body: []byte(`{"kind":"verification","email":"ana@x.com","name":"Ana","code":"123456"}`),
			setupMocks: func(tr *MockTransport, w *bufferWriter) {
				client := new(MockSMTPClient)
				tr.On("GetSMTPUser").Return("robot@example.com")
				tr.On("Connect", mock.Anything).Return(client, nil).Once()
				client.On("Mail", "robot@example.com").Return(nil).Once()
				client.On("Rcpt", "ana@x.com").Return(nil).Once()
				client.On("Data").Return(w, nil).Once()
				client.On("Quit").Return(nil).Once()
				client.On("Close").Return(nil).Once()
			},
			wantInBody: []string{"To: ana@x.com", "Subject: Confirma tu correo electronico", "Hola, Ana!", "123456"},
		},
		{
			name: "success - trial ending email",
			body: []byte(`{"kind":"trial_ending","email":"ana@x.com","trial_ends_at":"2024-05-17T12:00:00Z"}`),
			setupMocks: func(tr *MockTransport, w *bufferWriter) {
				client := new(MockSMTPClient)
				tr.On("GetSMTPUser").Return("robot@example.com")
				tr.On("Connect", mock.Anything).Return(client, nil).Once()
				client.On("Mail", "robot@example.com").Return(nil).Once()
				client.On("Rcpt", "ana@x.com").Return(nil).Once()
				client.On("Data").Return(w, nil).Once()
				client.On("Quit").Return(nil).Once()
				client.On("Close").Return(nil).Once()
			},
			wantInBody: []string{"Hola, ana@x.com!", "17/05/2024 12:00 UTC"},
		},
		{
			name:       "invalid JSON is dropped",
			body:       []byte(`invalid json`),
			setupMocks: func(_ *MockTransport, _ *bufferWriter) {},
		},
		{
			name:       "unknown kind is dropped",
			body:       []byte(`{"kind":"newsletter","email":"ana@x.com"}`),
			setupMocks: func(_ *MockTransport, _ *bufferWriter) {},
		},
		{
			name: "SMTP connection error",
			body: []byte(`{"kind":"reset","email":"ana@x.com","code":"654321"}`),
			setupMocks: func(tr *MockTransport, _ *bufferWriter) {
				tr.On("GetSMTPUser").Return("robot@example.com")
				tr.On("Connect", mock.Anything).Return(nil, errors.New("connection error")).Once()
			},
			expectedError: true,
			errorMessage:  "connection error",
		},
		{
			name: "recipient rejected",
			body: []byte(`{"kind":"reset","email":"ana@x.com","code":"654321"}`),
			setupMocks: func(tr *MockTransport, _ *bufferWriter) {
				client := new(MockSMTPClient)
				tr.On("GetSMTPUser").Return("robot@example.com")
				tr.On("Connect", mock.Anything).Return(client, nil).Once()
				client.On("Mail", "robot@example.com").Return(nil).Once()
				client.On("Rcpt", "ana@x.com").Return(errors.New("550 no such user")).Once()
				client.On("Close").Return(nil).Once()
			},
			expectedError: true,
			errorMessage:  "rcpt to",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := new(MockTransport)
			writer := &bufferWriter{}
			service := NewSenderService(transport, newNoopLogger(), time.Second)

			tt.setupMocks(transport, writer)

			err := service.Handle(tt.body)

			if tt.expectedError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMessage)
			} else {
				require.NoError(t, err)
			}
			for _, want := range tt.wantInBody {
				assert.Contains(t, writer.String(), want)
			}
			if len(tt.wantInBody) > 0 {
				assert.True(t, writer.closed)
			}

			transport.AssertExpectations(t)
		})
	}
}

func TestCompose(t *testing.T) {
	expires := time.Date(2024, 5, 10, 12, 15, 0, 0, time.UTC)

	subject, body, err := Compose(models.Notification{
		Kind:      models.NotificationReset,
		Email:     "ana@x.com",
		Name:      "  ",
		Code:      "654321",
		ExpiresAt: &expires,
	})
	require.NoError(t, err)
	assert.Equal(t, "Restablece tu contrasena", subject)
	assert.Contains(t, body, "Hola, ana@x.com!")
	assert.Contains(t, body, "654321")
	assert.Contains(t, body, "10/05/2024 12:15 UTC")

	_, _, err = Compose(models.Notification{Kind: "newsletter"})
	require.ErrorIs(t, err, ErrUnknownKind)
}
