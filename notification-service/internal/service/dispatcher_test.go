package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"chat-server/notification-service/internal/service"
	"chat-server/notification-service/internal/service/mocks"
	"chat-server/shared/messaging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

func messageReceived(token, email string) messaging.NotificationEvent {
	return messaging.NotificationEvent{
		Type:      messaging.NotificationTypeMessageReceived,
		UserID:    "u1",
		Message:   "hi",
		UserToken: token,
		UserEmail: email,
		FromName:  "Bob",
	}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name   string
		event  messaging.NotificationEvent
		online bool
		want   service.Plan
	}{
		{
			name:   "Online with token",
			event:  messageReceived("tok1", "u1@x.com"),
			online: true,
			want:   service.Plan{Channel: service.ChannelPush, Token: "tok1", Body: "hi"},
		},
		{
			name:   "Offline with token and email",
			event:  messageReceived("tok1", "u1@x.com"),
			online: false,
			want: service.Plan{
				Channel: service.ChannelEmail, Address: "u1@x.com",
				Subject: "New Message from Bob", Body: "hi",
			},
		},
		{
			name:   "Online without token",
			event:  messageReceived("", "u1@x.com"),
			online: true,
			want: service.Plan{
				Channel: service.ChannelEmail, Address: "u1@x.com",
				Subject: "New Message from Bob", Body: "hi",
			},
		},
		{
			name:   "Offline token only",
			event:  messageReceived("tok1", ""),
			online: false,
			want:   service.Plan{Channel: service.ChannelNone},
		},
		{
			name:   "Nothing",
			event:  messageReceived("", ""),
			online: true,
			want:   service.Plan{Channel: service.ChannelNone},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, service.Decide(tt.event, tt.online))
		})
	}
}

func TestClassify(t *testing.T) {
	boom := errors.New("boom")
	push := service.Plan{Channel: service.ChannelPush}
	email := service.Plan{Channel: service.ChannelEmail}
	none := service.Plan{Channel: service.ChannelNone}

	assert.Equal(t, service.OutcomeSentPush, service.Classify(push, nil))
	assert.Equal(t, service.OutcomeFailedPush, service.Classify(push, boom))
	assert.Equal(t, service.OutcomeSentEmail, service.Classify(email, nil))
	assert.Equal(t, service.OutcomeFailedEmail, service.Classify(email, boom))
	assert.Equal(t, service.OutcomeUndeliverable, service.Classify(none, nil))

	assert.True(t, service.OutcomeSentPush.Sent())
	assert.True(t, service.OutcomeSentEmail.Sent())
	assert.False(t, service.OutcomeFailedPush.Sent())
	assert.False(t, service.OutcomeUndeliverable.Sent())
}

type dispatcherFixture struct {
	presence *mocks.PresenceReader
	push     *mocks.PushProvider
	email    *mocks.EmailProvider
}

func newDispatcher(timeout time.Duration) (*service.Dispatcher, *dispatcherFixture) {
	f := &dispatcherFixture{
		presence: new(mocks.PresenceReader),
		push:     new(mocks.PushProvider),
		email:    new(mocks.EmailProvider),
	}
	return service.NewDispatcher(f.presence, f.push, f.email, timeout, zap.NewNop()), f
}

func (f *dispatcherFixture) assertExpectations(t *testing.T) {
	f.presence.AssertExpectations(t)
	f.push.AssertExpectations(t)
	f.email.AssertExpectations(t)
}

func TestDispatcher_OnlineWithToken_Push(t *testing.T) {
	d, f := newDispatcher(time.Second)
	f.presence.On("IsOnline", mock.Anything, "u1").Return(true).Once()
	f.push.On("SendPush", mock.Anything, "tok1", "hi").Return(nil).Once()

	outcome := d.Dispatch(context.Background(), messageReceived("tok1", "u1@x.com"))

	assert.Equal(t, service.OutcomeSentPush, outcome)
	f.email.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestDispatcher_PushFailure_NoEmailFallback(t *testing.T) {
	d, f := newDispatcher(time.Second)
	f.presence.On("IsOnline", mock.Anything, "u1").Return(true).Once()
	f.push.On("SendPush", mock.Anything, "tok1", "hi").Return(service.ErrInvalidDeviceToken).Once()

	outcome := d.Dispatch(context.Background(), messageReceived("tok1", "u1@x.com"))

	assert.Equal(t, service.OutcomeFailedPush, outcome)
	f.email.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestDispatcher_Offline_Email(t *testing.T) {
	d, f := newDispatcher(time.Second)
	f.presence.On("IsOnline", mock.Anything, "u1").Return(false).Once()
	f.email.On("SendEmail", mock.Anything, "u1@x.com", "New Message from Bob", "hi").Return(nil).Once()

	outcome := d.Dispatch(context.Background(), messageReceived("tok1", "u1@x.com"))

	assert.Equal(t, service.OutcomeSentEmail, outcome)
	f.push.AssertNotCalled(t, "SendPush", mock.Anything, mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestDispatcher_EmailFailure(t *testing.T) {
	d, f := newDispatcher(time.Second)
	f.presence.On("IsOnline", mock.Anything, "u1").Return(false).Once()
	f.email.On("SendEmail", mock.Anything, "u1@x.com", "New Message from Bob", "hi").
		Return(errors.New("smtp down")).Once()

	outcome := d.Dispatch(context.Background(), messageReceived("", "u1@x.com"))

	assert.Equal(t, service.OutcomeFailedEmail, outcome)
	f.assertExpectations(t)
}

func TestDispatcher_Undeliverable(t *testing.T) {
	d, f := newDispatcher(time.Second)
	f.presence.On("IsOnline", mock.Anything, "u1").Return(false).Once()

	outcome := d.Dispatch(context.Background(), messageReceived("", ""))

	assert.Equal(t, service.OutcomeUndeliverable, outcome)
	f.push.AssertNotCalled(t, "SendPush", mock.Anything, mock.Anything, mock.Anything)
	f.email.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestDispatcher_ProviderCallHasDeadline(t *testing.T) {
	d, f := newDispatcher(50 * time.Millisecond)
	f.presence.On("IsOnline", mock.Anything, "u1").Return(true).Once()
	f.push.On("SendPush", mock.Anything, "tok1", "hi").
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			_, ok := ctx.Deadline()
			assert.True(t, ok)
			<-ctx.Done()
		}).
		Return(context.DeadlineExceeded).Once()

	outcome := d.Dispatch(context.Background(), messageReceived("tok1", ""))

	assert.Equal(t, service.OutcomeFailedPush, outcome)
	f.assertExpectations(t)
}

func TestDispatcher_ZeroTimeoutIsUnbounded(t *testing.T) {
	d, f := newDispatcher(0)
	f.presence.On("IsOnline", mock.Anything, "u1").Return(false).Once()
	f.email.On("SendEmail", mock.Anything, "u1@x.com", mock.Anything, "hi").
		Run(func(args mock.Arguments) {
			_, ok := args.Get(0).(context.Context).Deadline()
			assert.False(t, ok)
		}).
		Return(nil).Once()

	assert.Equal(t, service.OutcomeSentEmail, d.Dispatch(context.Background(), messageReceived("", "u1@x.com")))
	f.assertExpectations(t)
}
