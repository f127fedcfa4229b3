package service

import (
	"context"
	"time"

	"chat-server/shared/messaging"
	"chat-server/shared/metrics"
	"chat-server/shared/presence"

	"go.uber.org/zap"
)

// Channel - канал доставки, выбранный для события.
type Channel int

const (
	ChannelNone Channel = iota
	ChannelPush
	ChannelEmail
)

func (c Channel) String() string {
	switch c {
	case ChannelPush:
		return metrics.MethodPush
	case ChannelEmail:
		return metrics.MethodEmail
	default:
		return "none"
	}
}

// Plan - решение о доставке одного события. ChannelNone значит "доставить некуда".
type Plan struct {
	Channel Channel
	Token   string
	Address string
	Subject string
	Body    string
}

// Outcome - итог обработки события, совпадает со значением метки status.
type Outcome string

const (
	OutcomeSentPush      Outcome = metrics.StatusSentPush
	OutcomeFailedPush    Outcome = metrics.StatusFailedPush
	OutcomeSentEmail     Outcome = metrics.StatusSentEmail
	OutcomeFailedEmail   Outcome = metrics.StatusFailedEmail
	OutcomeUndeliverable Outcome = metrics.StatusUndeliverable
)

// Sent сообщает, было ли уведомление доставлено провайдеру.
func (o Outcome) Sent() bool {
	return o == OutcomeSentPush || o == OutcomeSentEmail
}

// EmailSubject - тема письма о новом сообщении.
func EmailSubject(fromName string) string {
	return "New Message from " + fromName
}

// Decide выбирает канал доставки. Push только для пользователя в сети с токеном,
// иначе email при наличии адреса. Отката с push на email нет.
func Decide(event messaging.NotificationEvent, online bool) Plan {
	switch {
	case online && event.UserToken != "":
		return Plan{Channel: ChannelPush, Token: event.UserToken, Body: event.Message}
	case event.UserEmail != "":
		return Plan{
			Channel: ChannelEmail,
			Address: event.UserEmail,
			Subject: EmailSubject(event.FromName),
			Body:    event.Message,
		}
	default:
		return Plan{Channel: ChannelNone}
	}
}

// Classify переводит план и результат вызова провайдера в Outcome.
func Classify(plan Plan, err error) Outcome {
	switch plan.Channel {
	case ChannelPush:
		if err != nil {
			return OutcomeFailedPush
		}
		return OutcomeSentPush
	case ChannelEmail:
		if err != nil {
			return OutcomeFailedEmail
		}
		return OutcomeSentEmail
	default:
		return OutcomeUndeliverable
	}
}

// Dispatcher исполняет план доставки для события MESSAGE_RECEIVED.
type Dispatcher struct {
	presence presence.Reader
	push     PushProvider
	email    EmailProvider
	timeout  time.Duration
	logger   *zap.Logger
}

// NewDispatcher создает диспетчер. timeout ограничивает один вызов провайдера, 0 - без ограничения.
func NewDispatcher(presence presence.Reader, push PushProvider, email EmailProvider, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		presence: presence,
		push:     push,
		email:    email,
		timeout:  timeout,
		logger:   logger.Named("dispatcher"),
	}
}

// Dispatch читает присутствие один раз, выбирает канал и делает не больше одной попытки доставки.
func (d *Dispatcher) Dispatch(ctx context.Context, event messaging.NotificationEvent) Outcome {
	log := d.logger.With(zap.String("user_id", event.UserID))

	online := d.presence.IsOnline(ctx, event.UserID)
	plan := Decide(event, online)
	log.Debug("Канал доставки выбран", zap.Bool("online", online), zap.Stringer("channel", plan.Channel))

	if plan.Channel == ChannelNone {
		log.Info("Уведомление недоставляемо: пользователь не в сети и нет email")
		return OutcomeUndeliverable
	}

	callCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	var err error
	switch plan.Channel {
	case ChannelPush:
		err = d.push.SendPush(callCtx, plan.Token, plan.Body)
	case ChannelEmail:
		err = d.email.SendEmail(callCtx, plan.Address, plan.Subject, plan.Body)
	}

	outcome := Classify(plan, err)
	if err != nil {
		log.Error("Ошибка доставки уведомления", zap.Stringer("channel", plan.Channel), zap.Error(err))
	} else {
		log.Info("Уведомление доставлено", zap.Stringer("channel", plan.Channel))
	}
	return outcome
}
