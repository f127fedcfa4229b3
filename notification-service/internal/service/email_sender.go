package service

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"chat-server/notification-service/internal/config"

	"go.uber.org/zap"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender отправляет письма через SMTP relay.
type SMTPSender struct {
	addr     string
	auth     smtp.Auth
	from     string
	sendMail sendMailFunc
	logger   *zap.Logger
}

var _ EmailProvider = (*SMTPSender)(nil)

// NewSMTPSender возвращает nil, если SMTP_HOST не задан.
func NewSMTPSender(cfg config.SMTPConfig, logger *zap.Logger) *SMTPSender {
	if cfg.Host == "" {
		logger.Warn("SMTP_HOST не указан, SMTP sender не будет создан.")
		return nil
	}
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	logger.Info("SMTP Sender инициализирован", zap.String("host", cfg.Host), zap.Int("port", cfg.Port))
	return &SMTPSender{
		addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		auth:     auth,
		from:     cfg.From,
		sendMail: smtp.SendMail,
		logger:   logger.Named("smtp_sender"),
	}
}

// SendEmail не прерывает уже начатую SMTP сессию: при отмене ctx метод возвращается сразу,
// а отправка завершается в фоне.
func (s *SMTPSender) SendEmail(ctx context.Context, to, subject, body string) error {
	msg := buildMessage(s.from, to, subject, body, time.Now())

	done := make(chan error, 1)
	go func() {
		done <- s.sendMail(s.addr, s.auth, s.from, []string{to}, msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			s.logger.Error("Ошибка отправки письма", zap.Error(err))
			return fmt.Errorf("smtp send to %s: %w", s.addr, err)
		}
		s.logger.Debug("Письмо отправлено")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Отправка письма прервана по таймауту", zap.Error(ctx.Err()))
		return fmt.Errorf("smtp send: %w", ctx.Err())
	}
}

func buildMessage(from, to, subject, body string, date time.Time) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", date.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(body, "\r\n", "\n"), "\n", "\r\n"))
	b.WriteString("\r\n")
	return b.Bytes()
}
