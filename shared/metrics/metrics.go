// Package metrics - счетчики Prometheus асинхронного ядра чата.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Статусы для notifications_processed_total.
const (
	StatusReceived      = "received"
	StatusIgnored       = "ignored"
	StatusSentPush      = "sent_push"
	StatusFailedPush    = "failed_push"
	StatusSentEmail     = "sent_email"
	StatusFailedEmail   = "failed_email"
	StatusUndeliverable = "undeliverable"
)

// Статусы для счетчиков запросов, ответов и обработанных сообщений.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Каналы доставки для notifications_sent_total.
const (
	MethodPush  = "push"
	MethodEmail = "email"
)

// Metrics хранит все метрики сервиса. Все метрики несут константную метку service.
type Metrics struct {
	notificationsProcessed *prometheus.CounterVec
	notificationsSent      *prometheus.CounterVec
	messagesProcessed      *prometheus.CounterVec
	connectionStatus       prometheus.Gauge
	userDetailsRequests    *prometheus.CounterVec
	userDetailsResponses   *prometheus.CounterVec
}

// New регистрирует метрики в reg.
func New(reg prometheus.Registerer, service string) *Metrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"service": service}

	return &Metrics{
		notificationsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "notifications_processed_total",
				Help:        "Total number of notification events by type and processing status.",
				ConstLabels: labels,
			},
			[]string{"type", "status"},
		),
		notificationsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "notifications_sent_total",
				Help:        "Total number of notifications delivered by method.",
				ConstLabels: labels,
			},
			[]string{"method"},
		),
		messagesProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "rabbitmq_messages_processed_total",
				Help:        "Total number of consumed RabbitMQ messages by queue and status.",
				ConstLabels: labels,
			},
			[]string{"queue", "status"},
		),
		connectionStatus: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "rabbitmq_connection_status",
			Help:        "RabbitMQ connection status (1 = connected, 0 = disconnected).",
			ConstLabels: labels,
		}),
		userDetailsRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "user_details_requests_total",
				Help:        "Total number of user details requests by status.",
				ConstLabels: labels,
			},
			[]string{"status"},
		),
		userDetailsResponses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "user_details_responses_total",
				Help:        "Total number of user details responses published by status.",
				ConstLabels: labels,
			},
			[]string{"status"},
		),
	}
}

func (m *Metrics) NotificationProcessed(notificationType, status string) {
	m.notificationsProcessed.WithLabelValues(notificationType, status).Inc()
}

func (m *Metrics) NotificationSent(method string) {
	m.notificationsSent.WithLabelValues(method).Inc()
}

func (m *Metrics) MessageProcessed(queue, status string) {
	m.messagesProcessed.WithLabelValues(queue, status).Inc()
}

func (m *Metrics) UserDetailsRequest(status string) {
	m.userDetailsRequests.WithLabelValues(status).Inc()
}

func (m *Metrics) UserDetailsResponse(status string) {
	m.userDetailsResponses.WithLabelValues(status).Inc()
}

// SetConnectionStatus реализует messaging.StatusRecorder.
func (m *Metrics) SetConnectionStatus(connected bool) {
	if connected {
		m.connectionStatus.Set(1)
		return
	}
	m.connectionStatus.Set(0)
}

// StatusOf возвращает success для nil и failed для любой ошибки.
func StatusOf(err error) string {
	if err != nil {
		return StatusFailed
	}
	return StatusSuccess
}
