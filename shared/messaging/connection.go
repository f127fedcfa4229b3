package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

var (
	ErrNotConnected         = errors.New("rabbitmq: not connected")
	ErrConnectionStopped    = errors.New("rabbitmq: connection manager stopped")
	errStoppedDuringConnect = errors.New("rabbitmq: connection manager stopped during connect")
)

// ConnState - состояние соединения с брокером.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// StatusRecorder получает каждое изменение состояния соединения (gauge rabbitmq_connection_status).
type StatusRecorder interface {
	SetConnectionStatus(connected bool)
}

// ConnectionConfig - параметры менеджера соединения.
type ConnectionConfig struct {
	URI       string
	Queues    []string // Объявляются durable при каждом подключении
	Prefetch  int
	Reconnect bool
	// Границы экспоненциальной задержки между попытками переподключения.
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// ConnectionManager владеет одним соединением и одним каналом к RabbitMQ.
// Канал разделяется всеми обработчиками сервиса; публикации сериализуются через pubMu.
type ConnectionManager struct {
	cfg    ConnectionConfig
	dial   Dialer
	logger *zap.Logger
	status StatusRecorder

	mu      sync.RWMutex
	state   ConnState
	conn    Connection
	ch      Channel
	ready   chan struct{} // Закрывается при переходе в StateConnected
	stopped bool

	pubMu sync.Mutex

	ctx      context.Context
	cancel   context.CancelFunc
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type closeWatch struct {
	conn chan *amqp.Error
	ch   chan *amqp.Error
}

// NewConnectionManager создает менеджер. dial == nil означает DialAMQP, status может быть nil.
func NewConnectionManager(cfg ConnectionConfig, dial Dialer, logger *zap.Logger, status StatusRecorder) *ConnectionManager {
	if dial == nil {
		dial = DialAMQP
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ConnectionManager{
		cfg:    cfg,
		dial:   dial,
		logger: logger.Named("rabbitmq"),
		status: status,
		state:  StateDisconnected,
		ready:  make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		stopCh: make(chan struct{}),
	}
}

// Start подключается один раз. Ошибка на старте не повторяется и должна завершать процесс:
// сервис без брокера не может выполнять свою работу.
func (m *ConnectionManager) Start() error {
	m.setState(StateConnecting)
	watch, err := m.connect()
	if err != nil {
		m.setState(StateDisconnected)
		return fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	m.wg.Add(1)
	go m.supervise(watch)
	return nil
}

// Stop закрывает канал и соединение и дожидается остановки супервизора. Повторный вызов безопасен.
func (m *ConnectionManager) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.stopped = true
		m.mu.Unlock()
		close(m.stopCh)
		m.cancel()
		m.teardown()
		m.wg.Wait()
		m.teardown()
		m.logger.Info("Connection manager stopped")
	})
}

// State возвращает текущее состояние соединения.
func (m *ConnectionManager) State() ConnState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Channel возвращает общий канал или ErrNotConnected.
func (m *ConnectionManager) Channel() (Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateConnected || m.ch == nil {
		return nil, ErrNotConnected
	}
	return m.ch, nil
}

// WaitConnected блокируется, пока канал не станет доступен, не истечет ctx или менеджер не остановится.
func (m *ConnectionManager) WaitConnected(ctx context.Context) (Channel, error) {
	for {
		m.mu.RLock()
		state, ch, ready := m.state, m.ch, m.ready
		m.mu.RUnlock()
		if state == StateConnected && ch != nil {
			return ch, nil
		}
		select {
		case <-ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-m.stopCh:
			return nil, ErrConnectionStopped
		}
	}
}

// Publish публикует сообщение в очередь routingKey через default exchange.
func (m *ConnectionManager) Publish(ctx context.Context, routingKey string, msg amqp.Publishing) error {
	ch, err := m.Channel()
	if err != nil {
		return err
	}
	m.pubMu.Lock()
	defer m.pubMu.Unlock()
	if err := ch.PublishWithContext(ctx, "", routingKey, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish to '%s': %w", routingKey, err)
	}
	return nil
}

func (m *ConnectionManager) connect() (closeWatch, error) {
	conn, err := m.dial(m.cfg.URI)
	if err != nil {
		return closeWatch{}, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return closeWatch{}, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.Qos(m.cfg.Prefetch, 0, false); err != nil {
		_ = conn.Close()
		return closeWatch{}, fmt.Errorf("set qos: %w", err)
	}
	for _, queue := range m.cfg.Queues {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			_ = conn.Close()
			return closeWatch{}, fmt.Errorf("declare queue '%s': %w", queue, err)
		}
	}

	watch := closeWatch{
		conn: conn.NotifyClose(make(chan *amqp.Error, 1)),
		ch:   ch.NotifyClose(make(chan *amqp.Error, 1)),
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		_ = ch.Close()
		_ = conn.Close()
		return closeWatch{}, backoff.Permanent(errStoppedDuringConnect)
	}
	m.conn, m.ch = conn, ch
	m.mu.Unlock()

	m.setState(StateConnected)
	m.logger.Info("Connected to RabbitMQ", zap.Strings("queues", m.cfg.Queues), zap.Int("prefetch", m.cfg.Prefetch))
	return watch, nil
}

func (m *ConnectionManager) supervise(watch closeWatch) {
	defer m.wg.Done()
	for {
		var closeErr *amqp.Error
		select {
		case <-m.stopCh:
			return
		case closeErr = <-watch.conn:
		case closeErr = <-watch.ch:
		}

		select {
		case <-m.stopCh:
			return
		default:
		}

		m.logger.Error("Соединение с RabbitMQ потеряно", zap.Error(amqpErr(closeErr)))
		m.teardown()

		if !m.cfg.Reconnect {
			m.logger.Warn("Автоматическое переподключение отключено, соединение остается разорванным")
			return
		}

		next, err := m.reconnect()
		if err != nil {
			m.logger.Info("Переподключение прекращено", zap.Error(err))
			return
		}
		watch = next
	}
}

func (m *ConnectionManager) reconnect() (closeWatch, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.cfg.InitialInterval
	b.MaxInterval = m.cfg.MaxInterval
	b.MaxElapsedTime = 0

	var watch closeWatch
	op := func() error {
		m.setState(StateConnecting)
		w, err := m.connect()
		if err != nil {
			m.setState(StateDisconnected)
			return err
		}
		watch = w
		return nil
	}
	notify := func(err error, delay time.Duration) {
		m.logger.Warn("Не удалось переподключиться к RabbitMQ, повтор", zap.Error(err), zap.Duration("delay", delay))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, m.ctx), notify); err != nil {
		return closeWatch{}, err
	}
	return watch, nil
}

func (m *ConnectionManager) teardown() {
	m.mu.Lock()
	ch, conn := m.ch, m.conn
	m.ch, m.conn = nil, nil
	m.mu.Unlock()

	if ch != nil {
		_ = ch.Close()
	}
	if conn != nil {
		_ = conn.Close()
	}
	m.setState(StateDisconnected)
}

func (m *ConnectionManager) setState(s ConnState) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	switch {
	case s == StateConnected && prev != StateConnected:
		close(m.ready)
	case s != StateConnected && prev == StateConnected:
		m.ready = make(chan struct{})
	}
	m.mu.Unlock()

	if prev != s {
		m.logger.Debug("Connection state changed", zap.Stringer("from", prev), zap.Stringer("to", s))
	}
	if m.status != nil {
		m.status.SetConnectionStatus(s == StateConnected)
	}
}

func amqpErr(err *amqp.Error) error {
	if err == nil {
		return errors.New("connection closed")
	}
	return err
}
