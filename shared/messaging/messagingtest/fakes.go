// Package messagingtest содержит фейки брокера для unit-тестов сервисов.
package messagingtest

import (
	"context"
	"errors"
	"sync"

	"chat-server/shared/messaging"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Acknowledger считает подтверждения доставок. Подставляется в amqp.Delivery.Acknowledger.
type Acknowledger struct {
	mu      sync.Mutex
	acks    map[uint64]int
	nacks   map[uint64]int
	rejects map[uint64]int
	AckErr  error
}

func NewAcknowledger() *Acknowledger {
	return &Acknowledger{
		acks:    make(map[uint64]int),
		nacks:   make(map[uint64]int),
		rejects: make(map[uint64]int),
	}
}

func (a *Acknowledger) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks[tag]++
	return a.AckErr
}

func (a *Acknowledger) Nack(tag uint64, _ bool, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks[tag]++
	return nil
}

func (a *Acknowledger) Reject(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rejects[tag]++
	return nil
}

// Acks - сколько раз подтверждена доставка tag.
func (a *Acknowledger) Acks(tag uint64) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acks[tag]
}

// TotalAcks - общее число Ack по всем доставкам.
func (a *Acknowledger) TotalAcks() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	total := 0
	for _, n := range a.acks {
		total += n
	}
	return total
}

// Negative - число Nack и Reject по всем доставкам.
func (a *Acknowledger) Negative() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	total := 0
	for _, n := range a.nacks {
		total += n
	}
	for _, n := range a.rejects {
		total += n
	}
	return total
}

// Delivery собирает доставку с заданным телом и фейковым подтверждением.
func Delivery(ack amqp.Acknowledger, tag uint64, body []byte) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  tag,
		ContentType:  "application/json",
		Body:         body,
	}
}

// Published - одна перехваченная публикация.
type Published struct {
	RoutingKey string
	Msg        amqp.Publishing
}

// Publisher запоминает публикации вместо отправки в брокер.
type Publisher struct {
	mu        sync.Mutex
	published []Published
	Err       error
	// OnPublish вызывается после записи публикации (например, чтобы сымитировать ответ).
	OnPublish func(routingKey string, msg amqp.Publishing)
}

var _ messaging.Publisher = (*Publisher)(nil)

func (p *Publisher) Publish(_ context.Context, routingKey string, msg amqp.Publishing) error {
	p.mu.Lock()
	if p.Err != nil {
		err := p.Err
		p.mu.Unlock()
		return err
	}
	p.published = append(p.published, Published{RoutingKey: routingKey, Msg: msg})
	hook := p.OnPublish
	p.mu.Unlock()

	if hook != nil {
		hook(routingKey, msg)
	}
	return nil
}

// Messages возвращает копию перехваченных публикаций.
func (p *Publisher) Messages() []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Published, len(p.published))
	copy(out, p.published)
	return out
}

// Channel - фейковый канал AMQP.
type Channel struct {
	mu         sync.Mutex
	prefetch   int
	declared   []string
	consumed   []string
	published  []Published
	receivers  []chan *amqp.Error
	deliveries chan amqp.Delivery
	closed     bool

	QosErr     error
	DeclareErr error
	ConsumeErr error
	PublishErr error
}

var _ messaging.Channel = (*Channel)(nil)

func NewChannel() *Channel {
	return &Channel{deliveries: make(chan amqp.Delivery, 64)}
}

func (c *Channel) Qos(prefetchCount, _ int, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.QosErr != nil {
		return c.QosErr
	}
	c.prefetch = prefetchCount
	return nil
}

func (c *Channel) QueueDeclare(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.DeclareErr != nil {
		return amqp.Queue{}, c.DeclareErr
	}
	c.declared = append(c.declared, name)
	return amqp.Queue{Name: name}, nil
}

func (c *Channel) Consume(queue, _ string, _, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ConsumeErr != nil {
		return nil, c.ConsumeErr
	}
	if c.closed {
		return nil, amqp.ErrClosed
	}
	c.consumed = append(c.consumed, queue)
	return c.deliveries, nil
}

func (c *Channel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return amqp.ErrClosed
	}
	if c.PublishErr != nil {
		return c.PublishErr
	}
	c.published = append(c.published, Published{RoutingKey: key, Msg: msg})
	return nil
}

func (c *Channel) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		close(receiver)
		return receiver
	}
	c.receivers = append(c.receivers, receiver)
	return receiver
}

func (c *Channel) Close() error {
	c.shutdown(nil)
	return nil
}

// Deliver кладет доставку в поток Consume.
func (c *Channel) Deliver(d amqp.Delivery) {
	c.deliveries <- d
}

// Drop имитирует закрытие канала брокером.
func (c *Channel) Drop(reason string) {
	c.shutdown(&amqp.Error{Code: amqp.ChannelError, Reason: reason, Server: true})
}

func (c *Channel) shutdown(err *amqp.Error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for _, r := range c.receivers {
		if err != nil {
			r <- err
		}
		close(r)
	}
	c.receivers = nil
	close(c.deliveries)
}

func (c *Channel) Prefetch() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prefetch
}

func (c *Channel) Declared() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.declared...)
}

func (c *Channel) Consumed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.consumed...)
}

func (c *Channel) Published() []Published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Published(nil), c.published...)
}

func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Connection - фейковое соединение с одним каналом.
type Connection struct {
	mu        sync.Mutex
	ch        *Channel
	receivers []chan *amqp.Error
	closed    bool
}

var _ messaging.Connection = (*Connection)(nil)

func (c *Connection) Channel() (messaging.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, amqp.ErrClosed
	}
	return c.ch, nil
}

func (c *Connection) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		close(receiver)
		return receiver
	}
	c.receivers = append(c.receivers, receiver)
	return receiver
}

func (c *Connection) Close() error {
	c.shutdown(nil)
	c.ch.Close()
	return nil
}

// Drop имитирует обрыв TCP соединения.
func (c *Connection) Drop(reason string) {
	c.shutdown(&amqp.Error{Code: amqp.ConnectionForced, Reason: reason, Server: true})
	c.ch.Drop(reason)
}

func (c *Connection) Ch() *Channel {
	return c.ch
}

func (c *Connection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Connection) shutdown(err *amqp.Error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for _, r := range c.receivers {
		if err != nil {
			r <- err
		}
		close(r)
	}
	c.receivers = nil
}

// ErrDialRefused возвращает Dialer, пока он в режиме отказа.
var ErrDialRefused = errors.New("dial tcp: connection refused")

// Dialer выдает новые фейковые соединения и умеет отказывать в подключении.
type Dialer struct {
	mu       sync.Mutex
	failing  bool
	attempts int
	conns    []*Connection

	// DeclareErr применяется к каналам новых соединений.
	DeclareErr error
}

// SetFailing включает или выключает отказ в подключении.
func (d *Dialer) SetFailing(failing bool) {
	d.mu.Lock()
	d.failing = failing
	d.mu.Unlock()
}

// Dial соответствует messaging.Dialer.
func (d *Dialer) Dial(_ string) (messaging.Connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts++
	if d.failing {
		return nil, ErrDialRefused
	}
	ch := NewChannel()
	ch.DeclareErr = d.DeclareErr
	conn := &Connection{ch: ch}
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *Dialer) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

// Conns возвращает все выданные соединения в порядке создания.
func (d *Dialer) Conns() []*Connection {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Connection(nil), d.conns...)
}

// Last возвращает последнее выданное соединение или nil.
func (d *Dialer) Last() *Connection {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}
