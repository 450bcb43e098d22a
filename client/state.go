package client

import (
	"strconv"

	"go.uber.org/zap"

	"github.com/luma/stampede/frame"
	"github.com/luma/stampede/internal/ids"
	"github.com/luma/stampede/protocol"
)

// State names, as reported by Stateful.State() and carried by
// InvalidStateError.
const (
	StateProducer             = "producer"
	StateConsumer             = "consumer"
	StateProducerInTx         = "producer-in-transaction"
	StateConsumerInTx         = "consumer-in-transaction"
	StateDrainingConsumer     = "draining-consumer"
	StateDrainingConsumerInTx = "draining-consumer-in-transaction"
)

// SubscribeOptions describes one Subscribe call on the stateful session.
type SubscribeOptions struct {
	Destination string
	Ack         protocol.AckMode
	Selector    string
	Durable     bool
	Headers     *frame.Headers
}

// Stateful is the session façade that enforces which STOMP verbs are legal
// at each moment. It starts as a producer; subscribing turns it into a
// consumer, transactions and unsubscribe-with-backlog move it through the
// in-transaction and draining states.
//
// The façade owns the current state; states install their successor on
// transition.
type Stateful struct {
	client *Client
	state  sessionState
	log    *zap.Logger
}

func NewStateful(c *Client, log *zap.Logger) *Stateful {
	if log == nil {
		log = zap.NewNop()
	}

	s := &Stateful{client: c, log: log.Named("session")}
	s.state = &producerState{baseState: baseState{m: s, label: StateProducer}}

	return s
}

func (s *Stateful) Client() *Client {
	return s.client
}

func (s *Stateful) State() string {
	return s.state.name()
}

func (s *Stateful) Send(destination string, body []byte, headers *frame.Headers) error {
	return s.state.send(destination, body, headers)
}

func (s *Stateful) Ack(msg *frame.Frame) error {
	return s.state.ack(msg)
}

func (s *Stateful) Nack(msg *frame.Frame, requeue *bool) error {
	return s.state.nack(msg, requeue)
}

// Subscribe registers interest in a destination and returns the
// subscription id.
func (s *Stateful) Subscribe(o SubscribeOptions) (string, error) {
	return s.state.subscribe(o)
}

// Unsubscribe removes a subscription. An empty id is accepted when exactly
// one subscription is active.
func (s *Stateful) Unsubscribe(id string) error {
	return s.state.unsubscribe(id)
}

func (s *Stateful) Begin() error {
	return s.state.begin()
}

func (s *Stateful) Commit() error {
	return s.state.commit()
}

func (s *Stateful) Abort() error {
	return s.state.abort()
}

// Read returns the next message. In the draining states it only yields
// already-buffered frames; the nil message after the last one marks the
// transition back to a producer state.
func (s *Stateful) Read() (*Message, error) {
	return s.state.read()
}

// Subscriptions lists the active subscriptions, insertion-ordered. Empty
// outside the consumer states.
func (s *Stateful) Subscriptions() []*Subscription {
	return s.state.subscriptions()
}

func (s *Stateful) setState(next sessionState) {
	s.state = next
	s.log.Debug("Session state changed", zap.String("state", next.name()))
}

// sendPlain writes a SEND frame, with a transaction header when tx is
// non-empty.
func (s *Stateful) sendPlain(destination string, body []byte, headers *frame.Headers, tx string) error {
	f := frame.New(frame.CmdSend)
	f.Headers.Merge(headers)
	f.SetHeader(frame.HdrDestination, destination)
	f.Body = body

	if tx != "" {
		f.SetHeader(frame.HdrTransaction, tx)
	}

	return s.client.SendFrame(f, s.client.Sync())
}

// doSubscribe sends SUBSCRIBE with a generated id and records the
// subscription on success.
func (s *Stateful) doSubscribe(subs *Subscriptions, o SubscribeOptions) (string, error) {
	if !s.client.Connected() {
		return "", errNotConnected()
	}

	idNum, err := ids.Generate()
	if err != nil {
		return "", err
	}

	id := strconv.Itoa(idNum)

	f, err := s.client.Protocol().Subscribe(protocol.SubscribeOptions{
		Destination: o.Destination,
		ID:          id,
		Ack:         o.Ack,
		Selector:    o.Selector,
		Durable:     o.Durable,
		Headers:     o.Headers,
	})
	if err != nil {
		ids.Release(idNum)
		return "", err
	}

	if err := s.client.SendFrame(f, s.client.Sync()); err != nil {
		ids.Release(idNum)
		return "", err
	}

	subs.Add(&Subscription{
		ID:          id,
		Destination: o.Destination,
		Ack:         o.Ack,
		Selector:    o.Selector,
		Durable:     o.Durable,
		idNum:       idNum,
	})

	return id, nil
}

// doUnsubscribe sends UNSUBSCRIBE and removes the subscription, returning
// whether it was the last one.
func (s *Stateful) doUnsubscribe(subs *Subscriptions, id string) (bool, error) {
	if id == "" {
		if subs.Len() != 1 {
			return false, &InvalidStateError{State: s.State(), Op: "unsubscribe without id (multiple subscriptions active)"}
		}

		id = subs.All()[0].ID
	}

	sub := subs.Get(id)
	if sub == nil {
		return false, ErrUnknownSubscription
	}

	f := s.client.Protocol().Unsubscribe(sub.Destination, sub.ID, sub.Durable)

	if err := s.client.SendFrame(f, s.client.Sync()); err != nil {
		return false, err
	}

	subs.Remove(id)
	ids.Release(sub.idNum)

	return subs.Len() == 0, nil
}

// beginTransaction generates a transaction id and sends BEGIN.
func (s *Stateful) beginTransaction() (string, int, error) {
	if !s.client.Connected() {
		return "", 0, errNotConnected()
	}

	idNum, err := ids.Generate()
	if err != nil {
		return "", 0, err
	}

	tx := strconv.Itoa(idNum)

	if err := s.client.SendFrame(s.client.Protocol().Begin(tx), s.client.Sync()); err != nil {
		ids.Release(idNum)
		return "", 0, err
	}

	return tx, idNum, nil
}

// endTransaction sends COMMIT or ABORT and releases the transaction id.
func (s *Stateful) endTransaction(tx string, txIDNum int, commit bool) error {
	var f *frame.Frame
	if commit {
		f = s.client.Protocol().Commit(tx)
	} else {
		f = s.client.Protocol().Abort(tx)
	}

	if err := s.client.SendFrame(f, s.client.Sync()); err != nil {
		return err
	}

	ids.Release(txIDNum)

	return nil
}

func errNotConnected() error {
	return &InvalidStateError{State: "disconnected", Op: "session operation"}
}

// sessionState is one state of the session state machine. baseState denies
// everything; each state overrides its legal operations.
type sessionState interface {
	name() string
	send(destination string, body []byte, headers *frame.Headers) error
	ack(msg *frame.Frame) error
	nack(msg *frame.Frame, requeue *bool) error
	subscribe(o SubscribeOptions) (string, error)
	unsubscribe(id string) error
	begin() error
	commit() error
	abort() error
	read() (*Message, error)
	subscriptions() []*Subscription
}

type baseState struct {
	m     *Stateful
	label string
}

func (b *baseState) name() string {
	return b.label
}

func (b *baseState) deny(op string) error {
	return &InvalidStateError{State: b.label, Op: op}
}

func (b *baseState) send(string, []byte, *frame.Headers) error {
	return b.deny("send")
}

func (b *baseState) ack(*frame.Frame) error {
	return b.deny("ack")
}

func (b *baseState) nack(*frame.Frame, *bool) error {
	return b.deny("nack")
}

func (b *baseState) subscribe(SubscribeOptions) (string, error) {
	return "", b.deny("subscribe")
}

func (b *baseState) unsubscribe(string) error {
	return b.deny("unsubscribe")
}

func (b *baseState) begin() error {
	return b.deny("begin")
}

func (b *baseState) commit() error {
	return b.deny("commit")
}

func (b *baseState) abort() error {
	return b.deny("abort")
}

func (b *baseState) read() (*Message, error) {
	return nil, b.deny("read")
}

func (b *baseState) subscriptions() []*Subscription {
	return nil
}

// producerState is the initial state: plain sends, and the gateways into
// consuming (subscribe) and transactions (begin).
type producerState struct {
	baseState
}

func (s *producerState) send(destination string, body []byte, headers *frame.Headers) error {
	return s.m.sendPlain(destination, body, headers, "")
}

func (s *producerState) subscribe(o SubscribeOptions) (string, error) {
	subs := NewSubscriptions()

	id, err := s.m.doSubscribe(subs, o)
	if err != nil {
		return "", err
	}

	s.m.setState(&consumerState{
		baseState: baseState{m: s.m, label: StateConsumer},
		subs:      subs,
	})

	return id, nil
}

func (s *producerState) begin() error {
	tx, txID, err := s.m.beginTransaction()
	if err != nil {
		return err
	}

	s.m.setState(&producerTxState{
		baseState: baseState{m: s.m, label: StateProducerInTx},
		tx:        tx,
		txID:      txID,
	})

	return nil
}

// consumerState has at least one subscription. All consumer verbs are
// legal; dropping the last subscription leads back towards producer,
// through draining when frames are still buffered.
type consumerState struct {
	baseState
	subs *Subscriptions
}

func (s *consumerState) send(destination string, body []byte, headers *frame.Headers) error {
	return s.m.sendPlain(destination, body, headers, "")
}

func (s *consumerState) ack(msg *frame.Frame) error {
	return s.m.client.Ack(msg, "")
}

func (s *consumerState) nack(msg *frame.Frame, requeue *bool) error {
	return s.m.client.Nack(msg, "", requeue)
}

func (s *consumerState) subscribe(o SubscribeOptions) (string, error) {
	return s.m.doSubscribe(s.subs, o)
}

func (s *consumerState) unsubscribe(id string) error {
	last, err := s.m.doUnsubscribe(s.subs, id)
	if err != nil || !last {
		return err
	}

	if s.m.client.HasBufferedFrames() {
		s.m.setState(&drainingConsumerState{
			baseState: baseState{m: s.m, label: StateDrainingConsumer},
		})
	} else {
		s.m.setState(&producerState{baseState: baseState{m: s.m, label: StateProducer}})
	}

	return nil
}

func (s *consumerState) begin() error {
	tx, txID, err := s.m.beginTransaction()
	if err != nil {
		return err
	}

	s.m.setState(&consumerTxState{
		baseState: baseState{m: s.m, label: StateConsumerInTx},
		subs:      s.subs,
		tx:        tx,
		txID:      txID,
	})

	return nil
}

func (s *consumerState) read() (*Message, error) {
	return s.m.client.ReadMessage()
}

func (s *consumerState) subscriptions() []*Subscription {
	return s.subs.All()
}

// producerTxState is a producer inside a transaction: sends carry the
// transaction header, commit/abort return to producer.
type producerTxState struct {
	baseState
	tx   string
	txID int
}

func (s *producerTxState) send(destination string, body []byte, headers *frame.Headers) error {
	return s.m.sendPlain(destination, body, headers, s.tx)
}

func (s *producerTxState) subscribe(o SubscribeOptions) (string, error) {
	subs := NewSubscriptions()

	id, err := s.m.doSubscribe(subs, o)
	if err != nil {
		return "", err
	}

	s.m.setState(&consumerTxState{
		baseState: baseState{m: s.m, label: StateConsumerInTx},
		subs:      subs,
		tx:        s.tx,
		txID:      s.txID,
	})

	return id, nil
}

func (s *producerTxState) commit() error {
	return s.finish(true)
}

func (s *producerTxState) abort() error {
	return s.finish(false)
}

func (s *producerTxState) finish(commit bool) error {
	if err := s.m.endTransaction(s.tx, s.txID, commit); err != nil {
		return err
	}

	s.m.setState(&producerState{baseState: baseState{m: s.m, label: StateProducer}})

	return nil
}

// consumerTxState is a consumer inside a transaction.
type consumerTxState struct {
	baseState
	subs *Subscriptions
	tx   string
	txID int
}

func (s *consumerTxState) send(destination string, body []byte, headers *frame.Headers) error {
	return s.m.sendPlain(destination, body, headers, s.tx)
}

func (s *consumerTxState) ack(msg *frame.Frame) error {
	return s.m.client.Ack(msg, s.tx)
}

func (s *consumerTxState) nack(msg *frame.Frame, requeue *bool) error {
	return s.m.client.Nack(msg, s.tx, requeue)
}

func (s *consumerTxState) subscribe(o SubscribeOptions) (string, error) {
	return s.m.doSubscribe(s.subs, o)
}

func (s *consumerTxState) unsubscribe(id string) error {
	last, err := s.m.doUnsubscribe(s.subs, id)
	if err != nil || !last {
		return err
	}

	if s.m.client.HasBufferedFrames() {
		s.m.setState(&drainingConsumerTxState{
			baseState: baseState{m: s.m, label: StateDrainingConsumerInTx},
			tx:        s.tx,
			txID:      s.txID,
		})
	} else {
		s.m.setState(&producerTxState{
			baseState: baseState{m: s.m, label: StateProducerInTx},
			tx:        s.tx,
			txID:      s.txID,
		})
	}

	return nil
}

func (s *consumerTxState) commit() error {
	return s.finish(true)
}

func (s *consumerTxState) abort() error {
	return s.finish(false)
}

func (s *consumerTxState) finish(commit bool) error {
	if err := s.m.endTransaction(s.tx, s.txID, commit); err != nil {
		return err
	}

	s.m.setState(&consumerState{
		baseState: baseState{m: s.m, label: StateConsumer},
		subs:      s.subs,
	})

	return nil
}

func (s *consumerTxState) read() (*Message, error) {
	return s.m.client.ReadMessage()
}

func (s *consumerTxState) subscriptions() []*Subscription {
	return s.subs.All()
}

// drainingConsumerState yields buffered frames only. Once the backlog is
// empty the session is a producer again.
type drainingConsumerState struct {
	baseState
}

func (s *drainingConsumerState) drain(op string) error {
	return &DrainingError{State: s.label, Op: op}
}

func (s *drainingConsumerState) send(destination string, body []byte, headers *frame.Headers) error {
	return s.m.sendPlain(destination, body, headers, "")
}

func (s *drainingConsumerState) ack(msg *frame.Frame) error {
	return s.m.client.Ack(msg, "")
}

func (s *drainingConsumerState) nack(msg *frame.Frame, requeue *bool) error {
	return s.m.client.Nack(msg, "", requeue)
}

func (s *drainingConsumerState) subscribe(SubscribeOptions) (string, error) {
	return "", s.drain("subscribe")
}

func (s *drainingConsumerState) unsubscribe(string) error {
	return s.drain("unsubscribe")
}

func (s *drainingConsumerState) begin() error {
	return s.drain("begin")
}

func (s *drainingConsumerState) commit() error {
	return s.drain("commit")
}

func (s *drainingConsumerState) abort() error {
	return s.drain("abort")
}

func (s *drainingConsumerState) read() (*Message, error) {
	f := s.m.client.ReadBuffered()
	if f == nil {
		s.m.setState(&producerState{baseState: baseState{m: s.m, label: StateProducer}})
		return nil, nil
	}

	return asMessage(f), nil
}

// drainingConsumerTxState drains inside a transaction: acks still carry
// the transaction header, and the backlog must empty before commit/abort
// become possible again (back in producer-in-transaction).
type drainingConsumerTxState struct {
	baseState
	tx   string
	txID int
}

func (s *drainingConsumerTxState) drain(op string) error {
	return &DrainingError{State: s.label, Op: op}
}

func (s *drainingConsumerTxState) send(string, []byte, *frame.Headers) error {
	return s.drain("send")
}

func (s *drainingConsumerTxState) ack(msg *frame.Frame) error {
	return s.m.client.Ack(msg, s.tx)
}

func (s *drainingConsumerTxState) nack(msg *frame.Frame, requeue *bool) error {
	return s.m.client.Nack(msg, s.tx, requeue)
}

func (s *drainingConsumerTxState) subscribe(SubscribeOptions) (string, error) {
	return "", s.drain("subscribe")
}

func (s *drainingConsumerTxState) unsubscribe(string) error {
	return s.drain("unsubscribe")
}

func (s *drainingConsumerTxState) begin() error {
	return s.drain("begin")
}

func (s *drainingConsumerTxState) commit() error {
	return s.drain("commit")
}

func (s *drainingConsumerTxState) abort() error {
	return s.drain("abort")
}

func (s *drainingConsumerTxState) read() (*Message, error) {
	f := s.m.client.ReadBuffered()
	if f == nil {
		s.m.setState(&producerTxState{
			baseState: baseState{m: s.m, label: StateProducerInTx},
			tx:        s.tx,
			txID:      s.txID,
		})

		return nil, nil
	}

	return asMessage(f), nil
}
