// Package bus is a small in-process pub/sub used to hand configuration,
// control signals and sample batches between firmware services.
//
// Delivery never blocks the publisher: when a subscriber queue is full the
// oldest queued message is dropped, so a subscription with queue length 1
// behaves as a latest-value-wins signal.
package bus

import (
	"strconv"
	"sync"
)

const (
	wildOne = "+" // matches exactly one token
	wildAll = "#" // matches the remaining tokens (last position only)
)

// Token is a single element in a topic path: a string or an int.
type Token = any

// Topic is a sequence of tokens.
type Topic []Token

// T builds a topic, panicking on tokens that cannot be map keys.
func T(tokens ...Token) Topic {
	for _, tok := range tokens {
		switch tok.(type) {
		case string, int:
		default:
			panic("bus: topic tokens must be string or int")
		}
	}
	return Topic(tokens)
}

func (t Topic) Len() int       { return len(t) }
func (t Topic) At(i int) Token { return t[i] }
func (t Topic) String() string { return topicKey(t) }

// Append returns a new topic with extra tokens.
func (t Topic) Append(tokens ...Token) Topic {
	out := make(Topic, 0, len(t)+len(tokens))
	out = append(out, t...)
	return append(out, tokens...)
}

type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
}

// -----------------------------------------------------------------------------
// Subscription
// -----------------------------------------------------------------------------

type Subscription struct {
	topic Topic
	ch    chan *Message
	conn  *Connection
}

func (s *Subscription) Topic() Topic             { return s.topic }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

// deliver enqueues without blocking, evicting the oldest message when full.
func (s *Subscription) deliver(m *Message) {
	for {
		select {
		case s.ch <- m:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// -----------------------------------------------------------------------------
// Bus
// -----------------------------------------------------------------------------

type node struct {
	children map[Token]*node
	subs     []*Subscription
}

type Bus struct {
	mu       sync.Mutex
	root     *node
	retained map[string]*Message
	qLen     int
}

// NewBus creates a new bus with the given default subscription queue length.
func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8
	}
	return &Bus{
		root:     &node{},
		retained: map[string]*Message{},
		qLen:     queueLen,
	}
}

// NewMessage builds a message; the topic is validated like T.
func (b *Bus) NewMessage(topic Topic, payload any, retained bool) *Message {
	return &Message{Topic: T(topic...), Payload: payload, Retained: retained}
}

func (b *Bus) addSubscription(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	for _, tok := range sub.topic {
		if n.children == nil {
			n.children = make(map[Token]*node)
		}
		child, ok := n.children[tok]
		if !ok {
			child = &node{}
			n.children[tok] = child
		}
		n = child
	}
	n.subs = append(n.subs, sub)

	for _, m := range b.retained {
		if matches(sub.topic, m.Topic) {
			sub.deliver(m)
		}
	}
}

// Publish delivers a message to every matching subscription. Retained
// messages are stored per topic; a retained nil payload clears the slot.
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if msg.Retained {
		k := topicKey(msg.Topic)
		if msg.Payload == nil {
			delete(b.retained, k)
		} else {
			b.retained[k] = msg
		}
	}
	b.walk(b.root, msg.Topic, msg)
}

func (b *Bus) walk(n *node, rest Topic, msg *Message) {
	if n == nil {
		return
	}
	if all := n.children[wildAll]; all != nil {
		for _, s := range all.subs {
			s.deliver(msg)
		}
	}
	if len(rest) == 0 {
		for _, s := range n.subs {
			s.deliver(msg)
		}
		return
	}
	if n.children == nil {
		return
	}
	b.walk(n.children[rest[0]], rest[1:], msg)
	b.walk(n.children[wildOne], rest[1:], msg)
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	stack := make([]*node, 0, len(sub.topic))
	for _, tok := range sub.topic {
		child := n.children[tok]
		if child == nil {
			return
		}
		stack = append(stack, n)
		n = child
	}
	for i, s := range n.subs {
		if s == sub {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			break
		}
	}
	// Prune empty nodes.
	for i := len(sub.topic) - 1; i >= 0; i-- {
		parent := stack[i]
		child := parent.children[sub.topic[i]]
		if len(child.subs) != 0 || len(child.children) != 0 {
			break
		}
		delete(parent.children, sub.topic[i])
	}
}

// matches reports whether a published topic satisfies a subscription filter.
func matches(filter, topic Topic) bool {
	for i, f := range filter {
		if f == wildAll {
			return true
		}
		if i >= len(topic) {
			return false
		}
		if f != wildOne && f != topic[i] {
			return false
		}
	}
	return len(filter) == len(topic)
}

func topicKey(t Topic) string {
	var s string
	for i, tok := range t {
		if i > 0 {
			s += "/"
		}
		switch v := tok.(type) {
		case string:
			s += v
		case int:
			s += strconv.Itoa(v)
		}
	}
	return s
}

// -----------------------------------------------------------------------------
// Connection
// -----------------------------------------------------------------------------

type Connection struct {
	bus  *Bus
	id   string
	mu   sync.Mutex
	subs []*Subscription
}

// NewConnection creates a new connection bound to this bus.
func (b *Bus) NewConnection(id string) *Connection {
	return &Connection{bus: b, id: id}
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) NewMessage(topic Topic, payload any, retained bool) *Message {
	return c.bus.NewMessage(topic, payload, retained)
}

func (c *Connection) Publish(msg *Message) { c.bus.Publish(msg) }

// Subscribe registers a subscription with the bus default queue length.
func (c *Connection) Subscribe(topic Topic) *Subscription {
	return c.SubscribeN(topic, c.bus.qLen)
}

// SubscribeN registers a subscription with an explicit queue length.
// A length of 1 gives latest-value-wins semantics.
func (c *Connection) SubscribeN(topic Topic, queueLen int) *Subscription {
	if queueLen <= 0 {
		queueLen = c.bus.qLen
	}
	sub := &Subscription{
		topic: T(topic...),
		ch:    make(chan *Message, queueLen),
		conn:  c,
	}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	c.bus.addSubscription(sub)
	return sub
}

// Unsubscribe removes a subscription owned by this connection and closes it.
func (c *Connection) Unsubscribe(sub *Subscription) {
	c.mu.Lock()
	found := false
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			found = true
			break
		}
	}
	c.mu.Unlock()
	if !found {
		return
	}
	c.bus.unsubscribe(sub)
	close(sub.ch)
}

// Disconnect closes all subscriptions owned by this connection.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		c.bus.unsubscribe(sub)
		close(sub.ch)
	}
}
