package chat

import (
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

var (
	ErrNotInRoom    = errors.New("not in a room")
	ErrEmptyMessage = errors.New("empty message")
)

// MaxLength bounds a single message in bytes. Longer text is truncated on
// a rune boundary.
const MaxLength = 2000

type Origin string

const (
	OriginSelf   Origin = "self"
	OriginRemote Origin = "remote"
)

// Message is one chat line, scoped to the room it was exchanged in.
type Message struct {
	ID     string
	Origin Origin
	Text   string
	Room   string
	At     time.Time
}

// Sender transmits a chat line for a room.
type Sender func(room, text string) error

// Channel keeps the history of the current room. The history never spans
// two rooms.
type Channel struct {
	mu      sync.Mutex
	room    string
	send    Sender
	history []Message
	now     func() time.Time
}

func NewChannel() *Channel {
	return &Channel{now: time.Now}
}

// Bind scopes the channel to room. Switching to a different room clears
// the history.
func (c *Channel) Bind(room string, send Sender) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if room != c.room {
		c.history = nil
	}
	c.room = room
	c.send = send
}

// Reset unbinds the channel and clears the history.
func (c *Channel) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.room = ""
	c.send = nil
	c.history = nil
}

func (c *Channel) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// Send records text as our own message and transmits it. Without a bound
// room, or for another room, nothing happens and ErrNotInRoom is returned.
// A transmit failure is returned after the message was recorded.
func (c *Channel) Send(room, text string) (Message, error) {
	text = strings.TrimSpace(text)

	c.mu.Lock()
	if c.room == "" || room != c.room {
		c.mu.Unlock()
		return Message{}, ErrNotInRoom
	}
	if text == "" {
		c.mu.Unlock()
		return Message{}, ErrEmptyMessage
	}
	msg := c.appendLocked(OriginSelf, text)
	send := c.send
	c.mu.Unlock()

	if send == nil {
		return msg, nil
	}
	return msg, send(room, msg.Text)
}

// Receive records text from the other side. It is dropped when unbound.
func (c *Channel) Receive(text string) (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.room == "" || strings.TrimSpace(text) == "" {
		return Message{}, false
	}
	return c.appendLocked(OriginRemote, text), true
}

func (c *Channel) appendLocked(origin Origin, text string) Message {
	text = truncate(text, MaxLength)
	msg := Message{
		ID:     uuid.NewString(),
		Origin: origin,
		Text:   text,
		Room:   c.room,
		At:     c.now(),
	}
	c.history = append(c.history, msg)
	return msg
}

func truncate(text string, n int) string {
	if len(text) <= n {
		return text
	}
	for n > 0 && !utf8.RuneStart(text[n]) {
		n--
	}
	return text[:n]
}

// History returns the messages in arrival order.
func (c *Channel) History() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.history...)
}

func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history)
}
