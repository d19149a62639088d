package chat

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct{ room, text string }

func recorder(out *[]sent) Sender {
	return func(room, text string) error {
		*out = append(*out, sent{room, text})
		return nil
	}
}

func TestSendBeforeRoomIsNoop(t *testing.T) {
	c := NewChannel()
	_, err := c.Send("R1", "hello")
	assert.ErrorIs(t, err, ErrNotInRoom)
	assert.Zero(t, c.Len())
}

func TestSendToOtherRoomIsNoop(t *testing.T) {
	var out []sent
	c := NewChannel()
	c.Bind("R1", recorder(&out))

	_, err := c.Send("R0", "stale")
	assert.ErrorIs(t, err, ErrNotInRoom)
	assert.Empty(t, out)
	assert.Zero(t, c.Len())
}

func TestSendAppendsAndTransmits(t *testing.T) {
	var out []sent
	c := NewChannel()
	c.Bind("R1", recorder(&out))

	msg, err := c.Send("R1", "  hello ")
	require.NoError(t, err)
	assert.Equal(t, OriginSelf, msg.Origin)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, "R1", msg.Room)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, []sent{{"R1", "hello"}}, out)
	assert.Equal(t, []Message{msg}, c.History())
}

func TestSendEmpty(t *testing.T) {
	c := NewChannel()
	c.Bind("R1", nil)
	_, err := c.Send("R1", "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Zero(t, c.Len())
}

func TestSendFailureKeepsMessage(t *testing.T) {
	boom := errors.New("socket gone")
	c := NewChannel()
	c.Bind("R1", func(string, string) error { return boom })

	_, err := c.Send("R1", "hi")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, c.Len())
}

func TestHistoryIsArrivalOrder(t *testing.T) {
	c := NewChannel()
	c.Bind("R1", nil)

	_, err := c.Send("R1", "one")
	require.NoError(t, err)
	_, ok := c.Receive("two")
	require.True(t, ok)
	_, err = c.Send("R1", "three")
	require.NoError(t, err)

	var texts []string
	var origins []Origin
	for _, m := range c.History() {
		texts = append(texts, m.Text)
		origins = append(origins, m.Origin)
	}
	assert.Equal(t, []string{"one", "two", "three"}, texts)
	assert.Equal(t, []Origin{OriginSelf, OriginRemote, OriginSelf}, origins)
}

func TestRoomChangeClearsHistory(t *testing.T) {
	c := NewChannel()
	c.Bind("R1", nil)
	c.Receive("hello")

	c.Bind("R1", nil)
	assert.Equal(t, 1, c.Len())

	c.Bind("R2", nil)
	assert.Zero(t, c.Len())

	c.Receive("again")
	c.Reset()
	assert.Zero(t, c.Len())
	assert.Empty(t, c.Room())

	_, ok := c.Receive("late")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestLongMessageTruncated(t *testing.T) {
	c := NewChannel()
	c.Bind("R1", nil)
	msg, err := c.Send("R1", strings.Repeat("x", MaxLength+10))
	require.NoError(t, err)
	assert.Len(t, msg.Text, MaxLength)
}

func TestTruncationKeepsRunesWhole(t *testing.T) {
	var out []sent
	c := NewChannel()
	c.Bind("R1", recorder(&out))

	// "é" is two bytes, so the limit falls inside one
	text := "x" + strings.Repeat("é", MaxLength/2)
	msg, err := c.Send("R1", text)
	require.NoError(t, err)

	assert.True(t, utf8.ValidString(msg.Text))
	assert.Len(t, msg.Text, MaxLength-1)
	assert.True(t, strings.HasPrefix(text, msg.Text))
	require.Len(t, out, 1)
	assert.Equal(t, msg.Text, out[0].text)

	got, ok := c.Receive(strings.Repeat("😀", MaxLength))
	require.True(t, ok)
	assert.True(t, utf8.ValidString(got.Text))
	assert.Len(t, got.Text, MaxLength)
}

func TestHistoryIsACopy(t *testing.T) {
	c := NewChannel()
	c.Bind("R1", nil)
	c.Receive("a")

	h := c.History()
	h[0].Text = "mutated"
	assert.Equal(t, "a", c.History()[0].Text)
}
