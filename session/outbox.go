package session

import (
	"fmt"
	"go.uber.org/zap"
	"peertag/applog"
	"peertag/protocol"
	"peertag/transport"
)

// Outbox is the outbound side of the game channel. Messages sent while no
// channel is attached are held in FIFO order and flushed on the next attach.
type Outbox struct {
	localID string
	channel transport.Channel
	queue   []protocol.Message
	logger  *applog.Logger
}

func NewOutbox(localID string, logger *applog.Logger) *Outbox {
	return &Outbox{localID: localID, logger: logger}
}

// Send stamps msg with the local id and transmits it, or queues it when no
// channel is attached. A transmit failure queues the message and is returned
// so the caller can treat the channel as broken.
func (o *Outbox) Send(msg protocol.Message) error {
	msg.GetHeader().Sender = o.localID

	if o.channel == nil {
		o.queue = append(o.queue, msg)
		o.logger.Debug("Queued message while disconnected",
			zap.String("type", msg.Kind()),
			zap.Int("queued", len(o.queue)),
		)
		return nil
	}

	if err := o.transmit(msg); err != nil {
		o.queue = append(o.queue, msg)
		return err
	}
	return nil
}

// Attach sets the open channel and flushes what was queued.
func (o *Outbox) Attach(ch transport.Channel) (int, error) {
	o.channel = ch
	return o.Flush()
}

func (o *Outbox) Detach() {
	o.channel = nil
}

func (o *Outbox) Attached() bool {
	return o.channel != nil
}

// Flush transmits queued messages in order. On failure the unsent tail,
// including the failed message, stays queued.
func (o *Outbox) Flush() (int, error) {
	if o.channel == nil {
		return 0, nil
	}

	sent := 0
	for len(o.queue) > 0 {
		if err := o.transmit(o.queue[0]); err != nil {
			o.logger.Warn("Flush interrupted",
				zap.Int("sent", sent),
				zap.Int("remaining", len(o.queue)),
				zap.Error(err),
			)
			return sent, err
		}
		o.queue[0] = nil
		o.queue = o.queue[1:]
		sent++
	}
	o.queue = nil

	if sent > 0 {
		o.logger.Debug("Flushed queued messages", zap.Int("count", sent))
	}
	return sent, nil
}

func (o *Outbox) Len() int {
	return len(o.queue)
}

// Pending returns a copy of the queued messages.
func (o *Outbox) Pending() []protocol.Message {
	out := make([]protocol.Message, len(o.queue))
	copy(out, o.queue)
	return out
}

func (o *Outbox) transmit(msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	if err := o.channel.Send(data); err != nil {
		return fmt.Errorf("failed to send %s over channel %s: %w", msg.Kind(), o.channel.ID(), err)
	}
	return nil
}
