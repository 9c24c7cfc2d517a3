package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

type Client struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	queueName    string
}

func NewClient(url, exchangeName, queueName string) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		queueName:    queueName,
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}

	return client, nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = c.channel.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	err = c.channel.QueueBind(
		c.queueName,    // queue name
		c.queueName,    // routing key (same as queue name for direct exchange)
		c.exchangeName, // exchange
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

// PublishEntrySync publishes a sync message for one trip or equipment entry.
func (c *Client) PublishEntrySync(ctx context.Context, kind string, id, version int64) error {
	msg := NewEntrySyncMessage(kind, id, version)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := c.publish(ctx, body); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Published entry sync message",
		"kind", kind,
		"id", id,
		"version", version,
		"exchange", c.exchangeName,
		"queue", c.queueName)

	return nil
}

// PublishEntryDelete publishes a delete message for one trip or equipment entry.
func (c *Client) PublishEntryDelete(ctx context.Context, kind string, id int64, year int) error {
	msg := NewEntryDeleteMessage(kind, id, year)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := c.publish(ctx, body); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Published entry delete message",
		"kind", kind,
		"id", id,
		"year", year,
		"exchange", c.exchangeName,
		"queue", c.queueName)

	return nil
}

func (c *Client) publish(ctx context.Context, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		c.queueName,    // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// ConsumeEntryMessages consumes sync and delete messages, dispatching on the
// type field. Handler errors cause a requeue; undecodable messages are dropped.
func (c *Client) ConsumeEntryMessages(ctx context.Context, onSync func(*EntrySyncMessage) error, onDelete func(*EntryDeleteMessage) error) error {
	msgs, err := c.channel.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack (we want manual ack)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming entry messages", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}

			if err := c.dispatch(ctx, delivery.Body, onSync, onDelete); err != nil {
				if requeue(err) {
					delivery.Nack(false, true)
				} else {
					delivery.Nack(false, false)
				}
				continue
			}

			delivery.Ack(false)
		}
	}
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func requeue(err error) bool {
	_, permanent := err.(permanentError)
	return !permanent
}

func (c *Client) dispatch(ctx context.Context, body []byte, onSync func(*EntrySyncMessage) error, onDelete func(*EntryDeleteMessage) error) error {
	typ, err := messageType(body)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to read message type", "error", err)
		return permanentError{err}
	}

	switch typ {
	case TypeEntrySync:
		msg, err := EntrySyncMessageFromJSON(body)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to unmarshal sync message", "error", err)
			return permanentError{err}
		}
		if err := onSync(msg); err != nil {
			slog.ErrorContext(ctx, "Failed to handle sync message",
				"error", err,
				"kind", msg.Kind,
				"id", msg.ID)
			return err
		}
		slog.InfoContext(ctx, "Processed entry sync message", "kind", msg.Kind, "id", msg.ID)
	case TypeEntryDelete:
		msg, err := EntryDeleteMessageFromJSON(body)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to unmarshal delete message", "error", err)
			return permanentError{err}
		}
		if err := onDelete(msg); err != nil {
			slog.ErrorContext(ctx, "Failed to handle delete message",
				"error", err,
				"kind", msg.Kind,
				"id", msg.ID)
			return err
		}
		slog.InfoContext(ctx, "Processed entry delete message", "kind", msg.Kind, "id", msg.ID)
	default:
		slog.WarnContext(ctx, "Dropping message with unknown type", "type", typ)
		return permanentError{fmt.Errorf("unknown message type %q", typ)}
	}

	return nil
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
