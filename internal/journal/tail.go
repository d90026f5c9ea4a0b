package journal

import (
	"context"
	"encoding/json"
	"errors"

	"taskflow/internal/engine"
	"taskflow/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// ErrStop ends Tail without error when returned by a handler.
var ErrStop = errors.New("stop tail")

// MessageReader is the consuming half of *kafka.Reader.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Entry is one journal record.
type Entry struct {
	engine.Outcome
	User      string
	Partition int
	Offset    int64
}

// NewReader opens a consumer-group reader on topic.
func NewReader(brokers []string, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  group,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

// Tail feeds entries to handle until ctx ends or handle returns an error.
// Entries for other users are skipped when user is set. Undecodable messages
// are logged and committed so they cannot block the partition.
func Tail(ctx context.Context, r MessageReader, user string, handle func(Entry) error) error {
	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error(ctx, "Journal fetch failed", "error", err)
			return err
		}
		entry, err := decode(msg)
		switch {
		case err != nil:
			logger.Warn(ctx, "Skipping undecodable journal message", "offset", msg.Offset, "error", err)
		case user == "" || entry.User == "" || entry.User == user:
			if herr := handle(entry); herr != nil {
				_ = r.CommitMessages(ctx, msg)
				if errors.Is(herr, ErrStop) {
					return nil
				}
				return herr
			}
		}
		if err := r.CommitMessages(ctx, msg); err != nil {
			logger.Error(ctx, "Journal commit failed", "error", err)
		}
	}
}

func decode(msg kafka.Message) (Entry, error) {
	e := Entry{Partition: msg.Partition, Offset: msg.Offset}
	if err := json.Unmarshal(msg.Value, &e.Outcome); err != nil {
		return Entry{}, err
	}
	for _, h := range msg.Headers {
		if h.Key == userHeader {
			e.User = string(h.Value)
		}
	}
	return e, nil
}
