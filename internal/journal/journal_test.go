package journal

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"taskflow/internal/engine"
	"taskflow/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// broker is an in-memory topic that is both writer and reader.
type broker struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	next      int
	committed []int64
	failWrite error
	closed    bool
}

func (b *broker) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failWrite != nil {
		return b.failWrite
	}
	for _, m := range msgs {
		m.Offset = int64(len(b.msgs))
		b.msgs = append(b.msgs, m)
	}
	return nil
}

func (b *broker) FetchMessage(ctx context.Context) (kafka.Message, error) {
	for {
		b.mu.Lock()
		if b.next < len(b.msgs) {
			m := b.msgs[b.next]
			b.next++
			b.mu.Unlock()
			return m, nil
		}
		b.mu.Unlock()
		select {
		case <-ctx.Done():
			return kafka.Message{}, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (b *broker) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range msgs {
		b.committed = append(b.committed, m.Offset)
	}
	return nil
}

func (b *broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func TestPublisher_Record(t *testing.T) {
	b := &broker{}
	p := NewPublisherWriter(b, "u1")
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	require.NoError(t, p.Record(context.Background(), engine.Outcome{Op: engine.OpToggle, TaskID: "t1", Error: "remote call failed (status 500): boom", RolledBack: true, At: at}))
	require.NoError(t, p.Record(context.Background(), engine.Outcome{Op: engine.OpLoad, OK: true, At: at}))

	require.Len(t, b.msgs, 2)
	assert.Equal(t, "u1:t1", string(b.msgs[0].Key))
	assert.Equal(t, "u1:load", string(b.msgs[1].Key))
	var o engine.Outcome
	require.NoError(t, json.Unmarshal(b.msgs[0].Value, &o))
	assert.Equal(t, "remote call failed (status 500): boom", o.Error)
	assert.True(t, o.RolledBack)
	assert.Equal(t, []kafka.Header{{Key: "user", Value: []byte("u1")}}, b.msgs[0].Headers)

	require.NoError(t, p.Close())
	assert.True(t, b.closed)
}

func TestPublisher_KeepsOneTaskOnOnePartition(t *testing.T) {
	p := NewPublisher(context.Background(), []string{"localhost:9092"}, "todo-journal", "u1")
	defer p.Close()
	w, ok := p.w.(*kafka.Writer)
	require.True(t, ok)

	partitions := []int{0, 1, 2}
	for _, key := range []string{"u1:t1", "u1:t2", "u1:load"} {
		msg := kafka.Message{Key: []byte(key)}
		first := w.Balancer.Balance(msg, partitions...)
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, w.Balancer.Balance(msg, partitions...), key)
		}
	}
}

func TestPublisher_WriteError(t *testing.T) {
	p := NewPublisherWriter(&broker{failWrite: errors.New("leader not available")}, "")
	err := p.Record(context.Background(), engine.Outcome{Op: engine.OpDelete, TaskID: "t1"})
	assert.ErrorContains(t, err, "leader not available")
}

func TestTail_FiltersUserAndSkipsGarbage(t *testing.T) {
	b := &broker{}
	ctx := context.Background()
	require.NoError(t, NewPublisherWriter(b, "u1").Record(ctx, engine.Outcome{Op: engine.OpCreate, TaskID: "a", OK: true}))
	require.NoError(t, b.WriteMessages(ctx, kafka.Message{Value: []byte("{garbage")}))
	require.NoError(t, NewPublisherWriter(b, "u2").Record(ctx, engine.Outcome{Op: engine.OpCreate, TaskID: "b", OK: true}))
	require.NoError(t, NewPublisherWriter(b, "u1").Record(ctx, engine.Outcome{Op: engine.OpDelete, TaskID: "a", OK: true}))

	var got []Entry
	err := Tail(ctx, b, "u1", func(e Entry) error {
		got = append(got, e)
		if len(got) == 2 {
			return ErrStop
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].TaskID)
	assert.Equal(t, engine.OpDelete, got[1].Op)
	assert.Equal(t, "u1", got[1].User)
	assert.Equal(t, int64(3), got[1].Offset)
	assert.Equal(t, []int64{0, 1, 2, 3}, b.committed)
}

func TestTail_StopsOnContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := Tail(ctx, &broker{}, "", func(Entry) error { return nil })
	assert.NoError(t, err)
}

func TestTail_HandlerError(t *testing.T) {
	b := &broker{}
	require.NoError(t, NewPublisherWriter(b, "").Record(context.Background(), engine.Outcome{Op: engine.OpLoad}))
	boom := errors.New("stdout closed")
	err := Tail(context.Background(), b, "", func(Entry) error { return boom })
	assert.ErrorIs(t, err, boom)
}

// The publisher plugs into the engine as its journal.
func TestPublisher_AsEngineJournal(t *testing.T) {
	b := &broker{}
	e := engine.New(staticRemote{}, engine.Options{Journal: NewPublisherWriter(b, "u1")})
	require.NoError(t, e.Load(context.Background()))
	_, err := e.Toggle(context.Background(), "t1")
	require.NoError(t, err)

	var ops []string
	for _, m := range b.msgs {
		var o engine.Outcome
		require.NoError(t, json.Unmarshal(m.Value, &o))
		ops = append(ops, o.Op)
	}
	assert.Equal(t, []string{engine.OpLoad, engine.OpToggle}, ops)
}

type staticRemote struct{}

func (staticRemote) ListPage(context.Context, models.ListQuery) (models.Page, error) {
	return models.Page{Tasks: []models.Task{{ID: "t1", Title: "x"}}}, nil
}
func (staticRemote) Create(context.Context, models.Draft) (models.Task, error) {
	return models.Task{}, nil
}
func (staticRemote) Update(_ context.Context, id string, p models.Patch) (models.Task, error) {
	t := models.Task{ID: id, Title: "x"}
	p.ApplyTo(&t)
	return t, nil
}
func (staticRemote) Remove(context.Context, string) error { return nil }
