package rabbitmq

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
)

type recordingAck struct {
	mu     sync.Mutex
	acked  []uint64
	nacked map[uint64]bool
}

func newRecordingAck() *recordingAck {
	return &recordingAck{nacked: make(map[uint64]bool)}
}

func (a *recordingAck) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *recordingAck) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked[tag] = requeue
	return nil
}

func (a *recordingAck) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestDispatch_AckAndNack(t *testing.T) {
	ack := newRecordingAck()
	deliveries := make(chan amqp.Delivery, 3)
	deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: []byte("ok")}
	deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 2, Body: []byte("fail")}
	deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 3, Body: []byte("fail"), Redelivered: true}
	close(deliveries)

	var wg sync.WaitGroup
	wg.Add(3)
	handler := func(_ context.Context, body []byte) error {
		defer wg.Done()
		if string(body) == "fail" {
			return errors.New("smtp unavailable")
		}
		return nil
	}

	Dispatch(context.Background(), deliveries, 2, newNoopLogger(), handler)
	wg.Wait()

	assert.Eventually(t, func() bool {
		ack.mu.Lock()
		defer ack.mu.Unlock()
		return len(ack.acked) == 1 && len(ack.nacked) == 2
	}, time.Second, 10*time.Millisecond)

	ack.mu.Lock()
	defer ack.mu.Unlock()
	assert.Equal(t, []uint64{1}, ack.acked)
	assert.True(t, ack.nacked[2], "first failure is requeued")
	assert.False(t, ack.nacked[3], "redelivered failure is dropped")
}

func TestDispatch_StopsOnContextCancel(t *testing.T) {
	deliveries := make(chan amqp.Delivery)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		Dispatch(ctx, deliveries, 1, newNoopLogger(), func(context.Context, []byte) error { return nil })
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatch did not stop after cancel")
	}
}
