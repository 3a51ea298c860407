package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/host-lifecycle/internal/lib/sl"
)

// Handler обрабатывает тело сообщения. Ошибка возвращает сообщение в очередь.
type Handler func(ctx context.Context, body []byte) error

// ConsumeQueue запускает потребителя очереди с ограничением параллелизма workers.
// Возвращается сразу; обработка прекращается при отмене ctx или закрытии канала.
func ConsumeQueue(ctx context.Context, ch *amqp.Channel, queueName string, workers int, log *slog.Logger, handler Handler) error {
	const op = "rabbitmq.ConsumeQueue"
	deliveries, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	go Dispatch(ctx, deliveries, workers, log.With(slog.String("queue", queueName)), handler)
	return nil
}

// Dispatch раздаёт доставки обработчику, не более workers одновременно.
func Dispatch(ctx context.Context, deliveries <-chan amqp.Delivery, workers int, log *slog.Logger, handler Handler) {
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			sem <- struct{}{}
			go func(d amqp.Delivery) {
				defer func() { <-sem }()
				settle(ctx, d.Acknowledger, d.DeliveryTag, d.Body, d.Redelivered, log, handler)
			}(d)
		case <-ctx.Done():
			return
		}
	}
}

func settle(ctx context.Context, ack amqp.Acknowledger, tag uint64, body []byte, redelivered bool, log *slog.Logger, handler Handler) {
	if err := handler(ctx, body); err != nil {
		// повторная неудача отправляется в никуда, чтобы не зациклить очередь
		requeue := !redelivered
		log.Error("failed to handle message", sl.Err(err), slog.Bool("requeue", requeue))
		if nackErr := ack.Nack(tag, false, requeue); nackErr != nil {
			log.Error("failed to nack message", sl.Err(nackErr))
		}
		return
	}
	if ackErr := ack.Ack(tag, false); ackErr != nil {
		log.Error("failed to ack message", sl.Err(ackErr))
	}
}
