package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/render-ledger/internal/lib/sl"
)

// MaxInFlight ограничивает число одновременно обрабатываемых сообщений одной очереди.
const MaxInFlight = 10

// Consumer канал, из которого читаются сообщения.
type Consumer interface {
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// ConsumerMessage запускает чтение очереди queueName в фоне до отмены ctx.
//
// Неудачное сообщение один раз возвращается в очередь. Если handler снова
// вернул ошибку на повторной доставке, сообщение отбрасывается.
func ConsumerMessage(ctx context.Context, ch Consumer, queueName string, log *slog.Logger, handler func([]byte) error) error {
	const op = "rabbitmq.ConsumerMessage"

	deliveries, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	log = log.With(slog.String("queue", queueName))
	sem := make(chan struct{}, MaxInFlight)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					log.Warn("delivery channel closed")
					return
				}
				sem <- struct{}{}
				go func() {
					defer func() { <-sem }()
					settle(d, handler(d.Body), log)
				}()
			}
		}
	}()
	return nil
}

func settle(d amqp.Delivery, handleErr error, log *slog.Logger) {
	if handleErr == nil {
		if err := d.Ack(false); err != nil {
			log.Error("failed to ack message", sl.Err(err))
		}
		return
	}

	requeue := !d.Redelivered
	if requeue {
		log.Warn("message handling failed, requeue", sl.Err(handleErr))
	} else {
		log.Error("message handling failed again, dropping", sl.Err(handleErr))
	}
	if err := d.Nack(false, requeue); err != nil {
		log.Error("failed to nack message", sl.Err(err))
	}
}
