package rabbitmq

import "github.com/magabrotheeeer/render-ledger/internal/models"

// Exchange обменник, через который ходят все уведомления сервиса.
const Exchange = "notifications"

type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// GetNotificationQueues возвращает очереди по одной на каждый вид уведомления.
// Routing key совпадает с models.NotificationKind.
func GetNotificationQueues() []QueueConfig {
	kinds := []models.NotificationKind{
		models.NotificationVerification,
		models.NotificationReset,
		models.NotificationTrialEnding,
	}
	queues := make([]QueueConfig, 0, len(kinds))
	for _, k := range kinds {
		queues = append(queues, QueueConfig{
			QueueName:  Exchange + "." + string(k),
			RoutingKey: string(k),
		})
	}
	return queues
}
