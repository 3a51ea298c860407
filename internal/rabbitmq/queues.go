package rabbitmq

// Exchange обменник для почтовых заданий.
const Exchange = "notifications"

// Маршруты почтовых заданий.
const (
	RoutingKeyEmail = "email"
	QueueEmail      = "notifications.email"
)

// QueueConfig очередь и ключ маршрутизации, которым она привязана к обменнику.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// MailQueues очереди, которые объявляют отправитель и получатели почтовых заданий.
func MailQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: QueueEmail, RoutingKey: RoutingKeyEmail},
	}
}
