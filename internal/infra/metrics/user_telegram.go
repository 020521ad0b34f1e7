package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		telegramCommandsReceivedTotal,
		telegramUnauthorizedTotal,
		telegramRepliesTotal,
		adminCommandTotal,
	)
}

var (
	telegramCommandsReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_commands_received_total",
			Help: "Counts incoming messages, commands, callbacks and inline queries.",
		},
		[]string{"command"},
	)

	telegramUnauthorizedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "telegram_unauthorized_total",
			Help: "Total number of updates rejected by the allow-list.",
		},
	)

	telegramRepliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_replies_total",
			Help: "Outgoing replies by result.",
		},
		[]string{"result"}, // 'sent', 'failed'
	)

	adminCommandTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admin_command_total",
			Help: "Tracks attempts to use admin commands.",
		},
		[]string{"command", "status"}, // status: 'authorized', 'unauthorized'
	)
)

func IncTelegramCommand(command string) {
	telegramCommandsReceivedTotal.WithLabelValues(norm(command)).Inc()
}

func IncUnauthorized() {
	telegramUnauthorizedTotal.Inc()
}

func IncReply(ok bool) {
	result := "sent"
	if !ok {
		result = "failed"
	}
	telegramRepliesTotal.WithLabelValues(result).Inc()
}

func IncAdminCommand(command, status string) {
	adminCommandTotal.WithLabelValues(norm(command), norm(status)).Inc()
}
