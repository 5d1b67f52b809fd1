package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var messageOutcomeCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_messages_processed",
	Help: "Number of inbound messages by terminal outcome",
}, []string{"outcome"})

var commandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "warden_command_duration_sec",
	Help: "Duration of command execution",
}, []string{"command"})

var spamVerdictCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_spam_verdicts",
	Help: "Number of messages flagged by the abuse detector",
}, []string{"reason"})

var punitiveActionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_punitive_action_errors",
	Help: "Number of failed delete or mute calls",
}, []string{"action"})

var aliasTemplateCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_alias_templates",
	Help: "Alias resolutions by template handling",
}, []string{"status"})

var droppedMessages = promauto.NewCounter(prometheus.CounterOpts{
	Name: "warden_messages_dropped",
	Help: "Messages discarded because the dispatcher was stopping or overloaded",
})

// RegisterStateGauges exposes the size of the in-memory governance state.
func RegisterStateGauges(reg prometheus.Registerer, trackedSenders, cooldownKeys func() int) {
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "warden_antispam_tracked_senders",
			Help: "Senders with live abuse detector state",
		}, func() float64 { return float64(trackedSenders()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "warden_cooldown_keys",
			Help: "Tracked cooldown keys",
		}, func() float64 { return float64(cooldownKeys()) }),
	)
}
