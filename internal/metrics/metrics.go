// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	CORSDenied = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crm_cors_denied_total",
		Help: "Total number of requests rejected by origin admission",
	})

	QuotaRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_quota_rejected_total",
		Help: "Total number of requests rejected because a quota class was exhausted",
	}, []string{"class"})

	// Mail metrics
	MailSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_mail_sent_total",
		Help: "Total number of messages accepted by the SMTP relay",
	}, []string{"provider"})
	MailFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_mail_failed_total",
		Help: "Total number of messages that could not be delivered to the relay",
	}, []string{"provider"})
	MailReinit = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_mail_reinit_total",
		Help: "Total number of mail transport initialisations by outcome",
	}, []string{"outcome"})

	AttendanceFinalized = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crm_attendance_finalized_total",
		Help: "Total number of orphaned work sessions closed by the maintenance scheduler",
	})
)

func init() {
	prometheus.MustRegister(CORSDenied)
	prometheus.MustRegister(QuotaRejected)
	prometheus.MustRegister(MailSent)
	prometheus.MustRegister(MailFailed)
	prometheus.MustRegister(MailReinit)
	prometheus.MustRegister(AttendanceFinalized)
}
