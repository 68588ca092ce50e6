package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CapacityRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ticketcore_capacity_rejections_total",
		Help: "Reservations rejected because tier inventory was exhausted",
	})

	TicketsMinted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ticketcore_tickets_minted_total",
		Help: "Tickets successfully minted by the issuance pipeline",
	})

	IssuanceFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ticketcore_issuance_failures_total",
		Help: "Issuance jobs that exhausted their retry ceiling",
	})

	TicketsTransferred = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ticketcore_tickets_transferred_total",
		Help: "Tickets moved to self-custody wallets",
	})

	MigrationsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticketcore_migrations_finished_total",
		Help: "Wallet migrations reaching a terminal state",
	}, []string{"state"})

	QueueJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticketcore_queue_jobs_total",
		Help: "Queue jobs processed by outcome",
	}, []string{"kind", "outcome"})
)
