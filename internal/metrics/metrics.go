// Package metrics holds the Prometheus counters for desk assignment and
// ledger outcomes. They register with the default registry on import.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ---- Desks ---------------------------------------

	deskAssignments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "office_hub_desk_assignments_total",
		Help: "Desk saves by outcome",
	}, []string{"result"})

	DeskAssigned      = deskAssignments.WithLabelValues("ok")
	DeskConflicts     = deskAssignments.WithLabelValues("conflict")
	DeskInvalidNumber = deskAssignments.WithLabelValues("invalid")

	// ---- Ledger ---------------------------------------

	payments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "office_hub_payments_total",
		Help: "Payment operations by outcome",
	}, []string{"result"})

	PaymentsRecorded = payments.WithLabelValues("recorded")
	PaymentsRejected = payments.WithLabelValues("rejected")
	PaymentsReversed = payments.WithLabelValues("reversed")

	LedgerCorrections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "office_hub_ledger_corrections_total",
		Help: "Running totals corrected by the ledger auditor",
	})

	CollectedMinorUnits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "office_hub_collected_minor_units_total",
		Help: "Sum of recorded payment amounts in minor units",
	})
)
