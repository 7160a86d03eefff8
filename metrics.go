package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reservationsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockhold_reservations_created_total",
		Help: "Reservations successfully created.",
	})

	reservationsCommittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockhold_reservations_committed_total",
		Help: "Reservations converted into permanent stock deductions.",
	})

	reservationsReleasedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockhold_reservations_released_total",
		Help: "Reservations returned to the pool, by cause.",
	}, []string{"cause"}) // cancel | sweep

	insufficientStockTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockhold_insufficient_stock_total",
		Help: "Reservation attempts rejected for insufficient stock.",
	})
)
