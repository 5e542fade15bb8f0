package services

import "errors"

var (
	// ErrNoFinancialData is returned when a located client has no ledger data at all.
	ErrNoFinancialData = errors.New("no financial data found for client")
	// ErrDiscrepancyBlocked is returned when generation is refused because the
	// balances disagree and the discrepancy policy does not allow it.
	ErrDiscrepancyBlocked = errors.New("balance discrepancy blocks generation")
	ErrTaskNotFound       = errors.New("task not found")
	ErrQueueFull          = errors.New("task queue is full")
	ErrServiceClosed      = errors.New("service is shut down")
)
