// Package errs defines the error taxonomy the Orchestrator distinguishes
// when deciding an exit code: config failures are fatal before any work
// is enqueued, broker/ledger failures during drain are logged and do not
// by themselves kill the pool. The worker pool does not return those
// drain-time failures to the Orchestrator; they appear only in the log.
package errs

import "fmt"

// ConfigError wraps a missing or invalid configuration value.
type ConfigError struct {
	Key string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error (%s): %v", e.Key, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// BrokerError wraps a connect/declare/publish/ack failure against the
// work queue's broker.
type BrokerError struct {
	Op  string
	Err error
}

func (e *BrokerError) Error() string {
	return fmt.Sprintf("broker error during %s: %v", e.Op, e.Err)
}

func (e *BrokerError) Unwrap() error { return e.Err }

// LedgerError wraps an insert/update/connect failure against the task
// ledger. A BulkUpdate failure is not fatal on its own: the caller is
// expected to retain the batch and retry.
type LedgerError struct {
	Op  string
	Err error
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("ledger error during %s: %v", e.Op, e.Err)
}

func (e *LedgerError) Unwrap() error { return e.Err }

// TransientCancel marks cooperative cancellation routed through signal
// handling; the Orchestrator maps it to exit code 130 rather than the
// generic failure code 1.
type TransientCancel struct {
	Reason string
}

func (e *TransientCancel) Error() string {
	return fmt.Sprintf("operation cancelled: %s", e.Reason)
}
