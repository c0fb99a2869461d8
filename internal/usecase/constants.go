package usecase

import "time"

const (
	// DefaultTransactionTimeout is the maximum duration for a storage transaction
	// This prevents long-running transactions from blocking entry locks
	DefaultTransactionTimeout = 10 * time.Second

	// ExportArchivePrefix is the object key prefix of archived exports
	ExportArchivePrefix = "exports"
)
