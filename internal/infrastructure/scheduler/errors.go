package scheduler

import "github.com/erp/billing/internal/domain/shared"

// ErrRunInProgress is returned when a run is requested while one is executing
var ErrRunInProgress = shared.NewDomainError("RUN_IN_PROGRESS", "recurring generation is already running")
