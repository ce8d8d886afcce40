package queue

import (
	"log/slog"

	"github.com/maheshrc27/brandcast/internal/service"
)

type Queue struct {
	dispatcher  service.Dispatcher
	reconcile   service.ReconcileService
	credentials service.CredentialService
	clock       service.Clock
	logger      *slog.Logger
}

func NewQueue(
	dispatcher service.Dispatcher,
	reconcile service.ReconcileService,
	credentials service.CredentialService,
	clock service.Clock,
	logger *slog.Logger) *Queue {
	return &Queue{
		dispatcher:  dispatcher,
		reconcile:   reconcile,
		credentials: credentials,
		clock:       clock,
		logger:      logger,
	}
}

const (
	TaskTypeDispatch           = "dispatch:run"
	TaskTypeReconcileOverdue   = "reconcile:overdue"
	TaskTypeReconcileOrphans   = "reconcile:orphans"
	TaskTypeCredentialsRefresh = "credentials:refresh"
)

// RunPayload optionally pins the instant a run evaluates. Periodic tasks
// carry no payload and run at the time they are processed.
type RunPayload struct {
	Now string `json:"now,omitempty"`
}
