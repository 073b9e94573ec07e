package contracts

import (
	"context"

	"github.com/julienschmidt/httprouter"
)

type Handler interface {
	RegisterRoutes(*httprouter.Router)
}

// Worker is a background loop that runs until ctx is cancelled.
type Worker interface {
	Start(ctx context.Context)
}

type WorkerFunc func(ctx context.Context)

func (f WorkerFunc) Start(ctx context.Context) { f(ctx) }
