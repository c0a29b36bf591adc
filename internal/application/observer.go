package application

import (
	"time"

	"elamath/internal/domain"
)

type StageObserver interface {
	ObserveStage(stage domain.Stage, elapsed time.Duration, degraded bool)
}

type NoopObserver struct{}

func (n *NoopObserver) ObserveStage(_ domain.Stage, _ time.Duration, _ bool) {}
