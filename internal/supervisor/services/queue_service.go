// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/mahiru/internal/logging"
	"github.com/tomtom215/mahiru/internal/recalc"
)

// QueueRunner is satisfied by *recalc.Queue.
type QueueRunner interface {
	Run(ctx context.Context) error
}

// QueueService runs the recalculation worker. A restart after an ordinary
// failure resumes the job that was executing. Corrupted queue state
// terminates the supervisor tree.
type QueueService struct {
	queue QueueRunner
	name  string
}

// NewQueueService wraps queue.
func NewQueueService(queue QueueRunner) *QueueService {
	return &QueueService{queue: queue, name: "recalc-worker"}
}

// Serve implements suture.Service.
func (s *QueueService) Serve(ctx context.Context) error {
	err := s.queue.Run(ctx)
	if errors.Is(err, recalc.ErrQueueCorrupted) {
		logging.Error().Err(err).Msg("recalculation queue corrupted, stopping")
		return fmt.Errorf("%w: %w", suture.ErrTerminateSupervisorTree, err)
	}
	return err
}

func (s *QueueService) String() string {
	return s.name
}
