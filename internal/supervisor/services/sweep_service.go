// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

package services

import "context"

// SweepServer is satisfied by *sweep.Job.
type SweepServer interface {
	Serve(ctx context.Context) error
}

// SweepService runs the flagged-content sweep on its ticker. The sweep
// finishes its current page before Serve returns, so the tree's shutdown
// timeout must exceed the time one page takes.
type SweepService struct {
	job  SweepServer
	name string
}

// NewSweepService wraps job.
func NewSweepService(job SweepServer) *SweepService {
	return &SweepService{job: job, name: "flag-sweep"}
}

// Serve implements suture.Service.
func (s *SweepService) Serve(ctx context.Context) error {
	return s.job.Serve(ctx)
}

func (s *SweepService) String() string {
	return s.name
}
