// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

// Package validation validates API request bodies with go-playground/validator.
//
// A single validator instance is shared process-wide. Field names in errors
// are taken from json tags so messages match the request body the client
// sent. Two custom tags are registered:
//
//   - rework: a rework name such as "live" or "aim-rebalance-2026"
//   - playerid: a player key without a table prefix
//
// Usage:
//
//	type EnqueueRequest struct {
//	    UserID string `json:"user_id" validate:"required,playerid"`
//	    Rework string `json:"rework" validate:"required,rework"`
//	}
//
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    apiErr := verr.ToAPIError()
//	    ...
//	}
package validation
