// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/mahiru/internal/notify"
	"github.com/tomtom215/mahiru/internal/validation"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// OriginRequest is the requester context carried through to notifications.
type OriginRequest struct {
	Kind        string `json:"kind" validate:"omitempty,oneof=discord http system"`
	ChannelID   string `json:"channel_id" validate:"max=64"`
	MessageID   string `json:"message_id" validate:"max=64"`
	RequesterID string `json:"requester_id" validate:"max=64"`
	Locale      string `json:"locale" validate:"omitempty,max=16"`
}

func (o *OriginRequest) toOrigin() notify.Origin {
	if o == nil {
		return notify.Origin{Kind: "http"}
	}
	kind := o.Kind
	if kind == "" {
		kind = "http"
	}
	return notify.Origin{
		Kind:        kind,
		ChannelID:   o.ChannelID,
		MessageID:   o.MessageID,
		RequesterID: o.RequesterID,
		Locale:      o.Locale,
	}
}

// RecalcRequest is the body of POST /api/v1/recalc.
type RecalcRequest struct {
	UserID string         `json:"user_id" validate:"required,playerid"`
	Rework string         `json:"rework" validate:"required,rework"`
	Origin *OriginRequest `json:"origin"`
}

// SweepRequest is the body of POST /api/v1/recalc/sweep.
type SweepRequest struct {
	Rework string         `json:"rework" validate:"required,rework"`
	Origin *OriginRequest `json:"origin"`
}

// ActiveReworkRequest is the body of PUT /api/v1/rework/active. An empty
// name leaves only "live" enabled.
type ActiveReworkRequest struct {
	Name string `json:"name" validate:"omitempty,rework"`
}

var errEmptyBody = errors.New("request body is empty")

// decodeAndValidate reads a JSON body into dst and validates it. On failure
// it writes the error response and returns false.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			err = errEmptyBody
		}
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest,
			fmt.Sprintf("invalid JSON body: %v", err), nil, err)
		return false
	}

	if verr := validation.ValidateStruct(dst); verr != nil {
		apiErr := verr.ToAPIError()
		respondError(w, r, http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details, verr)
		return false
	}
	return true
}
