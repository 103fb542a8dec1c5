// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

package validation

import (
	"strings"
	"testing"
)

type enqueueBody struct {
	UserID string `json:"user_id" validate:"required,playerid"`
	Rework string `json:"rework" validate:"required,rework"`
	Locale string `json:"locale,omitempty" validate:"omitempty,oneof=en ja"`
}

func TestGetValidator_Singleton(t *testing.T) {
	t.Parallel()

	if GetValidator() != GetValidator() {
		t.Error("GetValidator() should return the same instance")
	}
}

func TestValidateStruct(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		input      enqueueBody
		wantFields []string
	}{
		{"valid live", enqueueBody{UserID: "42", Rework: "live"}, nil},
		{"valid rework with punctuation", enqueueBody{UserID: "p_7-x", Rework: "aim-rebalance.2026"}, nil},
		{"valid locale", enqueueBody{UserID: "42", Rework: "live", Locale: "ja"}, nil},
		{"missing both", enqueueBody{}, []string{"user_id", "rework"}},
		{"table-prefixed user", enqueueBody{UserID: "player:42", Rework: "live"}, []string{"user_id"}},
		{"uppercase rework", enqueueBody{UserID: "42", Rework: "Live"}, []string{"rework"}},
		{"rework too long", enqueueBody{UserID: "42", Rework: strings.Repeat("a", 65)}, []string{"rework"}},
		{"unknown locale", enqueueBody{UserID: "42", Rework: "live", Locale: "fr"}, []string{"locale"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			verr := ValidateStruct(&tt.input)
			if len(tt.wantFields) == 0 {
				if verr != nil {
					t.Fatalf("ValidateStruct() = %v, want nil", verr)
				}
				return
			}
			if verr == nil {
				t.Fatal("ValidateStruct() = nil, want error")
			}
			var got []string
			for _, e := range verr.Errors() {
				got = append(got, e.Field())
			}
			if strings.Join(got, ",") != strings.Join(tt.wantFields, ",") {
				t.Errorf("failed fields = %v, want %v", got, tt.wantFields)
			}
		})
	}
}

func TestToAPIError(t *testing.T) {
	t.Parallel()

	single := ValidateStruct(&enqueueBody{UserID: "42"}).ToAPIError()
	if single.Code != CodeValidation {
		t.Errorf("Code = %q", single.Code)
	}
	if single.Message != "rework is required" {
		t.Errorf("Message = %q", single.Message)
	}
	if single.Details["field"] != "rework" {
		t.Errorf("Details = %v", single.Details)
	}

	multi := ValidateStruct(&enqueueBody{}).ToAPIError()
	fields, ok := multi.Details["fields"].([]map[string]interface{})
	if !ok || len(fields) != 2 {
		t.Fatalf("Details = %v, want two fields", multi.Details)
	}
	if !strings.Contains(multi.Message, "user_id is required") || !strings.Contains(multi.Message, "; ") {
		t.Errorf("Message = %q", multi.Message)
	}
}
