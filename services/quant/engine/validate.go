// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// validate is the validator instance shared by all compute request types.
// Initialized in init() with custom validators.
var validate *validator.Validate

func init() {
	validate = validator.New()

	// "varname": field must be an identifier the formula grammar accepts.
	_ = validate.RegisterValidation("varname", func(fl validator.FieldLevel) bool {
		return ValidName(fl.Field().String())
	})
}

// ValidateStruct runs tag validation on a request struct.
//
// Validation failures are wrapped in ErrInvalidRequest so handlers can
// classify them without inspecting validator internals.
func ValidateStruct(s any) error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// =============================================================================
// Request Envelope
// =============================================================================

// RequestMeta is the identification envelope embedded in every API-facing
// request type.
//
// RequestID correlates a request across logs, traces, and the response;
// Timestamp is Unix milliseconds UTC at creation. Both are optional on
// the wire — EnsureDefaults fills them server-side when absent.
type RequestMeta struct {
	RequestID string `json:"request_id,omitempty" validate:"omitempty,uuid4"`
	Timestamp int64  `json:"timestamp,omitempty" validate:"omitempty,gt=0"`
}

// EnsureDefaults populates RequestID and Timestamp when the client did
// not provide them.
func (m *RequestMeta) EnsureDefaults() {
	if m.RequestID == "" {
		m.RequestID = uuid.NewString()
	}
	if m.Timestamp == 0 {
		m.Timestamp = time.Now().UnixMilli()
	}
}

// ResponseMeta is the identification envelope on every API-facing
// response: a server-generated ResponseID, the echoed RequestID, and the
// generation timestamp.
type ResponseMeta struct {
	ResponseID string `json:"response_id"`
	RequestID  string `json:"request_id,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

// NewResponseMeta builds a ResponseMeta echoing the given request ID.
func NewResponseMeta(requestID string) ResponseMeta {
	return ResponseMeta{
		ResponseID: uuid.NewString(),
		RequestID:  requestID,
		Timestamp:  time.Now().UnixMilli(),
	}
}
