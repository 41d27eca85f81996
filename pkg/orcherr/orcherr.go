// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package orcherr defines the typed error taxonomy shared across the
// orchestration runtime. Each kind wraps an underlying cause so callers can
// use errors.Is/errors.As while tool invocations format the same errors into
// annotated observation strings for the agent's language model.
package orcherr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error categories the runtime propagates.
type Kind string

const (
	KindConfiguration  Kind = "configuration"
	KindTransport      Kind = "transport"
	KindTimeout        Kind = "timeout"
	KindProtocol       Kind = "protocol"
	KindAdaptor        Kind = "adaptor"
	KindPlan           Kind = "plan"
	KindPolicyViolation Kind = "policy_violation"
	KindJob            Kind = "job"
)

// Error is the concrete type behind every sentinel-constructor below. It
// carries a Kind for programmatic dispatch, an optional Server/Tool for
// context, and the wrapped cause.
type Error struct {
	Kind   Kind
	Server string
	Tool   string
	Msg    string
	Cause  error
}

func (e *Error) Error() string {
	var ctx string
	switch {
	case e.Server != "" && e.Tool != "":
		ctx = fmt.Sprintf(" [server=%s tool=%s]", e.Server, e.Tool)
	case e.Server != "":
		ctx = fmt.Sprintf(" [server=%s]", e.Server)
	case e.Tool != "":
		ctx = fmt.Sprintf(" [tool=%s]", e.Tool)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s%s: %s: %v", e.Kind, ctx, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s%s: %s", e.Kind, ctx, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, orcherr.Sentinel(orcherr.KindConfiguration)) style
// matching against a bare Kind value wrapped as an error via the
// kindSentinel type below, and matches any *Error of the same Kind.
func (e *Error) Is(target error) bool {
	var ks kindSentinel
	if errors.As(target, &ks) {
		return e.Kind == Kind(ks)
	}
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

type kindSentinel Kind

func (k kindSentinel) Error() string { return string(k) }

// Sentinel returns an error value usable with errors.Is to test a Kind,
// e.g. errors.Is(err, orcherr.Sentinel(orcherr.KindTimeout)).
func Sentinel(k Kind) error { return kindSentinel(k) }

func newErr(k Kind, msg string, cause error) *Error {
	return &Error{Kind: k, Msg: msg, Cause: cause}
}

func Configuration(msg string, cause error) *Error { return newErr(KindConfiguration, msg, cause) }

func Transport(server, msg string, cause error) *Error {
	e := newErr(KindTransport, msg, cause)
	e.Server = server
	return e
}

func Timeout(msg string, cause error) *Error { return newErr(KindTimeout, msg, cause) }

func Protocol(server, msg string, cause error) *Error {
	e := newErr(KindProtocol, msg, cause)
	e.Server = server
	return e
}

func Adaptor(tool, msg string, cause error) *Error {
	e := newErr(KindAdaptor, msg, cause)
	e.Tool = tool
	return e
}

func Plan(msg string, cause error) *Error { return newErr(KindPlan, msg, cause) }

func PolicyViolation(msg string, cause error) *Error {
	return newErr(KindPolicyViolation, msg, cause)
}

func Job(msg string, cause error) *Error { return newErr(KindJob, msg, cause) }

// As reports whether err (or something it wraps) is an *Error of the given
// kind, returning the typed value for field access.
func As(err error, k Kind) (*Error, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return nil, false
	}
	if e.Kind != k {
		return nil, false
	}
	return e, true
}
