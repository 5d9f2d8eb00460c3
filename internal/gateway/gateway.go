// Package gateway defines the request/response and push contracts to the
// backend daemon that owns the physical model artifacts, plus HTTP-backed
// implementations of both. The reconciler depends only on the interfaces;
// tests substitute in-package fakes.
package gateway

import (
	"context"

	"modelsyncd/pkg/types"
)

// Commander is the request/response channel to the backend. Success on
// DownloadModel means "download accepted", not "download finished";
// completion arrives later on the event channel.
type Commander interface {
	ListModels(ctx context.Context) ([]types.Model, error)
	CurrentModel(ctx context.Context) (string, error)
	HasAnyModels(ctx context.Context) (bool, error)
	SetActiveModel(ctx context.Context, id string) error
	DownloadModel(ctx context.Context, id string) error
	CancelDownload(ctx context.Context, id string) error
	DeleteModel(ctx context.Context, id string) error
}

// EventSource delivers backend lifecycle pushes. Events are delivered
// at-least-once, in arbitrary order across types, and only after Subscribe
// has attached. The returned channel closes when ctx is canceled.
type EventSource interface {
	Subscribe(ctx context.Context) (<-chan types.Event, error)
}

// transportError: the call itself could not complete (network, decode).
type transportError struct {
	op  string
	err error
}

func (e transportError) Error() string { return e.op + ": " + e.err.Error() }
func (e transportError) Unwrap() error { return e.err }

// IsTransport reports whether err indicates the gateway call never reached
// a backend decision.
func IsTransport(err error) bool {
	for err != nil {
		if _, ok := err.(transportError); ok {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// rejectedError: the backend answered with an explicit failure status.
type rejectedError struct {
	op   string
	code int
	msg  string
}

func (e rejectedError) Error() string { return e.op + ": " + e.msg }

// IsBackendRejected reports whether err carries an explicit backend refusal.
func IsBackendRejected(err error) bool {
	for err != nil {
		if _, ok := err.(rejectedError); ok {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
