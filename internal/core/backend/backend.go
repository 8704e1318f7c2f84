// Package backend defines the contract data-collector backends implement and
// the static registry jobs resolve them from.
//
// A backend is described by a Descriptor: capability flags, the parameter
// names its constructor and production methods accept, and a factory. Jobs
// never introspect backends; they bind the generic argument bag against the
// declared Signature and hand each call only what it accepts.
package backend

import (
	"context"
	"iter"

	"github.com/vietddude/harvester/internal/core/domain"
)

// Backend is a constructed backend instance able to produce items.
type Backend interface {
	// Fetch produces items from the live data source.
	Fetch(ctx context.Context, args domain.Args) iter.Seq2[domain.Item, error]

	// FetchFromCache replays items previously stored in the cache.
	FetchFromCache(ctx context.Context, args domain.Args) iter.Seq2[domain.Item, error]
}

// Descriptor is the capability-queryable handle to a named backend.
type Descriptor interface {
	// Name is the registry key of the backend.
	Name() string

	// HasCaching reports whether the backend can store and replay raw data.
	HasCaching() bool

	// HasResuming reports whether a failed run can restart from progress.
	HasResuming() bool

	// Signature returns the parameters each operation accepts.
	Signature() Signature

	// New constructs an instance from arguments already bound to Signature().Init.
	New(args domain.Args) (Backend, error)
}

// Param is one accepted argument name.
type Param struct {
	Name     string
	Required bool
}

// Signature lists the accepted parameters of a backend's operations.
type Signature struct {
	Init           []Param
	Fetch          []Param
	FetchFromCache []Param
}

// Required is a shorthand for a mandatory parameter.
func Required(name string) Param { return Param{Name: name, Required: true} }

// Optional is a shorthand for an optional parameter.
func Optional(name string) Param { return Param{Name: name} }
