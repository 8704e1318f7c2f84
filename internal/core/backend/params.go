package backend

import (
	"errors"
	"fmt"

	"github.com/vietddude/harvester/internal/core/domain"
)

// ErrInvalidArguments is returned when a backend cannot be called with the
// given argument bag. Retrying does not help, so jobs never retry it.
var ErrInvalidArguments = errors.New("invalid backend arguments")

// Bind returns the subset of args accepted by params. A missing required
// parameter fails with ErrInvalidArguments.
func Bind(params []Param, args domain.Args) (domain.Args, error) {
	bound := make(domain.Args, len(params))
	for _, p := range params {
		v, ok := args[p.Name]
		if !ok || v == nil {
			if p.Required {
				return nil, fmt.Errorf("%w: missing required parameter %q", ErrInvalidArguments, p.Name)
			}
			continue
		}
		bound[p.Name] = v
	}
	return bound, nil
}
