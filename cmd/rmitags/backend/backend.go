package backend

import (
	"context"

	"github.com/reproducible-containers/rmitags/pkg/remover"
)

type Backend interface {
	Info() Info
	Context(context.Context) context.Context
	remover.Client
	Images(ctx context.Context) ([]Image, error)
	// MaybeGC collects blobs left unreferenced by removals, when the
	// backend does not do it by itself.
	MaybeGC(ctx context.Context) error
	Close() error
}

type Info struct {
	Name string `json:"Name"`
	// Address is the daemon endpoint or the cache directory.
	Address string `json:"Address,omitempty"`
}

// Image is a row of the images command.
type Image struct {
	Name     string
	ID       string
	Platform string
}
