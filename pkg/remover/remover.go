// Package remover removes an image across a set of tags, treating
// "image not found" as a warning rather than a failure.
package remover

import (
	"context"
	"errors"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"
)

type ItemKind string

const (
	Untagged ItemKind = "Untagged"
	Deleted  ItemKind = "Deleted"
)

// Item is a single artifact reported back by one removal call.
type Item struct {
	Kind ItemKind
	ID   string
}

type RemoveOptions struct {
	// Force removes the image even if it is referenced by stopped containers
	// or by several tags.
	Force bool
	// PruneParents also removes untagged parent images.
	PruneParents bool
}

// Client removes a single fully-qualified image name.
// Not-found conditions should be reported as errdefs.ErrNotFound, or in any
// form NormalizeError recognizes.
type Client interface {
	RemoveImage(ctx context.Context, name string, opts RemoveOptions) ([]Item, error)
}

type Status string

const (
	StatusRemoved  Status = "Removed"
	StatusNotFound Status = "NotFound"
	StatusFailed   Status = "Failed"
)

type Outcome struct {
	Status Status
	// Name is the fully-qualified name that was attempted.
	Name string
	// Item is set for StatusRemoved.
	Item Item
	Err  error
}

// removeOptions is the fixed policy: force, but keep untagged parents.
var removeOptions = RemoveOptions{
	Force:        true,
	PruneParents: false,
}

type Remover struct {
	client Client
}

func New(client Client) *Remover {
	return &Remover{client: client}
}

// RemoveAll removes rawRef (stripped of any tag) once per tag, in order.
//
// Not-found is logged as a warning and processing continues. Any other error
// stops processing; the outcomes gathered so far are returned along with an
// *OperationError. An *InputError is returned before any attempt when rawRef
// or one of the tags is invalid.
func (r *Remover) RemoveAll(ctx context.Context, rawRef string, tags []string) ([]Outcome, error) {
	base, err := BaseName(rawRef)
	if err != nil {
		return nil, err
	}
	tags = EffectiveTags(tags)
	names := make([]string, len(tags))
	for i, tag := range tags {
		names[i], err = QualifiedName(base, tag)
		if err != nil {
			return nil, err
		}
	}

	var outcomes []Outcome
	for _, name := range names {
		log.G(ctx).Infof("Removing -f %s", name)
		items, err := r.client.RemoveImage(ctx, name, removeOptions)
		if err = NormalizeError(err); err != nil {
			if errors.Is(err, errdefs.ErrNotFound) {
				log.G(ctx).WithError(err).Warnf("Image %q doesn't exist and cannot be deleted - ignoring", name)
				outcomes = append(outcomes, Outcome{Status: StatusNotFound, Name: name})
				continue
			}
			opErr := &OperationError{Name: name, Err: err}
			outcomes = append(outcomes, Outcome{Status: StatusFailed, Name: name, Err: opErr})
			return outcomes, opErr
		}
		if len(items) == 0 {
			log.G(ctx).Debugf("Removed %s (no artifacts reported)", name)
			outcomes = append(outcomes, Outcome{Status: StatusRemoved, Name: name})
			continue
		}
		for _, item := range items {
			log.G(ctx).Infof("Removed: %s", item.ID)
			outcomes = append(outcomes, Outcome{Status: StatusRemoved, Name: name, Item: item})
		}
	}
	return outcomes, nil
}
