// Package imagestore implements removal and listing on top of a containerd
// image store. It is shared by the containerd and local backends.
package imagestore

import (
	"context"
	"fmt"

	"github.com/containerd/containerd/content"
	"github.com/containerd/containerd/images"
	"github.com/containerd/log"
	"github.com/containerd/platforms"
	refdocker "github.com/distribution/reference"
	"github.com/reproducible-containers/rmitags/cmd/rmitags/backend"
	"github.com/reproducible-containers/rmitags/pkg/remover"
)

type Store struct {
	ImageStore   images.Store
	ContentStore content.Store
	// Platform restricts the images listing.
	Platform platforms.MatchComparer
	// DeleteOpts returns the options for removing an image.
	DeleteOpts func(opts remover.RemoveOptions) []images.DeleteOpt
}

// RemoveImage removes rawRef from the image store.
// Force has no meaning here: containerd does not track image users.
func (s *Store) RemoveImage(ctx context.Context, rawRef string, opts remover.RemoveOptions) ([]remover.Item, error) {
	ref, err := refdocker.ParseDockerRef(rawRef)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %q: %w", rawRef, err)
	}
	name := ref.String()
	img, err := s.ImageStore.Get(ctx, name)
	if err != nil {
		return nil, remover.NormalizeError(err)
	}
	var delOpts []images.DeleteOpt
	if s.DeleteOpts != nil {
		delOpts = s.DeleteOpts(opts)
	}
	if err := s.ImageStore.Delete(ctx, img.Name, delOpts...); err != nil {
		return nil, remover.NormalizeError(err)
	}
	dgst := img.Target.Digest
	items := []remover.Item{{Kind: remover.Untagged, ID: fmt.Sprintf("%s@%s", img.Name, dgst)}}

	remaining, err := s.ImageStore.List(ctx, fmt.Sprintf("target.digest==%q", dgst.String()))
	if err != nil {
		log.G(ctx).WithError(err).Warnf("Failed to check other references to %s", dgst)
	} else if len(remaining) == 0 {
		items = append(items, remover.Item{Kind: remover.Deleted, ID: dgst.String()})
	} else {
		log.G(ctx).Debugf("%s is still referenced by %d image(s)", dgst, len(remaining))
	}
	return items, nil
}

func (s *Store) Images(ctx context.Context) ([]backend.Image, error) {
	imgs, err := s.ImageStore.List(ctx)
	if err != nil {
		return nil, err
	}
	platMC := s.Platform
	if platMC == nil {
		platMC = platforms.All
	}
	var res []backend.Image
	for _, img := range imgs {
		row := backend.Image{Name: img.Name, ID: img.Target.Digest.String()}
		plats, err := images.Platforms(ctx, s.ContentStore, img.Target)
		if err != nil {
			log.G(ctx).WithError(err).Debugf("failed to get platforms for %q", img.Name)
			res = append(res, row)
			continue
		}
		for _, plat := range plats {
			if !platMC.Match(plat) {
				continue
			}
			if avail, _, _, _, _ := images.Check(ctx, s.ContentStore, img.Target, platforms.OnlyStrict(plat)); avail {
				row.Platform = platforms.Format(plat)
				res = append(res, row)
			}
		}
	}
	return res, nil
}
