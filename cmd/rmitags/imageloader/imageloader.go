// Package imageloader imports image archives into a backend.
package imageloader

import (
	"context"
	"fmt"
	"io"

	"github.com/containerd/containerd/archive/compression"
	ctrimages "github.com/containerd/containerd/cmd/ctr/commands/images"
	"github.com/containerd/containerd/pkg/transfer"
	"github.com/containerd/containerd/pkg/transfer/archive"
	transimage "github.com/containerd/containerd/pkg/transfer/image"
	"github.com/containerd/log"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// namePrefix only applies to archive entries that carry a bare tag instead of
// a full image name.
const namePrefix = "import"

func wrapTransferProgressFunc(ctx context.Context, pf transfer.ProgressFunc) transfer.ProgressFunc {
	return func(p transfer.Progress) {
		log.G(ctx).Debugf("transfer progress %+v", p)
		pf(p)
	}
}

// Load imports a Docker or OCI archive, optionally compressed, keeping the
// image names recorded in the archive.
func Load(ctx context.Context, progress io.Writer, transferrer transfer.Transferrer, tarR io.Reader, plats []ocispec.Platform) error {
	decompressed, err := compression.DecompressStream(tarR)
	if err != nil {
		return err
	}
	defer decompressed.Close()
	iis := archive.NewImageImportStream(decompressed, "")

	is := transimage.NewStore("",
		transimage.WithPlatforms(plats...),
		transimage.WithAllMetadata,
		transimage.WithNamedPrefix(namePrefix, true),
	)

	pf, done := ctrimages.ProgressHandler(ctx, progress)
	defer done()

	if err := transferrer.Transfer(ctx, iis, is, transfer.WithProgress(wrapTransferProgressFunc(ctx, pf))); err != nil {
		return fmt.Errorf("failed to load: %w", err)
	}
	return nil
}
