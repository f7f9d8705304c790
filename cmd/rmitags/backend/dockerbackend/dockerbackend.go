package dockerbackend

import (
	"context"
	"fmt"

	"github.com/containerd/log"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/reproducible-containers/rmitags/cmd/rmitags/backend"
	"github.com/reproducible-containers/rmitags/pkg/dockerconfig"
	"github.com/reproducible-containers/rmitags/pkg/envutil"
	"github.com/reproducible-containers/rmitags/pkg/remover"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const Name = "docker"

func AddFlags(flags *pflag.FlagSet) {
	flags.String("docker-host", envutil.String("DOCKER_HOST", client.DefaultDockerHost),
		envutil.Usage("Docker daemon address", "DOCKER_HOST"))
	flags.String("docker-config", envutil.String("DOCKER_CONFIG", ""),
		envutil.Usage("Docker CLI config directory", "DOCKER_CONFIG"))
}

// APIClient is the subset of the Engine API used here.
type APIClient interface {
	ImageRemove(ctx context.Context, ref string, options image.RemoveOptions) ([]image.DeleteResponse, error)
	ImageList(ctx context.Context, options image.ListOptions) ([]image.Summary, error)
	DaemonHost() string
	Close() error
}

func New(cmd *cobra.Command) (backend.Backend, error) {
	flags := cmd.Flags()
	host, err := flags.GetString("docker-host")
	if err != nil {
		return nil, err
	}
	configDir, err := flags.GetString("docker-config")
	if err != nil {
		return nil, err
	}
	ctx := cmd.Context()
	headers, err := dockerconfig.HTTPHeaders(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load the Docker CLI config: %w", err)
	}
	return NewWithOpts(ctx,
		client.FromEnv,
		client.WithHost(host),
		client.WithHTTPHeaders(headers),
		client.WithAPIVersionNegotiation(),
	)
}

// NewWithOpts creates the backend and pings the daemon.
func NewWithOpts(ctx context.Context, opts ...client.Opt) (backend.Backend, error) {
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	ping, err := cli.Ping(ctx)
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("failed to connect to the Docker daemon at %q: %w", cli.DaemonHost(), err)
	}
	log.G(ctx).Debugf("Docker daemon %q (API %s, OS %s)", cli.DaemonHost(), ping.APIVersion, ping.OSType)
	return &dockerBackend{api: cli}, nil
}

type dockerBackend struct {
	api APIClient
}

func (b *dockerBackend) Info() backend.Info {
	return backend.Info{
		Name:    Name,
		Address: b.api.DaemonHost(),
	}
}

func (b *dockerBackend) Context(ctx context.Context) context.Context {
	return ctx
}

func (b *dockerBackend) RemoveImage(ctx context.Context, name string, opts remover.RemoveOptions) ([]remover.Item, error) {
	dels, err := b.api.ImageRemove(ctx, name, image.RemoveOptions{
		Force:         opts.Force,
		PruneChildren: opts.PruneParents,
	})
	if err != nil {
		return nil, remover.NormalizeError(err)
	}
	var items []remover.Item
	for _, d := range dels {
		if d.Untagged != "" {
			items = append(items, remover.Item{Kind: remover.Untagged, ID: d.Untagged})
		}
		if d.Deleted != "" {
			items = append(items, remover.Item{Kind: remover.Deleted, ID: d.Deleted})
		}
	}
	return items, nil
}

func (b *dockerBackend) Images(ctx context.Context) ([]backend.Image, error) {
	summaries, err := b.api.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return nil, err
	}
	var res []backend.Image
	for _, s := range summaries {
		if len(s.RepoTags) == 0 {
			res = append(res, backend.Image{ID: s.ID})
			continue
		}
		for _, tag := range s.RepoTags {
			res = append(res, backend.Image{Name: tag, ID: s.ID})
		}
	}
	return res, nil
}

// MaybeGC is a no-op: the daemon removes the layers of deleted images by itself.
func (b *dockerBackend) MaybeGC(ctx context.Context) error {
	return nil
}

func (b *dockerBackend) Close() error {
	return b.api.Close()
}
