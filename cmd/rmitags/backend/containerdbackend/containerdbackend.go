package containerdbackend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/defaults"
	"github.com/containerd/containerd/images"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/pkg/transfer"
	"github.com/containerd/log"
	"github.com/containerd/platforms"
	"github.com/reproducible-containers/rmitags/cmd/rmitags/backend"
	"github.com/reproducible-containers/rmitags/cmd/rmitags/backend/imagestore"
	"github.com/reproducible-containers/rmitags/pkg/envutil"
	"github.com/reproducible-containers/rmitags/pkg/remover"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"
)

const Name = "containerd"

func AddFlags(flags *pflag.FlagSet) {
	flags.String("containerd-address", envutil.String("CONTAINERD_ADDRESS", defaultContainerdAddress()),
		envutil.Usage("containerd address", "CONTAINERD_ADDRESS"))
	flags.String("containerd-namespace", envutil.String("CONTAINERD_NAMESPACE", namespaces.Default),
		envutil.Usage("containerd namespace", "CONTAINERD_NAMESPACE"))
}

func defaultContainerdAddress() string {
	if runtime.GOOS == "linux" && os.Geteuid() != 0 {
		addr, err := rootlessContainerdAddress()
		if err != nil {
			log.L.WithError(err).Debug("Failed to get the address of the rootless containerd (not running?)")
		} else if addr != "" {
			return addr
		}
	}
	return defaults.DefaultAddress
}

func rootlessContainerdAddress() (string, error) {
	xdr := os.Getenv("XDG_RUNTIME_DIR")
	if xdr == "" {
		xdr = fmt.Sprintf("/run/user/%d", os.Geteuid())
	}
	childPidPath := filepath.Join(xdr, "containerd-rootless/child_pid")
	childPidB, err := os.ReadFile(childPidPath)
	if err != nil {
		return "", err
	}
	childPid, err := strconv.Atoi(strings.TrimSpace(string(childPidB)))
	if err != nil {
		return "", fmt.Errorf("failed to parse the content of %q (%q): %w", childPidPath, string(childPidB), err)
	}
	return filepath.Join(fmt.Sprintf("/proc/%d/root", childPid), defaults.DefaultAddress), nil
}

func New(cmd *cobra.Command, platMC platforms.MatchComparer) (backend.Backend, error) {
	flags := cmd.Flags()
	addr, err := flags.GetString("containerd-address")
	if err != nil {
		return nil, err
	}
	ns, err := flags.GetString("containerd-namespace")
	if err != nil {
		return nil, err
	}
	return newBackend(cmd.Context(), addr, ns, platMC)
}

func newBackend(ctx context.Context, addr, ns string, platMC platforms.MatchComparer) (backend.Backend, error) {
	if err := unix.Access(addr, unix.R_OK); err != nil {
		return nil, fmt.Errorf("failed to access containerd socket %q: %w", addr, err)
	}
	client, err := containerd.New(addr, containerd.WithDefaultNamespace(ns))
	if err != nil {
		return nil, fmt.Errorf("failed to create containerd client: %w", err)
	}
	if _, err := client.Version(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to containerd at %q: %w", addr, err)
	}
	return &containerdBackend{
		client: client,
		addr:   addr,
		store: &imagestore.Store{
			ImageStore:   client.ImageService(),
			ContentStore: client.ContentStore(),
			Platform:     platMC,
			DeleteOpts:   deleteOpts,
		},
	}, nil
}

// deleteOpts asks the daemon to collect unreferenced blobs right away when
// parents are to be pruned.
func deleteOpts(opts remover.RemoveOptions) []images.DeleteOpt {
	if opts.PruneParents {
		return []images.DeleteOpt{images.SynchronousDelete()}
	}
	return nil
}

type containerdBackend struct {
	client *containerd.Client
	addr   string
	store  *imagestore.Store
}

func (b *containerdBackend) Info() backend.Info {
	return backend.Info{
		Name:    Name,
		Address: b.addr,
	}
}

func (b *containerdBackend) Context(ctx context.Context) context.Context {
	// The client already carries the default namespace.
	return ctx
}

func (b *containerdBackend) RemoveImage(ctx context.Context, name string, opts remover.RemoveOptions) ([]remover.Item, error) {
	return b.store.RemoveImage(ctx, name, opts)
}

func (b *containerdBackend) Images(ctx context.Context) ([]backend.Image, error) {
	return b.store.Images(ctx)
}

func (b *containerdBackend) Transfer(ctx context.Context, source interface{}, destination interface{}, opts ...transfer.Opt) error {
	return b.client.Transfer(ctx, source, destination, opts...)
}

// MaybeGC is a no-op: the daemon collects garbage after each deletion.
func (b *containerdBackend) MaybeGC(ctx context.Context) error {
	return nil
}

func (b *containerdBackend) Close() error {
	return b.client.Close()
}
