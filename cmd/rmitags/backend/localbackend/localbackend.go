package localbackend

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/containerd/containerd/content"
	contentlocal "github.com/containerd/containerd/content/local"
	"github.com/containerd/containerd/images"
	"github.com/containerd/containerd/metadata"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/pkg/transfer"
	transferlocal "github.com/containerd/containerd/pkg/transfer/local"
	"github.com/containerd/log"
	"github.com/containerd/platforms"
	"github.com/opencontainers/go-digest"
	"github.com/reproducible-containers/rmitags/cmd/rmitags/backend"
	"github.com/reproducible-containers/rmitags/cmd/rmitags/backend/imagestore"
	"github.com/reproducible-containers/rmitags/pkg/envutil"
	"github.com/reproducible-containers/rmitags/pkg/remover"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.etcd.io/bbolt"
)

const (
	Name      = "local"
	Namespace = "rmitags"
)

func AddFlags(flags *pflag.FlagSet) {
	flags.String("local-cache", envutil.String("RMITAGS_LOCAL_CACHE", defaultLocalCache()),
		envutil.Usage("local cache", "RMITAGS_LOCAL_CACHE"))
}

func defaultLocalCache() string {
	if os.Geteuid() != 0 {
		ucd, err := os.UserCacheDir()
		if err != nil || ucd == "" {
			log.L.WithError(err).Warn("failed to get user cache dir")
		} else {
			return filepath.Join(ucd, "rmitags")
		}
	}
	return "/var/cache/rmitags"
}

func New(cmd *cobra.Command, platMC platforms.MatchComparer) (backend.Backend, error) {
	flags := cmd.Flags()
	dir, err := flags.GetString("local-cache")
	if err != nil {
		return nil, err
	}
	return Open(dir, platMC)
}

// Open opens (creating if needed) the cache in dir.
func Open(dir string, platMC platforms.MatchComparer) (*LocalBackend, error) {
	labelsDir := filepath.Join(dir, "labels")
	for _, f := range []string{dir, labelsDir} {
		if err := os.MkdirAll(f, 0700); err != nil {
			return nil, err
		}
	}
	contentStore, err := contentlocal.NewLabeledStore(dir, &labelStore{dir: labelsDir})
	if err != nil {
		return nil, err
	}
	dbRaw, err := bbolt.Open(filepath.Join(dir, "rmitags.db"), 0644, nil)
	if err != nil {
		return nil, err
	}
	b := &LocalBackend{
		dir:   dir,
		ns:    Namespace,
		dbRaw: dbRaw,
		db:    metadata.NewDB(dbRaw, contentStore, nil),
	}
	b.store = &imagestore.Store{
		ImageStore:   metadata.NewImageStore(b.db),
		ContentStore: b.db.ContentStore(),
		Platform:     platMC,
	}
	// Blobs go through the metadata content store so that GC can see them.
	b.transferrer = transferlocal.NewTransferService(metadata.NewLeaseManager(b.db),
		b.store.ContentStore,
		b.store.ImageStore,
		&transferlocal.TransferConfig{},
	)
	return b, nil
}

// LocalBackend stores images in a bbolt metadata database under a cache directory.
// Images get there with the load command.
//
// Removing an image leaves its blobs in the cache until MaybeGC is called.
type LocalBackend struct {
	dir         string
	ns          string
	dbRaw       *bbolt.DB
	db          *metadata.DB
	store       *imagestore.Store
	transferrer transfer.Transferrer
}

func (b *LocalBackend) Info() backend.Info {
	return backend.Info{
		Name:    Name,
		Address: b.dir,
	}
}

func (b *LocalBackend) Context(ctx context.Context) context.Context {
	return namespaces.WithNamespace(ctx, b.ns)
}

func (b *LocalBackend) ImageService() images.Store {
	return b.store.ImageStore
}

func (b *LocalBackend) ContentStore() content.Store {
	return b.store.ContentStore
}

func (b *LocalBackend) Transfer(ctx context.Context, source interface{}, destination interface{}, opts ...transfer.Opt) error {
	return b.transferrer.Transfer(ctx, source, destination, opts...)
}

// RemoveImage removes the image. With PruneParents, the blobs that are no
// longer referenced are collected right away.
func (b *LocalBackend) RemoveImage(ctx context.Context, name string, opts remover.RemoveOptions) ([]remover.Item, error) {
	items, err := b.store.RemoveImage(ctx, name, opts)
	if err != nil {
		return nil, err
	}
	if opts.PruneParents {
		if gcErr := b.MaybeGC(ctx); gcErr != nil {
			log.G(ctx).WithError(gcErr).Warn("Failed to do GC")
		}
	}
	return items, nil
}

func (b *LocalBackend) Images(ctx context.Context) ([]backend.Image, error) {
	return b.store.Images(ctx)
}

func (b *LocalBackend) Close() error {
	return b.dbRaw.Close()
}

func (b *LocalBackend) MaybeGC(ctx context.Context) error {
	stats, err := b.db.GarbageCollect(ctx)
	if err != nil {
		return err
	}
	log.G(ctx).Debugf("GC took %s", stats.Elapsed())
	return nil
}

// labelStore keeps content labels as JSON files, one per digest.
// TODO: flock, so that concurrent rmitags processes sharing a cache do not race.
type labelStore struct {
	dir string
	mu  sync.RWMutex
}

func (ls *labelStore) filepath(d digest.Digest) string {
	return filepath.Join(ls.dir, filepath.Clean(d.Algorithm().String()), filepath.Clean(d.Encoded()))
}

func (ls *labelStore) Get(d digest.Digest) (map[string]string, error) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	return ls.getUnlocked(d)
}

func (ls *labelStore) getUnlocked(d digest.Digest) (map[string]string, error) {
	b, err := os.ReadFile(ls.filepath(d))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var m map[string]string
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (ls *labelStore) Set(d digest.Digest, m map[string]string) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.setUnlocked(d, m)
}

func (ls *labelStore) setUnlocked(d digest.Digest, m map[string]string) error {
	f := ls.filepath(d)
	if len(m) == 0 {
		return os.RemoveAll(f)
	}
	if err := os.MkdirAll(filepath.Dir(f), 0700); err != nil {
		return err
	}
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(f, b, 0600)
}

func (ls *labelStore) Update(d digest.Digest, m map[string]string) (map[string]string, error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	mm, err := ls.getUnlocked(d)
	if err != nil {
		return nil, err
	}
	if mm == nil {
		mm = make(map[string]string)
	}
	for k, v := range m {
		if v == "" {
			delete(mm, k)
		} else {
			mm[k] = v
		}
	}
	return mm, ls.setUnlocked(d, mm)
}
