// Package fusefs mounts a parsed archive read-only as a FUSE filesystem,
// mirroring this module's own archive-over-FUSE mount option-struct shape.
package fusefs

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/zipline/zipline"
	"github.com/zipline/zipline/vfs"
)

// Options configures the FUSE mount.
type Options struct {
	// Mountpoint is the directory where the filesystem is mounted.
	Mountpoint string

	// Reader supplies entry metadata and decompressed content.
	Reader *zipline.Reader

	// Tree is the archive's path hierarchy, as built by vfs.FromEntries.
	// If nil, Mount builds one from Reader.Entries().
	Tree *vfs.Tree

	// Password decrypts AES-encrypted entries on read. Leave empty if
	// the archive carries no encrypted entries.
	Password string

	// EntryTimeout and AttrTimeout bound kernel metadata caching; both
	// default to one second when zero, since the mounted archive never
	// changes out from under the filesystem once parsed.
	EntryTimeout time.Duration
	AttrTimeout  time.Duration

	// AllowOther permits other users to access the mount. Requires
	// user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Logger receives diagnostic messages. If nil, a no-op logger is used.
	Logger *slog.Logger
}

// Mount mounts the archive FUSE filesystem at options.Mountpoint. The
// caller must call Unmount on the returned *fuse.Server when done. The
// mountpoint directory is created if it does not exist.
func Mount(options Options) (*fuse.Server, error) {
	if options.Mountpoint == "" {
		return nil, fmt.Errorf("vfs/fusefs: mountpoint is required")
	}
	if options.Reader == nil {
		return nil, fmt.Errorf("vfs/fusefs: reader is required")
	}
	if options.Tree == nil {
		entries, err := options.Reader.Entries()
		if err != nil {
			return nil, fmt.Errorf("vfs/fusefs: listing entries: %w", err)
		}
		options.Tree = vfs.FromEntries(entries)
	}
	if options.EntryTimeout == 0 {
		options.EntryTimeout = time.Second
	}
	if options.AttrTimeout == 0 {
		options.AttrTimeout = time.Second
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	}

	if err := os.MkdirAll(options.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("vfs/fusefs: creating mountpoint %s: %w", options.Mountpoint, err)
	}

	root := &dirNode{options: &options, treeID: vfs.RootID}

	entryTimeout := options.EntryTimeout
	attrTimeout := options.AttrTimeout
	server, err := gofuse.Mount(options.Mountpoint, root, &gofuse.Options{
		EntryTimeout: &entryTimeout,
		AttrTimeout:  &attrTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     "zipline",
			Name:       "zipline",
			AllowOther: options.AllowOther,
			Options:    []string{"ro"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("vfs/fusefs: mounting at %s: %w", options.Mountpoint, err)
	}

	options.Logger.Info("archive mounted read-only", "mountpoint", options.Mountpoint)
	return server, nil
}

// dirNode represents one vfs.Tree directory node.
type dirNode struct {
	gofuse.Inode
	options *Options
	treeID  int
}

var _ gofuse.InodeEmbedder = (*dirNode)(nil)
var _ gofuse.NodeOnAdder = (*dirNode)(nil)

// OnAdd materialises this directory's children as persistent inodes the
// first time the kernel references it.
func (d *dirNode) OnAdd(ctx context.Context) {
	node := d.options.Tree.Node(d.treeID)
	if node == nil {
		return
	}
	for _, childID := range node.Children {
		child := d.options.Tree.Node(childID)
		if child == nil {
			continue
		}
		if child.Entry != nil {
			inode := d.NewPersistentInode(ctx, &fileNode{options: d.options, entry: child.Entry}, gofuse.StableAttr{Mode: syscall.S_IFREG})
			d.AddChild(child.Name, inode, true)
			continue
		}
		inode := d.NewPersistentInode(ctx, &dirNode{options: d.options, treeID: childID}, gofuse.StableAttr{Mode: syscall.S_IFDIR})
		d.AddChild(child.Name, inode, true)
	}
}

// fileNode represents one archive entry. Content is extracted lazily on
// first Open and cached for the node's lifetime, since re-running the
// codec pipeline on every read would defeat the point of a filesystem view.
type fileNode struct {
	gofuse.Inode
	options *Options
	entry   *zipline.Entry

	mu      sync.Mutex
	content []byte
	loaded  bool
}

var _ gofuse.InodeEmbedder = (*fileNode)(nil)
var _ gofuse.NodeGetattrer = (*fileNode)(nil)
var _ gofuse.NodeOpener = (*fileNode)(nil)
var _ gofuse.NodeReader = (*fileNode)(nil)

func (f *fileNode) Getattr(ctx context.Context, fh gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = syscall.S_IFREG | 0o444
	out.Size = f.entry.UncompressedSize
	out.Mtime = uint64(f.entry.ModTime.Unix())
	return 0
}

func (f *fileNode) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, 0, syscall.EROFS
	}
	if err := f.ensureContent(); err != nil {
		f.options.Logger.Error("failed to extract entry", "name", f.entry.Name, "error", err)
		return nil, 0, syscall.EIO
	}
	return nil, fuse.FOPEN_KEEP_CACHE, 0
}

func (f *fileNode) Read(ctx context.Context, fh gofuse.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	if err := f.ensureContent(); err != nil {
		return nil, syscall.EIO
	}
	if off >= int64(len(f.content)) {
		return fuse.ReadResultData(nil), 0
	}
	end := off + int64(len(dest))
	if end > int64(len(f.content)) {
		end = int64(len(f.content))
	}
	return fuse.ReadResultData(f.content[off:end]), 0
}

func (f *fileNode) ensureContent() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loaded {
		return nil
	}
	var opts []zipline.ExtractOption
	if f.options.Password != "" {
		opts = append(opts, zipline.WithPassword(f.options.Password))
	}
	var buf bytes.Buffer
	if err := f.options.Reader.Extract(f.entry, &buf, opts...); err != nil {
		return err
	}
	f.content = buf.Bytes()
	f.loaded = true
	return nil
}
