package relocate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"dayrun/internal/config"
	"dayrun/internal/day"
	"dayrun/internal/fileutil"
)

// Target places a day's working directory somewhere and returns the final
// destination (path or URL).
type Target interface {
	Place(ctx context.Context, srcDir string, d day.Day) (string, error)
	String() string
}

// TargetOptions carries settings shared by every parsed target.
type TargetOptions struct {
	// BaseDirectory anchors relative directory and zip targets.
	BaseDirectory string
	ObjectStore   config.ObjectStore
}

// ParseTarget classifies value: "zip:" prefixes or a ".zip" suffix select a
// zip archive, "s3://bucket/prefix" selects the object store, anything else is
// a directory. Day placeholders stay unexpanded until Place.
func ParseTarget(value string, opts TargetOptions) (Target, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, errors.New("empty relocation target")
	}
	switch {
	case strings.HasPrefix(value, "s3://"):
		bucket, prefix, _ := strings.Cut(strings.TrimPrefix(value, "s3://"), "/")
		if bucket == "" {
			return nil, fmt.Errorf("object store target %q has no bucket", value)
		}
		if strings.TrimSpace(opts.ObjectStore.Endpoint) == "" {
			return nil, fmt.Errorf("object store target %q requires output.object_store.endpoint", value)
		}
		return &ObjectTarget{Bucket: bucket, Prefix: strings.Trim(prefix, "/"), Store: opts.ObjectStore}, nil
	case strings.HasPrefix(value, "zip:"):
		return &ZipTarget{Template: resolve(strings.TrimPrefix(value, "zip:"), opts.BaseDirectory)}, nil
	case strings.HasSuffix(strings.ToLower(value), ".zip"):
		return &ZipTarget{Template: resolve(value, opts.BaseDirectory)}, nil
	default:
		return &DirectoryTarget{Template: resolve(value, opts.BaseDirectory)}, nil
	}
}

func resolve(p, base string) string {
	if filepath.IsAbs(p) {
		return p
	}
	if base != "" {
		return filepath.Join(base, p)
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// DirectoryTarget copies the tree into <dir>/<basename(src)>.
type DirectoryTarget struct {
	Template string
}

func (t *DirectoryTarget) String() string { return t.Template }

// Root returns the part of the destination that exists independent of the day.
func (t *DirectoryTarget) Root() string { return day.StaticDir(t.Template) }

// Dir returns the expanded destination parent for d.
func (t *DirectoryTarget) Dir(d day.Day) string { return day.Expand(t.Template, d) }

// Place copies srcDir into a temp sibling of the destination and renames it
// into place, replacing an existing destination.
func (t *DirectoryTarget) Place(ctx context.Context, srcDir string, d day.Day) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	parent := t.Dir(d)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", fmt.Errorf("create destination directory: %w", err)
	}
	base := filepath.Base(filepath.Clean(srcDir))
	dest := filepath.Join(parent, base)

	tmp, err := os.MkdirTemp(parent, "."+base+".dayrun-tmp-")
	if err != nil {
		return "", fmt.Errorf("create staging directory: %w", err)
	}
	if _, err := fileutil.CopyTree(srcDir, tmp); err != nil {
		_ = os.RemoveAll(tmp)
		return "", err
	}

	var old string
	if _, err := os.Lstat(dest); err == nil {
		old = tmp + ".old"
		if err := os.Rename(dest, old); err != nil {
			_ = os.RemoveAll(tmp)
			return "", fmt.Errorf("move aside existing destination: %w", err)
		}
	}
	if err := os.Rename(tmp, dest); err != nil {
		if old != "" {
			_ = os.Rename(old, dest)
		}
		_ = os.RemoveAll(tmp)
		return "", fmt.Errorf("rename staged copy: %w", err)
	}
	if old != "" {
		_ = os.RemoveAll(old)
	}
	_ = fileutil.SyncDir(parent)
	return dest, nil
}

// ZipTarget writes the tree to a zip archive. Entries are rooted at
// basename(src).
type ZipTarget struct {
	Template string
}

func (t *ZipTarget) String() string { return "zip:" + t.Template }

// Root returns the part of the archive directory that exists independent of the day.
func (t *ZipTarget) Root() string { return day.StaticDir(filepath.Dir(t.Template)) }

func (t *ZipTarget) Place(ctx context.Context, srcDir string, d day.Day) (string, error) {
	dest := day.Expand(t.Template, d)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create archive directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".dayrun-zip-*")
	if err != nil {
		return "", fmt.Errorf("create temp archive: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if err := writeZip(ctx, tmp, srcDir); err != nil {
		cleanup()
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return "", fmt.Errorf("sync archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close archive: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("rename archive: %w", err)
	}
	_ = fileutil.SyncDir(filepath.Dir(dest))
	return dest, nil
}

func writeZip(ctx context.Context, w io.Writer, srcDir string) error {
	zw := zip.NewWriter(w)
	root := filepath.Base(filepath.Clean(srcDir))
	err := filepath.WalkDir(srcDir, func(p string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !entry.IsDir() && !entry.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = path.Join(root, filepath.ToSlash(rel))
		if entry.IsDir() {
			header.Name += "/"
			_, err = zw.CreateHeader(header)
			return err
		}
		header.Method = zip.Deflate
		dst, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		src, err := os.Open(p)
		if err != nil {
			return err
		}
		_, err = io.Copy(dst, src)
		closeErr := src.Close()
		if err != nil {
			return fmt.Errorf("archive %s: %w", rel, err)
		}
		return closeErr
	})
	if err != nil {
		_ = zw.Close()
		return fmt.Errorf("write archive: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}
	return nil
}

// ObjectClient is the subset of *minio.Client used for uploads.
type ObjectClient interface {
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	BucketExists(ctx context.Context, bucket string) (bool, error)
}

// newObjectClient builds the uploader; tests replace it.
var newObjectClient = func(cfg config.ObjectStore) (ObjectClient, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if strings.Contains(endpoint, "://") {
		return nil, fmt.Errorf("endpoint must not include scheme: %q", endpoint)
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

// ObjectTarget uploads every regular file under <prefix>/<basename(src)>/.
type ObjectTarget struct {
	Bucket string
	Prefix string
	Store  config.ObjectStore

	client ObjectClient
}

func (t *ObjectTarget) String() string {
	if t.Prefix == "" {
		return "s3://" + t.Bucket
	}
	return "s3://" + t.Bucket + "/" + t.Prefix
}

func (t *ObjectTarget) connect() error {
	if t.client != nil {
		return nil
	}
	client, err := newObjectClient(t.Store)
	if err != nil {
		return fmt.Errorf("object store client: %w", err)
	}
	t.client = client
	return nil
}

// Probe reports whether the bucket is reachable and exists.
func (t *ObjectTarget) Probe(ctx context.Context) error {
	if err := t.connect(); err != nil {
		return err
	}
	ok, err := t.client.BucketExists(ctx, t.Bucket)
	if err != nil {
		return fmt.Errorf("bucket %s: %w", t.Bucket, err)
	}
	if !ok {
		return fmt.Errorf("bucket %s does not exist", t.Bucket)
	}
	return nil
}

func (t *ObjectTarget) Place(ctx context.Context, srcDir string, d day.Day) (string, error) {
	if err := t.connect(); err != nil {
		return "", err
	}
	prefix := path.Join(day.Expand(t.Prefix, d), filepath.Base(filepath.Clean(srcDir)))
	err := filepath.WalkDir(srcDir, func(p string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		key := path.Join(prefix, filepath.ToSlash(rel))
		if _, err := t.client.FPutObject(ctx, t.Bucket, key, p, minio.PutObjectOptions{}); err != nil {
			return fmt.Errorf("upload %s: %w", key, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return "s3://" + t.Bucket + "/" + prefix, nil
}
