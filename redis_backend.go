package kernel

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBackend is a StorageBackend that stores file blobs in Redis,
// keyed by the confined real path with a fixed prefix — an alternate
// implementation of the "persistent block store" of spec.md §6 ("Keys
// are absolute real paths... Values are arbitrary byte blobs"), grounded
// on edirooss-zmux-server's redis.Client/ChannelRepository pattern.
type RedisBackend struct {
	client *redis.Client
	log    *zap.Logger
	prefix string
}

// RedisBackendConfig configures a RedisBackend.
type RedisBackendConfig struct {
	Addr     string
	DB       int
	Password string
	// KeyPrefix namespaces this kernel instance's blobs within a shared
	// Redis database, e.g. "hako:fs:".
	KeyPrefix string
}

// NewRedisBackend dials Redis and returns a ready StorageBackend.
func NewRedisBackend(cfg RedisBackendConfig, log *zap.Logger) (*RedisBackend, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("redis")

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "hako:fs:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		DB:           cfg.DB,
		Password:     cfg.Password,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis backend: ping %s: %w", cfg.Addr, err)
	}

	log.Info("redis backend initialized", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))

	return &RedisBackend{client: client, log: log, prefix: prefix}, nil
}

func (r *RedisBackend) key(path string) string {
	return r.prefix + strings.TrimPrefix(path, "/")
}

func (r *RedisBackend) dirKey(path string) string {
	p := strings.TrimSuffix(path, "/")
	if p == "" {
		p = "/"
	}
	return r.prefix + "dir:" + strings.TrimPrefix(p, "/")
}

func (r *RedisBackend) Name() string { return "redis:" + r.prefix }

func (r *RedisBackend) Open(path string) (io.ReadCloser, error) {
	ctx := context.Background()
	data, err := r.client.Get(ctx, r.key(path)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, os.ErrNotExist
		}
		return nil, fmt.Errorf("redis backend: get %s: %w", path, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (r *RedisBackend) Stat(path string) (os.FileInfo, error) {
	ctx := context.Background()
	if ok, _ := r.client.SIsMember(ctx, r.dirKey(filepath.Dir(path)), filepath.Base(path)).Result(); ok {
		if isDir, _ := r.client.SIsMember(ctx, r.prefix+"dirs", path).Result(); isDir {
			return redisFileInfo{name: filepath.Base(path), isDir: true}, nil
		}
	}
	size, err := r.client.StrLen(ctx, r.key(path)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis backend: stat %s: %w", path, err)
	}
	if size == 0 {
		exists, err := r.client.Exists(ctx, r.key(path)).Result()
		if err != nil {
			return nil, fmt.Errorf("redis backend: exists %s: %w", path, err)
		}
		if exists == 0 {
			return nil, os.ErrNotExist
		}
	}
	return redisFileInfo{name: filepath.Base(path), size: size}, nil
}

func (r *RedisBackend) ReadDir(path string) ([]os.FileInfo, error) {
	ctx := context.Background()
	names, err := r.client.SMembers(ctx, r.dirKey(path)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis backend: readdir %s: %w", path, err)
	}
	infos := make([]os.FileInfo, 0, len(names))
	for _, name := range names {
		child := filepath.Join(path, name)
		info, err := r.Stat(child)
		if err != nil {
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (r *RedisBackend) Create(path string) (io.WriteCloser, error) {
	return &redisWriter{backend: r, path: path}, nil
}

func (r *RedisBackend) MkdirAll(path string, perm os.FileMode) error {
	ctx := context.Background()
	parts := strings.Split(strings.Trim(path, "/"), "/")
	current := ""
	pipe := r.client.Pipeline()
	for _, part := range parts {
		if part == "" {
			continue
		}
		parent := current
		if parent == "" {
			parent = "/"
		}
		current = current + "/" + part
		pipe.SAdd(ctx, r.dirKey(parent), part)
		pipe.SAdd(ctx, r.prefix+"dirs", current)
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("redis backend: mkdir -p %s: %w", path, err)
	}
	return nil
}

func (r *RedisBackend) Remove(path string) error {
	ctx := context.Background()
	pipe := r.client.Pipeline()
	pipe.Del(ctx, r.key(path))
	pipe.SRem(ctx, r.dirKey(filepath.Dir(path)), filepath.Base(path))
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("redis backend: remove %s: %w", path, err)
	}
	return nil
}

func (r *RedisBackend) RemoveAll(path string) error {
	ctx := context.Background()
	children, _ := r.client.SMembers(ctx, r.dirKey(path)).Result()
	for _, child := range children {
		_ = r.RemoveAll(filepath.Join(path, child))
	}
	pipe := r.client.Pipeline()
	pipe.Del(ctx, r.key(path))
	pipe.Del(ctx, r.dirKey(path))
	pipe.SRem(ctx, r.prefix+"dirs", path)
	pipe.SRem(ctx, r.dirKey(filepath.Dir(path)), filepath.Base(path))
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("redis backend: remove-all %s: %w", path, err)
	}
	return nil
}

func (r *RedisBackend) Exists(path string) (bool, error) {
	ctx := context.Background()
	n, err := r.client.Exists(ctx, r.key(path)).Result()
	if err != nil {
		return false, fmt.Errorf("redis backend: exists %s: %w", path, err)
	}
	if n > 0 {
		return true, nil
	}
	return r.client.SIsMember(ctx, r.prefix+"dirs", path).Result()
}

// Close releases the underlying Redis connection pool.
func (r *RedisBackend) Close() error {
	return r.client.Close()
}

type redisFileInfo struct {
	name  string
	size  int64
	isDir bool
}

func (i redisFileInfo) Name() string { return i.name }
func (i redisFileInfo) Size() int64  { return i.size }
func (i redisFileInfo) Mode() os.FileMode {
	if i.isDir {
		return os.ModeDir | 0755
	}
	return 0644
}
func (i redisFileInfo) ModTime() time.Time { return time.Time{} }
func (i redisFileInfo) IsDir() bool        { return i.isDir }
func (i redisFileInfo) Sys() interface{}   { return nil }

// redisWriter buffers writes and commits them to Redis on Close, mirroring
// how the afero-backed LocalBackend.Create works (write-then-close).
type redisWriter struct {
	backend *RedisBackend
	path    string
	buf     bytes.Buffer
}

func (w *redisWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *redisWriter) Close() error {
	ctx := context.Background()
	if err := w.backend.client.Set(ctx, w.backend.key(w.path), w.buf.Bytes(), 0).Err(); err != nil {
		return fmt.Errorf("redis backend: set %s: %w", w.path, err)
	}
	parent := filepath.Dir(w.path)
	if err := w.backend.MkdirAll(parent, 0755); err != nil {
		return err
	}
	return w.backend.client.SAdd(ctx, w.backend.dirKey(parent), filepath.Base(w.path)).Err()
}
