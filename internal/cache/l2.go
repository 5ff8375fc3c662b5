package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/quickdb/quickdb/internal/logging"
)

const (
	l2Magic           uint32 = 0x71646232 // "qdb2"
	l2FlagCompressed  uint8  = 1 << 0
	l2CompressionFloor        = 256 // entries smaller than this aren't worth zstd's framing overhead
)

// l2Header is the on-disk blob header: version, flags, uncompressed size,
// insertion time, and TTL (both in milliseconds), all fixed-width so a reader
// can decide whether an entry is stale without decompressing its body.
type l2Header struct {
	Version          uint8
	Flags            uint8
	UncompressedSize uint64
	InsertedAtMillis int64
	TTLMillis        int64
}

const l2HeaderSize = 1 + 1 + 8 + 8 + 8

func (h l2Header) encode() []byte {
	buf := make([]byte, 4+l2HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], l2Magic)
	buf[4] = h.Version
	buf[5] = h.Flags
	binary.BigEndian.PutUint64(buf[6:14], h.UncompressedSize)
	binary.BigEndian.PutUint64(buf[14:22], uint64(h.InsertedAtMillis))
	binary.BigEndian.PutUint64(buf[22:30], uint64(h.TTLMillis))
	return buf
}

func decodeL2Header(buf []byte) (l2Header, error) {
	if len(buf) < 4+l2HeaderSize {
		return l2Header{}, fmt.Errorf("cache: truncated L2 header")
	}
	if binary.BigEndian.Uint32(buf[0:4]) != l2Magic {
		return l2Header{}, fmt.Errorf("cache: bad L2 blob magic")
	}
	return l2Header{
		Version:          buf[4],
		Flags:            buf[5],
		UncompressedSize: binary.BigEndian.Uint64(buf[6:14]),
		InsertedAtMillis: int64(binary.BigEndian.Uint64(buf[14:22])),
		TTLMillis:        int64(binary.BigEndian.Uint64(buf[22:30])),
	}, nil
}

func (h l2Header) expired(now time.Time) bool {
	if h.TTLMillis <= 0 {
		return false
	}
	return now.UnixMilli()-h.InsertedAtMillis > h.TTLMillis
}

// L2Config configures the optional on-disk tier of spec.md §4.4.
type L2Config struct {
	Dir                string
	ShardCount         int
	CompressionThreshold int
	CheckInterval      time.Duration
}

func DefaultL2Config(dir string) L2Config {
	return L2Config{
		Dir:                  dir,
		ShardCount:           16,
		CompressionThreshold: l2CompressionFloor,
		CheckInterval:        5 * time.Minute,
	}
}

// L2 is the optional on-disk tier backing CacheLayer's two tiers, storing
// each entry at {dir}/<shard>/<hex(key)>.blob with an zstd-compressed body
// above CompressionThreshold bytes. The ref-counted-directory TTL sweep
// shape is grounded on the teacher's internal/snapshot/snapshot.go
// cleanupStaleSnapshots, adapted from "delete snapshot files whose
// ref-count dropped to zero" to "delete blob files whose header TTL has
// elapsed" — L2 entries have no ref-count since they aren't shared handles,
// only a TTL. Compression is grounded on pkg/client/decompress.go's zstd
// usage, adapted from decompressing a gRPC download stream to
// encoding/decoding a single in-memory blob via zstd's EncodeAll/DecodeAll.
type L2 struct {
	cfg  L2Config
	sink logging.EventSink

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewL2(cfg L2Config, sink logging.EventSink) (*L2, error) {
	if sink == nil {
		sink = logging.NopSink{}
	}
	if cfg.ShardCount <= 0 {
		cfg.ShardCount = 16
	}
	if cfg.CompressionThreshold <= 0 {
		cfg.CompressionThreshold = l2CompressionFloor
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create L2 dir %s: %w", cfg.Dir, err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("cache: create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("cache: create zstd decoder: %w", err)
	}

	l := &L2{
		cfg:     cfg,
		sink:    sink,
		encoder: enc,
		decoder: dec,
		stopCh:  make(chan struct{}),
	}
	l.wg.Add(1)
	go l.sweepLoop()
	return l, nil
}

func (l *L2) shardPath(key string) string {
	sum := sha256.Sum256([]byte(key))
	shard := fmt.Sprintf("%02x", sum[0]%byte(l.cfg.ShardCount))
	return filepath.Join(l.cfg.Dir, shard, hex.EncodeToString(sum[:])+".blob")
}

// Put writes value to its blob file, compressing with zstd when it exceeds
// CompressionThreshold.
func (l *L2) Put(key string, value []byte, ttl time.Duration) error {
	path := l.shardPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cache: create L2 shard dir: %w", err)
	}

	body := value
	flags := uint8(0)
	if len(value) >= l.cfg.CompressionThreshold {
		body = l.encoder.EncodeAll(value, nil)
		flags |= l2FlagCompressed
	}

	header := l2Header{
		Version:          1,
		Flags:            flags,
		UncompressedSize: uint64(len(value)),
		InsertedAtMillis: time.Now().UnixMilli(),
		TTLMillis:        ttl.Milliseconds(),
	}

	var buf bytes.Buffer
	buf.Write(header.encode())
	buf.Write(body)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("cache: write L2 blob: %w", err)
	}
	return os.Rename(tmp, path)
}

// Get reads and decompresses the blob for key, reporting (nil, false) if
// absent or expired.
func (l *L2) Get(key string) ([]byte, bool) {
	path := l.shardPath(key)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	header, err := decodeL2Header(raw)
	if err != nil {
		l.sink.Warn("discarding corrupt L2 blob", "path", path, "error", err)
		_ = os.Remove(path)
		return nil, false
	}
	if header.expired(time.Now()) {
		_ = os.Remove(path)
		return nil, false
	}

	body := raw[4+l2HeaderSize:]
	if header.Flags&l2FlagCompressed != 0 {
		decoded, err := l.decoder.DecodeAll(body, make([]byte, 0, header.UncompressedSize))
		if err != nil {
			l.sink.Warn("discarding undecodable L2 blob", "path", path, "error", err)
			_ = os.Remove(path)
			return nil, false
		}
		return decoded, true
	}
	return body, true
}

// Remove deletes the blob for key, if present.
func (l *L2) Remove(key string) {
	_ = os.Remove(l.shardPath(key))
}

// InvalidateAll removes every blob in every shard directory. Blob filenames
// are hashes of their keys and L2 keeps no index of keys, so L2 cannot
// remove entries by (alias, collection) scope; only Remove (one key) and
// InvalidateAll (everything) exist.
func (l *L2) InvalidateAll() error {
	entries, err := os.ReadDir(l.cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, shard := range entries {
		if !shard.IsDir() {
			continue
		}
		shardDir := filepath.Join(l.cfg.Dir, shard.Name())
		files, err := os.ReadDir(shardDir)
		if err != nil {
			continue
		}
		for _, f := range files {
			_ = os.Remove(filepath.Join(shardDir, f.Name()))
		}
	}
	return nil
}

func (l *L2) sweepLoop() {
	defer l.wg.Done()
	interval := l.cfg.CheckInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.sweepExpired()
		}
	}
}

func (l *L2) sweepExpired() {
	now := time.Now()
	shards, err := os.ReadDir(l.cfg.Dir)
	if err != nil {
		return
	}
	removed := 0
	for _, shard := range shards {
		if !shard.IsDir() {
			continue
		}
		shardDir := filepath.Join(l.cfg.Dir, shard.Name())
		files, err := os.ReadDir(shardDir)
		if err != nil {
			continue
		}
		for _, f := range files {
			path := filepath.Join(shardDir, f.Name())
			raw, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			header, err := decodeL2Header(raw)
			if err != nil || header.expired(now) {
				if rmErr := os.Remove(path); rmErr == nil {
					removed++
				}
			}
		}
	}
	if removed > 0 {
		l.sink.Debug("L2 sweep removed stale blobs", "count", removed)
	}
}

// Stop halts the sweeper goroutine and releases the zstd decoder's
// background goroutines. Safe to call more than once.
func (l *L2) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
	l.wg.Wait()
	l.decoder.Close()
}
