package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zstd"
)

// Config configures a Manager.
type Config struct {
	// MemoryCapacity bounds the L1 cache in bytes.
	MemoryCapacity int64

	// DiskPath enables the L2 cache when non-empty.
	DiskPath     string
	DiskCapacity int64

	// CompressionLevel is the zstd level for L2 entries.
	CompressionLevel zstd.EncoderLevel

	// TTL expires L2 entries not accessed for this long. Zero keeps them
	// until evicted for space.
	TTL             time.Duration
	CleanupInterval time.Duration

	Logger *log.Logger
}

// DefaultConfig returns a memory-only configuration.
func DefaultConfig() Config {
	return Config{
		MemoryCapacity:   64 << 20,
		DiskCapacity:     512 << 20,
		CompressionLevel: zstd.SpeedDefault,
		TTL:              7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// Manager layers the memory cache over the optional disk cache. Disk hits
// are promoted to memory.
type Manager struct {
	memory *MemoryCache
	disk   *DiskCache
	config Config
	logger *log.Logger

	stop chan struct{}
	wg   sync.WaitGroup

	mu         sync.Mutex
	promotions int64
	cleanups   int64
}

// ManagerStats aggregates statistics across levels.
type ManagerStats struct {
	Memory     Stats
	Disk       Stats
	Promotions int64
	Cleanups   int64
}

// NewManager creates a cache manager and starts TTL cleanup when a disk
// cache with a TTL is configured.
func NewManager(cfg Config) (*Manager, error) {
	m := &Manager{
		memory: NewMemoryCache(cfg.MemoryCapacity),
		config: cfg,
		logger: cfg.Logger,
		stop:   make(chan struct{}),
	}
	if m.logger == nil {
		m.logger = log.Default()
	}

	if cfg.DiskPath != "" {
		level := cfg.CompressionLevel
		if level == 0 {
			level = zstd.SpeedDefault
		}
		disk, err := NewDiskCache(cfg.DiskPath, cfg.DiskCapacity, level)
		if err != nil {
			return nil, fmt.Errorf("failed to create disk cache: %w", err)
		}
		m.disk = disk

		stats := disk.Stats()
		m.logger.Debug("Opened audio cache",
			"path", cfg.DiskPath,
			"entries", stats.ItemCount,
			"size", humanize.Bytes(uint64(stats.Size)),
			"capacity", humanize.Bytes(uint64(cfg.DiskCapacity)))

		if cfg.TTL > 0 && cfg.CleanupInterval > 0 {
			m.wg.Add(1)
			go m.cleanupLoop()
		}
	}

	return m, nil
}

// Key derives the cache key for synthesized audio.
func Key(engine, voice, text string, rate float64) string {
	h := sha256.New()
	for _, part := range []string{engine, voice, strconv.FormatFloat(rate, 'f', 2, 64), text} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// Get looks up key in memory, then on disk.
func (m *Manager) Get(key string) ([]byte, Level, bool) {
	if data, ok := m.memory.Get(key); ok {
		return data, LevelMemory, true
	}
	if m.disk == nil {
		return nil, LevelMemory, false
	}

	data, ok := m.disk.Get(key)
	if !ok {
		return nil, LevelDisk, false
	}

	if err := m.memory.Put(key, data); err == nil {
		m.mu.Lock()
		m.promotions++
		m.mu.Unlock()
	}
	return data, LevelDisk, true
}

// Put stores value at every level. Values too large for a level are skipped
// at that level.
func (m *Manager) Put(key string, value []byte) error {
	if err := m.memory.Put(key, value); err != nil && !errors.Is(err, ErrItemTooLarge) {
		return fmt.Errorf("memory cache: %w", err)
	}
	if m.disk == nil {
		return nil
	}
	if err := m.disk.Put(key, value); err != nil && !errors.Is(err, ErrItemTooLarge) {
		return fmt.Errorf("disk cache: %w", err)
	}
	return nil
}

// Delete removes key from every level.
func (m *Manager) Delete(key string) {
	m.memory.Delete(key)
	if m.disk != nil {
		m.disk.Delete(key)
	}
}

// Stats returns statistics for every level.
func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	stats := ManagerStats{
		Memory:     m.memory.Stats(),
		Promotions: m.promotions,
		Cleanups:   m.cleanups,
	}
	m.mu.Unlock()

	if m.disk != nil {
		stats.Disk = m.disk.Stats()
	}
	return stats
}

// Close stops cleanup and releases the disk cache.
func (m *Manager) Close() error {
	close(m.stop)
	m.wg.Wait()

	if m.disk == nil {
		return nil
	}
	if err := m.disk.Close(); err != nil {
		return fmt.Errorf("failed to close disk cache: %w", err)
	}
	return nil
}

func (m *Manager) cleanupLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanup(time.Now())
		case <-m.stop:
			return
		}
	}
}

func (m *Manager) cleanup(now time.Time) {
	removed := m.disk.RemoveOlderThan(now.Add(-m.config.TTL))

	m.mu.Lock()
	m.cleanups++
	m.mu.Unlock()

	if removed > 0 {
		m.logger.Debug("Expired cached audio",
			"removed", removed,
			"size", humanize.Bytes(uint64(m.disk.Size())))
	}
}
