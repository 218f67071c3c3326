package machine

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Prajjawalk/ipc/internal/kernel"
	"github.com/ipfs/go-cid"
	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// MemBlockstore keeps blocks in memory.
type MemBlockstore struct {
	mu     sync.RWMutex
	blocks map[string][]byte
}

var _ kernel.Blockstore = (*MemBlockstore)(nil)

// NewMemBlockstore creates an empty in-memory store.
func NewMemBlockstore() *MemBlockstore {
	return &MemBlockstore{blocks: make(map[string][]byte)}
}

func (m *MemBlockstore) Get(c cid.Cid) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blocks[c.KeyString()]
	if !ok {
		return nil, kernel.ErrBlockNotFound
	}
	return append([]byte(nil), b...), nil
}

func (m *MemBlockstore) Put(c cid.Cid, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[c.KeyString()] = append([]byte(nil), data...)
	return nil
}

func (m *MemBlockstore) Has(c cid.Cid) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blocks[c.KeyString()]
	return ok, nil
}

// Len returns the number of stored blocks.
func (m *MemBlockstore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blocks)
}

// LevelBlockstore persists blocks in a goleveldb database keyed by CID bytes.
type LevelBlockstore struct {
	db *leveldb.DB
}

var _ kernel.Blockstore = (*LevelBlockstore)(nil)

// NewLevelBlockstore wraps an open database.
func NewLevelBlockstore(db *leveldb.DB) *LevelBlockstore {
	return &LevelBlockstore{db: db}
}

// OpenLevelBlockstore opens or creates a database at path.
func OpenLevelBlockstore(path string) (*LevelBlockstore, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{
		Filter: filter.NewBloomFilter(10),
	})
	if lerrors.IsCorrupted(err) {
		return nil, fmt.Errorf("blockstore at %s is corrupted: %w", path, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open blockstore at %s: %w", path, err)
	}
	return &LevelBlockstore{db: db}, nil
}

func (l *LevelBlockstore) Get(c cid.Cid) ([]byte, error) {
	b, err := l.db.Get(c.Bytes(), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, kernel.ErrBlockNotFound
	}
	return b, err
}

func (l *LevelBlockstore) Put(c cid.Cid, data []byte) error {
	return l.db.Put(c.Bytes(), data, nil)
}

func (l *LevelBlockstore) Has(c cid.Cid) (bool, error) {
	return l.db.Has(c.Bytes(), nil)
}

// PutMany writes blocks in one atomic batch.
func (l *LevelBlockstore) PutMany(blocks map[cid.Cid][]byte) error {
	batch := new(leveldb.Batch)
	for c, data := range blocks {
		batch.Put(c.Bytes(), data)
	}
	return l.db.Write(batch, &opt.WriteOptions{Sync: true})
}

// Close closes the database.
func (l *LevelBlockstore) Close() error {
	return l.db.Close()
}

// batchPutter is implemented by stores that can write many blocks atomically.
type batchPutter interface {
	PutMany(blocks map[cid.Cid][]byte) error
}

// BufferedBlockstore holds writes in memory until Flush. Reads see buffered
// writes first.
type BufferedBlockstore struct {
	base    kernel.Blockstore
	mu      sync.RWMutex
	pending map[cid.Cid][]byte
}

var _ kernel.Blockstore = (*BufferedBlockstore)(nil)

// NewBufferedBlockstore buffers writes over base.
func NewBufferedBlockstore(base kernel.Blockstore) *BufferedBlockstore {
	return &BufferedBlockstore{base: base, pending: make(map[cid.Cid][]byte)}
}

func (b *BufferedBlockstore) Get(c cid.Cid) ([]byte, error) {
	b.mu.RLock()
	data, ok := b.pending[c]
	b.mu.RUnlock()
	if ok {
		return append([]byte(nil), data...), nil
	}
	return b.base.Get(c)
}

func (b *BufferedBlockstore) Put(c cid.Cid, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[c] = append([]byte(nil), data...)
	return nil
}

func (b *BufferedBlockstore) Has(c cid.Cid) (bool, error) {
	b.mu.RLock()
	_, ok := b.pending[c]
	b.mu.RUnlock()
	if ok {
		return true, nil
	}
	return b.base.Has(c)
}

// Pending returns the number of buffered blocks.
func (b *BufferedBlockstore) Pending() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.pending)
}

// Flush writes buffered blocks to the base store.
func (b *BufferedBlockstore) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) == 0 {
		return nil
	}
	if bp, ok := b.base.(batchPutter); ok {
		if err := bp.PutMany(b.pending); err != nil {
			return fmt.Errorf("failed to flush %d blocks: %w", len(b.pending), err)
		}
	} else {
		keys := make([]cid.Cid, 0, len(b.pending))
		for c := range b.pending {
			keys = append(keys, c)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i].KeyString() < keys[j].KeyString() })
		for _, c := range keys {
			if err := b.base.Put(c, b.pending[c]); err != nil {
				return fmt.Errorf("failed to flush block %s: %w", c, err)
			}
		}
	}
	b.pending = make(map[cid.Cid][]byte)
	return nil
}

// Discard drops buffered blocks.
func (b *BufferedBlockstore) Discard() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = make(map[cid.Cid][]byte)
}
