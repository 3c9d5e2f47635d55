package core

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const blockKeyPrefix = "block:"

// Index maps block hashes to chain heights. It lives entirely in memory.
type Index struct {
	db *leveldb.DB
}

// NewIndex opens an empty in-memory index.
func NewIndex() (*Index, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open block index: %w", err)
	}
	return &Index{db: db}, nil
}

// Put records that the block with the given hash sits at height.
func (i *Index) Put(hash string, height int) error {
	value := make([]byte, 8)
	binary.BigEndian.PutUint64(value, uint64(height))
	if err := i.db.Put(blockKey(hash), value, nil); err != nil {
		return fmt.Errorf("failed to index block %s: %w", hash, err)
	}
	return nil
}

// Height returns the height of the block with the given hash.
func (i *Index) Height(hash string) (int, bool, error) {
	value, err := i.db.Get(blockKey(hash), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get block %s: %w", hash, err)
	}
	return int(binary.BigEndian.Uint64(value)), true, nil
}

// Len counts indexed blocks.
func (i *Index) Len() (int, error) {
	iter := i.db.NewIterator(util.BytesPrefix([]byte(blockKeyPrefix)), nil)
	defer iter.Release()

	n := 0
	for iter.Next() {
		n++
	}
	if err := iter.Error(); err != nil {
		return 0, fmt.Errorf("iterator error: %w", err)
	}
	return n, nil
}

func (i *Index) Close() error {
	return i.db.Close()
}

func blockKey(hash string) []byte {
	return []byte(blockKeyPrefix + hash)
}
