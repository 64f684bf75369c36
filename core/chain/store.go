package chain

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v3"
)

// Key prefixes for the badger store
var (
	tipKey       = []byte("l")
	heightPrefix = []byte("h/")
	hashPrefix   = []byte("b/")
	txPrefix     = []byte("t/")
	utxoPrefix   = []byte("u/")
)

var (
	// ErrNotFound is returned when a block, transaction or output is unknown
	ErrNotFound = errors.New("not found")

	// ErrEmptyChain is returned before the genesis block is stored
	ErrEmptyChain = errors.New("chain has no blocks")
)

// Store persists blocks, a transaction index and the unspent output set
type Store struct {
	db   *badger.DB
	lock sync.RWMutex
}

// OpenStore opens or creates a store under dir. An empty dir keeps
// everything in memory.
func OpenStore(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open chain store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

func heightKey(h uint64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte{}, heightPrefix...), h)
}

func prefixed(prefix []byte, s string) []byte {
	return append(append([]byte{}, prefix...), s...)
}

func getJSON(txn *badger.Txn, key []byte, v interface{}) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func getUint64(txn *badger.Txn, key []byte) (uint64, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	var v uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("corrupt integer value under %q", key)
		}
		v = binary.BigEndian.Uint64(val)
		return nil
	})
	return v, err
}

func tipHeight(txn *badger.Txn) (uint64, error) {
	h, err := getUint64(txn, tipKey)
	if errors.Is(err, ErrNotFound) {
		return 0, ErrEmptyChain
	}
	return h, err
}

// Tip returns the most recent block
func (s *Store) Tip() (*Block, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	var block Block
	err := s.db.View(func(txn *badger.Txn) error {
		h, err := tipHeight(txn)
		if err != nil {
			return err
		}
		return getJSON(txn, heightKey(h), &block)
	})
	if err != nil {
		return nil, err
	}
	return &block, nil
}

// BlockByHeight returns the block at height h
func (s *Store) BlockByHeight(h uint64) (*Block, error) {
	var block Block
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, heightKey(h), &block)
	})
	if err != nil {
		return nil, err
	}
	return &block, nil
}

// BlockByHash returns the block with the given hash
func (s *Store) BlockByHash(hash string) (*Block, error) {
	var block Block
	err := s.db.View(func(txn *badger.Txn) error {
		h, err := getUint64(txn, prefixed(hashPrefix, hash))
		if err != nil {
			return err
		}
		return getJSON(txn, heightKey(h), &block)
	})
	if err != nil {
		return nil, err
	}
	return &block, nil
}

// Blocks returns blocks start..end inclusive, clipped to the tip
func (s *Store) Blocks(start, end uint64) ([]Block, error) {
	if end < start {
		return nil, fmt.Errorf("invalid range %d..%d", start, end)
	}
	if end-start+1 > MaxBlocksPerRequest {
		end = start + MaxBlocksPerRequest - 1
	}

	var blocks []Block
	err := s.db.View(func(txn *badger.Txn) error {
		tip, err := tipHeight(txn)
		if err != nil {
			return err
		}
		if end > tip {
			end = tip
		}
		for h := start; h <= end; h++ {
			var b Block
			if err := getJSON(txn, heightKey(h), &b); err != nil {
				return fmt.Errorf("block %d: %w", h, err)
			}
			blocks = append(blocks, b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return blocks, nil
}

// Transaction looks up a confirmed transaction and its block height
func (s *Store) Transaction(txid string) (*Transaction, uint64, error) {
	var found *Transaction
	var height uint64
	err := s.db.View(func(txn *badger.Txn) error {
		h, err := getUint64(txn, prefixed(txPrefix, txid))
		if err != nil {
			return err
		}
		var b Block
		if err := getJSON(txn, heightKey(h), &b); err != nil {
			return err
		}
		for i := range b.Transactions {
			if b.Transactions[i].ID == txid {
				found = &b.Transactions[i]
				height = h
				return nil
			}
		}
		return ErrNotFound
	})
	if err != nil {
		return nil, 0, err
	}
	return found, height, nil
}

// UTXO returns the unspent output at op
func (s *Store) UTXO(op OutPoint) (*TxOutput, error) {
	var out TxOutput
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, prefixed(utxoPrefix, op.String()), &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// NextBlock assembles the block that would extend the current tip
func (s *Store) NextBlock(txs []Transaction, t int64) (*Block, error) {
	block := &Block{
		Time:         t,
		Transactions: txs,
	}

	tip, err := s.Tip()
	switch {
	case errors.Is(err, ErrEmptyChain):
		block.Height = 0
	case err != nil:
		return nil, err
	default:
		block.Height = tip.Height + 1
		block.PrevHash = tip.Hash
	}

	block.Hash = block.ComputeHash()
	return block, nil
}

// AppendBlock validates that block extends the tip and stores it, moving
// spent outputs out of the unspent set in the same database transaction.
func (s *Store) AppendBlock(block *Block) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if block.Hash != block.ComputeHash() {
		return fmt.Errorf("block %d: hash mismatch", block.Height)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		tip, err := tipHeight(txn)
		switch {
		case errors.Is(err, ErrEmptyChain):
			if block.Height != 0 || block.PrevHash != "" {
				return fmt.Errorf("first block must be genesis, got height %d", block.Height)
			}
		case err != nil:
			return err
		default:
			var prev Block
			if err := getJSON(txn, heightKey(tip), &prev); err != nil {
				return err
			}
			if block.Height != tip+1 || block.PrevHash != prev.Hash {
				return fmt.Errorf("block %d does not extend tip %d", block.Height, tip)
			}
		}

		for _, tx := range block.Transactions {
			if err := applyTransaction(txn, &tx, block.Height); err != nil {
				return fmt.Errorf("tx %s: %w", tx.ID, err)
			}
		}

		blockData, err := json.Marshal(block)
		if err != nil {
			return err
		}
		if err := txn.Set(heightKey(block.Height), blockData); err != nil {
			return err
		}
		heightBytes := binary.BigEndian.AppendUint64(nil, block.Height)
		if err := txn.Set(prefixed(hashPrefix, block.Hash), heightBytes); err != nil {
			return err
		}
		// Update latest tip
		return txn.Set(tipKey, heightBytes)
	})
}

func applyTransaction(txn *badger.Txn, tx *Transaction, height uint64) error {
	for _, in := range tx.Inputs {
		key := prefixed(utxoPrefix, OutPoint{TxID: in.TxID, Vout: in.Vout}.String())
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("input %s:%d is not spendable", in.TxID, in.Vout)
			}
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
	}

	for i, out := range tx.Outputs {
		data, err := json.Marshal(out)
		if err != nil {
			return err
		}
		key := prefixed(utxoPrefix, OutPoint{TxID: tx.ID, Vout: uint32(i)}.String())
		if err := txn.Set(key, data); err != nil {
			return err
		}
	}

	return txn.Set(prefixed(txPrefix, tx.ID), binary.BigEndian.AppendUint64(nil, height))
}
