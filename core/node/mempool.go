package node

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spectrum-chain/litewallet/core/chain"
)

var (
	// ErrMempoolFull is returned when the mempool holds MempoolSize transactions
	ErrMempoolFull = errors.New("mempool is full")

	// ErrDuplicateTx is returned for a transaction already in the mempool
	ErrDuplicateTx = errors.New("transaction already in mempool")

	// ErrDoubleSpend is returned when an input is spent by a pending transaction
	ErrDoubleSpend = errors.New("input already spent by a pending transaction")
)

// txExpiry is how long a transaction may wait for a block
const txExpiry = time.Hour

type pendingTx struct {
	tx    chain.Transaction
	added time.Time
}

// Mempool holds verified transactions waiting to be mined
type Mempool struct {
	store   *chain.Store
	maxSize int

	lock  sync.RWMutex
	txs   map[string]*pendingTx
	order []string
	spent map[chain.OutPoint]string
}

// NewMempool creates a mempool that verifies against store
func NewMempool(store *chain.Store, maxSize int) *Mempool {
	return &Mempool{
		store:   store,
		maxSize: maxSize,
		txs:     make(map[string]*pendingTx),
		spent:   make(map[chain.OutPoint]string),
	}
}

// verify checks tx against the confirmed UTXO set
func (m *Mempool) verify(tx *chain.Transaction) error {
	if err := tx.CheckSanity(); err != nil {
		return err
	}
	if tx.IsCoinbase() {
		return errors.New("coinbase transactions cannot be submitted")
	}

	var in uint64
	for i, input := range tx.Inputs {
		op := chain.OutPoint{TxID: input.TxID, Vout: input.Vout}
		out, err := m.store.UTXO(op)
		if errors.Is(err, chain.ErrNotFound) {
			return fmt.Errorf("input %s is unknown or spent", op)
		}
		if err != nil {
			return err
		}

		signer, err := tx.SignerAddress(i)
		if err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
		if !chain.SameAddress(signer, out.Address) {
			return fmt.Errorf("input %d is not signed by the owner of %s", i, op)
		}
		in += out.Value
	}

	if in < tx.OutputValue() {
		return fmt.Errorf("outputs %d exceed inputs %d", tx.OutputValue(), in)
	}
	return nil
}

// Add verifies tx and queues it for the next block
func (m *Mempool) Add(tx *chain.Transaction) error {
	if err := m.verify(tx); err != nil {
		return fmt.Errorf("transaction verification failed: %w", err)
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	if _, exists := m.txs[tx.ID]; exists {
		return ErrDuplicateTx
	}
	if len(m.txs) >= m.maxSize {
		return ErrMempoolFull
	}
	for _, input := range tx.Inputs {
		op := chain.OutPoint{TxID: input.TxID, Vout: input.Vout}
		if by, ok := m.spent[op]; ok {
			return fmt.Errorf("%w: %s by %s", ErrDoubleSpend, op, by)
		}
	}

	for _, input := range tx.Inputs {
		m.spent[chain.OutPoint{TxID: input.TxID, Vout: input.Vout}] = tx.ID
	}
	m.txs[tx.ID] = &pendingTx{tx: *tx, added: time.Now()}
	m.order = append(m.order, tx.ID)
	return nil
}

// Get returns a pending transaction
func (m *Mempool) Get(txid string) (*chain.Transaction, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	p, ok := m.txs[txid]
	if !ok {
		return nil, false
	}
	tx := p.tx
	return &tx, true
}

// Size is the number of pending transactions
func (m *Mempool) Size() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.txs)
}

// Pending returns up to limit transactions in arrival order
func (m *Mempool) Pending(limit int) []chain.Transaction {
	m.lock.RLock()
	defer m.lock.RUnlock()

	txs := make([]chain.Transaction, 0, min(limit, len(m.order)))
	for _, id := range m.order {
		if len(txs) >= limit {
			break
		}
		txs = append(txs, m.txs[id].tx)
	}
	return txs
}

// Remove drops transactions, typically after they were mined
func (m *Mempool) Remove(txids ...string) {
	m.lock.Lock()
	defer m.lock.Unlock()

	for _, id := range txids {
		m.removeLocked(id)
	}
}

func (m *Mempool) removeLocked(txid string) {
	p, ok := m.txs[txid]
	if !ok {
		return
	}
	for _, input := range p.tx.Inputs {
		delete(m.spent, chain.OutPoint{TxID: input.TxID, Vout: input.Vout})
	}
	delete(m.txs, txid)
	for i, id := range m.order {
		if id == txid {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Revalidate drops every transaction that no longer verifies against the
// store and returns how many were dropped
func (m *Mempool) Revalidate() int {
	m.lock.Lock()
	defer m.lock.Unlock()

	dropped := 0
	for _, id := range append([]string(nil), m.order...) {
		if err := m.verify(&m.txs[id].tx); err != nil {
			log.Debugf("Dropping %s from mempool: %v", id, err)
			m.removeLocked(id)
			dropped++
		}
	}
	return dropped
}

// Expire drops transactions older than txExpiry
func (m *Mempool) Expire(now time.Time) int {
	m.lock.Lock()
	defer m.lock.Unlock()

	expired := 0
	for _, id := range append([]string(nil), m.order...) {
		if now.Sub(m.txs[id].added) > txExpiry {
			m.removeLocked(id)
			expired++
		}
	}
	return expired
}
