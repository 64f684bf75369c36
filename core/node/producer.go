package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spectrum-chain/litewallet/core/chain"
)

// MaxBlockTxs is the most mempool transactions put into one block
const MaxBlockTxs = 1000

// Producer builds blocks from the mempool on a fixed interval
type Producer struct {
	store   *chain.Store
	mempool *Mempool
	config  *Config
	metrics *metrics

	lock sync.Mutex
}

// NewProducer creates a block producer
func NewProducer(store *chain.Store, mempool *Mempool, config *Config, m *metrics) *Producer {
	return &Producer{
		store:   store,
		mempool: mempool,
		config:  config,
		metrics: m,
	}
}

// EnsureGenesis writes the genesis block if the store is empty
func (p *Producer) EnsureGenesis(now time.Time) (*chain.Block, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	tip, err := p.store.Tip()
	if err == nil {
		return tip, nil
	}
	if !errors.Is(err, chain.ErrEmptyChain) {
		return nil, err
	}

	var txs []chain.Transaction
	if p.config.GenesisAddress != "" && p.config.GenesisAmount > 0 {
		txs = append(txs, coinbase(p.config.GenesisAddress, p.config.GenesisAmount, 0, now.Unix()))
	}
	genesis, err := p.store.NextBlock(txs, now.Unix())
	if err != nil {
		return nil, err
	}
	if err := p.store.AppendBlock(genesis); err != nil {
		return nil, fmt.Errorf("failed to store genesis block: %w", err)
	}

	log.Infof("Created genesis block %s for chain %s", genesis.Hash, p.config.ChainName)
	p.metrics.observeBlock(genesis)
	return genesis, nil
}

// Produce mines one block holding the block reward, if configured, and the
// oldest pending transactions. It returns nil without error when there is
// nothing to mine and empty blocks are disabled.
func (p *Producer) Produce(now time.Time) (*chain.Block, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	pending := p.mempool.Pending(MaxBlockTxs)
	if len(pending) == 0 && !p.config.EmptyBlocks {
		return nil, nil
	}

	tip, err := p.store.Tip()
	if err != nil {
		return nil, fmt.Errorf("failed to get last block: %w", err)
	}

	txs := make([]chain.Transaction, 0, len(pending)+1)
	if p.config.MinerAddress != "" && p.config.BlockReward > 0 {
		txs = append(txs, coinbase(p.config.MinerAddress, p.config.BlockReward, tip.Height+1, now.Unix()))
	}
	txs = append(txs, pending...)

	block, err := p.store.NextBlock(txs, now.Unix())
	if err != nil {
		return nil, err
	}
	if err := p.store.AppendBlock(block); err != nil {
		// A pending transaction went stale; drop it and retry next tick
		dropped := p.mempool.Revalidate()
		return nil, fmt.Errorf("failed to append block (dropped %d stale transactions): %w", dropped, err)
	}

	ids := make([]string, len(pending))
	for i, tx := range pending {
		ids[i] = tx.ID
	}
	p.mempool.Remove(ids...)

	log.Infof("Created new block at height %d with %d transactions", block.Height, len(block.Transactions))
	p.metrics.observeBlock(block)
	return block, nil
}

// Run produces blocks until ctx is cancelled
func (p *Producer) Run(ctx context.Context) {
	ticker := time.NewTicker(p.config.BlockInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := p.Produce(now); err != nil {
				log.Errorf("Failed to create new block: %v", err)
			}
			if n := p.mempool.Expire(now); n > 0 {
				log.Infof("Expired %d mempool transactions", n)
			}
			p.metrics.mempoolSize.Set(float64(p.mempool.Size()))
		}
	}
}

// coinbase mints value to addr. Height and time keep the ID unique.
func coinbase(addr string, value, height uint64, t int64) chain.Transaction {
	tx := chain.Transaction{
		Outputs: []chain.TxOutput{{Address: addr, Value: value}},
		Memo:    fmt.Sprintf("coinbase %d", height),
		Time:    t,
	}
	tx.ID = tx.Hash()
	return tx
}
