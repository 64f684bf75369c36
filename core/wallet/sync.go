package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/spectrum-chain/litewallet/core/chain"
)

// syncBatchSize is the number of blocks requested per round trip
const syncBatchSize = 100

// ErrChainMismatch is returned when the server serves a different chain
// than the one the wallet was synced against
var ErrChainMismatch = errors.New("server is on a different chain")

// SyncResult summarizes one sync pass
type SyncResult struct {
	ScannedHeight uint64 `json:"synced_height"`
	LatestHeight  uint64 `json:"latest_height"`
	BlocksScanned uint64 `json:"blocks_scanned"`
	Rescanned     bool   `json:"rescanned,omitempty"`
	Dropped       int    `json:"dropped_unconfirmed,omitempty"`
}

// ScannedHeight is the last block height the wallet has processed. Before
// the first block is scanned it is the block before the birthday.
func (w *LightWallet) ScannedHeight() uint64 {
	if w.data.NextHeight == 0 {
		return 0
	}
	return w.data.NextHeight - 1
}

// LatestHeight is the server tip seen during the most recent sync
func (w *LightWallet) LatestHeight() uint64 {
	if w.latestHeight < w.ScannedHeight() {
		return w.ScannedHeight()
	}
	return w.latestHeight
}

// ChainInfo asks the server for its current tip
func (w *LightWallet) ChainInfo(ctx context.Context) (*chain.ChainInfo, error) {
	if w.source == nil {
		return nil, errors.New("no chain server configured")
	}
	info, err := w.source.Info(ctx)
	if err != nil {
		return nil, err
	}
	w.latestHeight = info.Height
	return info, nil
}

// Sync scans every block between the last scanned height and the server
// tip. When the chain no longer connects to the last scanned block the
// wallet rescans once from its birthday.
func (w *LightWallet) Sync(ctx context.Context) (*SyncResult, error) {
	info, err := w.ChainInfo(ctx)
	if err != nil {
		return nil, err
	}
	switch {
	case w.data.ChainName == "":
		w.data.ChainName = info.ChainName
		w.dirty = true
	case w.data.ChainName != info.ChainName:
		return nil, fmt.Errorf("%w: wallet has %q, server has %q", ErrChainMismatch, w.data.ChainName, info.ChainName)
	}

	result := &SyncResult{LatestHeight: info.Height}

	// A server tip behind or beside the scanned block means the chain the
	// wallet followed is gone
	if w.data.LastHash != "" {
		behind := w.data.NextHeight > info.Height+1
		forked := w.data.NextHeight == info.Height+1 && info.TipHash != "" && info.TipHash != w.data.LastHash
		if behind || forked {
			log.Warnf("Server tip %d does not extend scanned height %d, rescanning from %d",
				info.Height, w.ScannedHeight(), w.data.Birthday)
			w.Clear()
			result.Rescanned = true
		}
	}

scan:
	for w.data.NextHeight <= info.Height {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := w.data.NextHeight
		end := start + syncBatchSize - 1
		if end > info.Height {
			end = info.Height
		}

		blocks, err := w.source.Blocks(ctx, start, end)
		if err != nil {
			return nil, err
		}
		if len(blocks) == 0 {
			return nil, fmt.Errorf("server returned no blocks for %d..%d", start, end)
		}

		for i := range blocks {
			b := &blocks[i]
			if b.Height != w.data.NextHeight {
				return nil, fmt.Errorf("server returned block %d, expected %d", b.Height, w.data.NextHeight)
			}
			if b.Hash != b.ComputeHash() {
				return nil, fmt.Errorf("block %d failed hash check", b.Height)
			}
			if w.data.LastHash != "" && b.PrevHash != w.data.LastHash {
				if result.Rescanned {
					return nil, fmt.Errorf("block %d does not connect to the scanned chain", b.Height)
				}
				log.Warnf("Chain discontinuity at height %d, rescanning from %d", b.Height, w.data.Birthday)
				w.Clear()
				result.Rescanned = true
				continue scan
			}

			w.scanBlock(b)
			w.data.NextHeight = b.Height + 1
			w.data.LastHash = b.Hash
			w.dirty = true
			result.BlocksScanned++
		}
		log.Debugf("Scanned blocks %d..%d", start, w.ScannedHeight())
	}

	dropped, err := w.dropEvicted(ctx)
	if err != nil {
		log.Warnf("Could not check unconfirmed transactions: %v", err)
	}
	result.Dropped = dropped
	result.ScannedHeight = w.ScannedHeight()

	log.Infof("Synced to height %d (%d blocks scanned)", result.ScannedHeight, result.BlocksScanned)
	return result, nil
}

// Rescan forgets all chain state and syncs again from the birthday
func (w *LightWallet) Rescan(ctx context.Context) (*SyncResult, error) {
	w.Clear()
	res, err := w.Sync(ctx)
	if err != nil {
		return nil, err
	}
	res.Rescanned = true
	return res, nil
}

// Clear resets balances and history so the next sync starts at the birthday
func (w *LightWallet) Clear() {
	w.data.Utxos = make(map[string]*Utxo)
	w.data.Txs = nil
	w.data.NextHeight = w.data.Birthday
	w.data.LastHash = ""
	w.dirty = true
}

// scanBlock credits outputs paying the wallet and debits spent outputs
func (w *LightWallet) scanBlock(b *chain.Block) {
	for i := range b.Transactions {
		tx := &b.Transactions[i]

		var spent, received uint64
		involved := false

		for _, in := range tx.Inputs {
			key := chain.OutPoint{TxID: in.TxID, Vout: in.Vout}.String()
			if u, ok := w.data.Utxos[key]; ok {
				spent += u.Value
				delete(w.data.Utxos, key)
				involved = true
			}
		}

		var outgoing []OutgoingPayment
		for vout, out := range tx.Outputs {
			addr, ok := normalizeAddress(out.Address)
			if ok && w.IsMine(addr) {
				op := chain.OutPoint{TxID: tx.ID, Vout: uint32(vout)}
				w.data.Utxos[op.String()] = &Utxo{
					TxID:    tx.ID,
					Vout:    uint32(vout),
					Address: addr,
					Value:   out.Value,
					Height:  b.Height,
				}
				received += out.Value
				involved = true
				continue
			}
			outgoing = append(outgoing, OutgoingPayment{Address: out.Address, Value: out.Value})
		}

		if !involved {
			continue
		}

		rec := w.findTx(tx.ID)
		if rec == nil {
			rec = &TxRecord{TxID: tx.ID}
			w.data.Txs = append(w.data.Txs, rec)
		}
		rec.Height = b.Height
		rec.Time = b.Time
		rec.Memo = tx.Memo
		rec.Unconfirmed = false
		rec.Amount = int64(received) - int64(spent)
		rec.Fee = 0
		rec.Outgoing = nil
		if spent > 0 {
			rec.Outgoing = outgoing
			if total := tx.OutputValue(); spent >= total {
				rec.Fee = spent - total
			}
		}
	}
}

func (w *LightWallet) findTx(txid string) *TxRecord {
	for i := len(w.data.Txs) - 1; i >= 0; i-- {
		if w.data.Txs[i].TxID == txid {
			return w.data.Txs[i]
		}
	}
	return nil
}

// dropEvicted forgets unconfirmed sends the server no longer knows about,
// releasing the outputs they had reserved
func (w *LightWallet) dropEvicted(ctx context.Context) (int, error) {
	dropped := 0
	kept := w.data.Txs[:0]
	var firstErr error

	for _, rec := range w.data.Txs {
		if !rec.Unconfirmed {
			kept = append(kept, rec)
			continue
		}
		_, err := w.source.Transaction(ctx, rec.TxID)
		switch {
		case err == nil:
			kept = append(kept, rec)
		case chain.IsNotFound(err):
			log.Infof("Unconfirmed transaction %s was dropped by the server", rec.TxID)
			for _, u := range w.data.Utxos {
				if u.SpentBy == rec.TxID {
					u.SpentBy = ""
				}
			}
			dropped++
			w.dirty = true
		default:
			if firstErr == nil {
				firstErr = err
			}
			kept = append(kept, rec)
		}
	}
	w.data.Txs = kept
	return dropped, firstErr
}
