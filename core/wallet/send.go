package wallet

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spectrum-chain/litewallet/core/chain"
)

// ErrInsufficientFunds is returned when spendable outputs cannot cover a send
var ErrInsufficientFunds = errors.New("insufficient funds")

// Recipient is one payment in a send
type Recipient struct {
	Address string `json:"address"`
	Value   uint64 `json:"amount"`
	Memo    string `json:"memo,omitempty"`
}

// Send builds, signs and broadcasts a transaction paying recipients. Change
// returns to the first wallet address.
func (w *LightWallet) Send(ctx context.Context, recipients []Recipient) (string, error) {
	if w.IsLocked() {
		return "", ErrLocked
	}
	if len(recipients) == 0 {
		return "", errors.New("no recipients")
	}

	var total uint64
	var memo string
	outputs := make([]chain.TxOutput, 0, len(recipients)+1)
	for _, r := range recipients {
		addr, ok := normalizeAddress(r.Address)
		if !ok {
			return "", fmt.Errorf("invalid address %q", r.Address)
		}
		if r.Value == 0 {
			return "", fmt.Errorf("amount for %s must be positive", addr)
		}
		if r.Memo != "" {
			if memo != "" && memo != r.Memo {
				return "", errors.New("only one memo per transaction is supported")
			}
			memo = r.Memo
		}
		if total+r.Value < total {
			return "", errors.New("amount overflows")
		}
		total += r.Value
		outputs = append(outputs, chain.TxOutput{Address: addr, Value: r.Value})
	}
	if len(memo) > chain.MaxMemoLength {
		return "", fmt.Errorf("memo exceeds %d bytes", chain.MaxMemoLength)
	}

	fee := w.data.DefaultFee
	need := total + fee
	if need < total {
		return "", fmt.Errorf("%w: amount plus fee overflows", ErrInsufficientFunds)
	}
	selected, have := w.selectCoins(need)
	if have < need {
		return "", fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, have, need)
	}

	changeAddr := w.data.Addresses[0]
	if change := have - need; change > 0 {
		outputs = append(outputs, chain.TxOutput{Address: changeAddr, Value: change})
	}

	tx := &chain.Transaction{
		Outputs: outputs,
		Memo:    memo,
		Time:    time.Now().Unix(),
	}
	for _, u := range selected {
		tx.Inputs = append(tx.Inputs, chain.TxInput{TxID: u.TxID, Vout: u.Vout})
	}
	tx.ID = tx.Hash()

	sighash := tx.SigHash()
	for i, u := range selected {
		priv, ok := w.privKeys[u.Address]
		if !ok {
			return "", fmt.Errorf("no key for address %s", u.Address)
		}
		sig, err := crypto.Sign(sighash, priv.ToECDSA())
		if err != nil {
			return "", fmt.Errorf("failed to sign input %d: %w", i, err)
		}
		tx.Inputs[i].Signature = hex.EncodeToString(sig)
	}

	txid, err := w.source.Submit(ctx, tx)
	if err != nil {
		return "", err
	}
	if txid != tx.ID {
		log.Warnf("Server reported txid %s for transaction %s", txid, tx.ID)
	}

	var received uint64
	var outgoing []OutgoingPayment
	for _, out := range tx.Outputs {
		if w.IsMine(out.Address) {
			received += out.Value
			continue
		}
		outgoing = append(outgoing, OutgoingPayment{Address: out.Address, Value: out.Value})
	}
	for _, u := range selected {
		u.SpentBy = tx.ID
	}
	w.data.Txs = append(w.data.Txs, &TxRecord{
		TxID:        tx.ID,
		Time:        tx.Time,
		Amount:      int64(received) - int64(have),
		Fee:         fee,
		Memo:        memo,
		Outgoing:    outgoing,
		Unconfirmed: true,
	})
	w.dirty = true

	log.Infof("Broadcast transaction %s spending %d inputs", tx.ID, len(selected))
	return tx.ID, nil
}

// selectCoins picks unreserved outputs, largest first, until need is met
func (w *LightWallet) selectCoins(need uint64) ([]*Utxo, uint64) {
	candidates := make([]*Utxo, 0, len(w.data.Utxos))
	for _, u := range w.data.Utxos {
		if u.SpentBy == "" {
			candidates = append(candidates, u)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Value != candidates[j].Value {
			return candidates[i].Value > candidates[j].Value
		}
		if candidates[i].TxID != candidates[j].TxID {
			return candidates[i].TxID < candidates[j].TxID
		}
		return candidates[i].Vout < candidates[j].Vout
	})

	var selected []*Utxo
	var have uint64
	for _, u := range candidates {
		if have >= need {
			break
		}
		selected = append(selected, u)
		have += u.Value
	}
	return selected, have
}
