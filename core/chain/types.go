// Chain data model shared by the light wallet and the chain server
package chain

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Protocol limits
const (
	// MaxBlocksPerRequest caps a single block range query
	MaxBlocksPerRequest = 500

	// MaxMemoLength is the largest memo a transaction may carry
	MaxMemoLength = 512

	// BlockVersion is written into every block header
	BlockVersion = 1
)

// Block is a block as served to light clients
type Block struct {
	Height       uint64        `json:"height"`
	Hash         string        `json:"hash"`
	PrevHash     string        `json:"prev_hash"`
	Time         int64         `json:"time"`
	Transactions []Transaction `json:"transactions"`
}

// Transaction moves value from previous outputs to new outputs.
// Coinbase transactions have no inputs.
type Transaction struct {
	ID      string     `json:"id"`
	Inputs  []TxInput  `json:"inputs"`
	Outputs []TxOutput `json:"outputs"`
	Memo    string     `json:"memo,omitempty"`
	Time    int64      `json:"time"`
}

// TxInput spends output Vout of transaction TxID
type TxInput struct {
	TxID      string `json:"txid"`
	Vout      uint32 `json:"vout"`
	Signature string `json:"signature,omitempty"`
}

// TxOutput pays Value base units to Address
type TxOutput struct {
	Address string `json:"address"`
	Value   uint64 `json:"value"`
}

// OutPoint identifies a single transaction output
type OutPoint struct {
	TxID string `json:"txid"`
	Vout uint32 `json:"vout"`
}

// String renders the outpoint as txid:vout
func (o OutPoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxID, o.Vout)
}

// ChainInfo describes the server's view of the chain
type ChainInfo struct {
	ChainName string `json:"chain_name"`
	Height    uint64 `json:"height"`
	TipHash   string `json:"tip_hash"`
	Version   string `json:"version"`
}

// TxStatus is returned when looking up a single transaction
type TxStatus struct {
	Transaction *Transaction `json:"transaction"`
	Height      uint64       `json:"height"`
	Confirmed   bool         `json:"confirmed"`
}

// IsCoinbase reports whether the transaction mints new value
func (tx *Transaction) IsCoinbase() bool {
	return len(tx.Inputs) == 0
}

// SigHash is the digest each input signature commits to. It covers
// everything except the ID and the signatures themselves.
func (tx *Transaction) SigHash() []byte {
	txCopy := *tx
	txCopy.ID = ""
	txCopy.Inputs = make([]TxInput, len(tx.Inputs))
	for i, in := range tx.Inputs {
		txCopy.Inputs[i] = TxInput{TxID: in.TxID, Vout: in.Vout}
	}

	data, err := json.Marshal(txCopy)
	if err != nil {
		return nil
	}
	return crypto.Keccak256(data)
}

// Hash returns the transaction ID for tx
func (tx *Transaction) Hash() string {
	return hex.EncodeToString(tx.SigHash())
}

// OutputValue sums every output
func (tx *Transaction) OutputValue() uint64 {
	var total uint64
	for _, out := range tx.Outputs {
		total += out.Value
	}
	return total
}

// CheckSanity validates the parts of a transaction that need no chain state
func (tx *Transaction) CheckSanity() error {
	if len(tx.Outputs) == 0 {
		return errors.New("transaction has no outputs")
	}
	if len(tx.Memo) > MaxMemoLength {
		return fmt.Errorf("memo exceeds %d bytes", MaxMemoLength)
	}
	var total uint64
	for i, out := range tx.Outputs {
		if out.Value == 0 {
			return fmt.Errorf("output %d has zero value", i)
		}
		if !common.IsHexAddress(out.Address) {
			return fmt.Errorf("output %d has invalid address %q", i, out.Address)
		}
		if total+out.Value < total {
			return errors.New("output value overflows")
		}
		total += out.Value
	}
	seen := make(map[OutPoint]struct{}, len(tx.Inputs))
	for _, in := range tx.Inputs {
		op := OutPoint{TxID: in.TxID, Vout: in.Vout}
		if _, dup := seen[op]; dup {
			return fmt.Errorf("input %s spent twice", op)
		}
		seen[op] = struct{}{}
	}
	if tx.ID != tx.Hash() {
		return errors.New("transaction id does not match contents")
	}
	return nil
}

// SignerAddress recovers the address that produced an input signature
func (tx *Transaction) SignerAddress(index int) (string, error) {
	if index < 0 || index >= len(tx.Inputs) {
		return "", fmt.Errorf("input %d out of range", index)
	}
	sig, err := hex.DecodeString(tx.Inputs[index].Signature)
	if err != nil {
		return "", fmt.Errorf("failed to decode signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return "", fmt.Errorf("signature has length %d", len(sig))
	}
	pub, err := crypto.SigToPub(tx.SigHash(), sig)
	if err != nil {
		return "", fmt.Errorf("failed to recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

// SameAddress compares two hex addresses ignoring checksum case
func SameAddress(a, b string) bool {
	return common.HexToAddress(a) == common.HexToAddress(b)
}

// serializeHeader produces the bytes a block hash commits to
func serializeHeader(height uint64, prevHash string, t int64, txIDs []string) []byte {
	buf := make([]byte, 0, 4+8+8+len(prevHash)+64*len(txIDs))
	buf = binary.BigEndian.AppendUint32(buf, BlockVersion)
	buf = binary.BigEndian.AppendUint64(buf, height)
	buf = binary.BigEndian.AppendUint64(buf, uint64(t))
	buf = append(buf, prevHash...)
	buf = append(buf, calculateMerkleRoot(txIDs)...)
	return buf
}

// calculateMerkleRoot folds transaction IDs pairwise with sha256
func calculateMerkleRoot(txIDs []string) []byte {
	if len(txIDs) == 0 {
		empty := sha256.Sum256(nil)
		return empty[:]
	}

	level := make([][]byte, len(txIDs))
	for i, id := range txIDs {
		h := sha256.Sum256([]byte(id))
		level[i] = h[:]
	}

	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		next := make([][]byte, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			h := sha256.Sum256(append(append([]byte{}, level[i]...), level[i+1]...))
			next = append(next, h[:])
		}
		level = next
	}
	return level[0]
}

// ComputeHash returns the hash a block with these contents must carry
func (b *Block) ComputeHash() string {
	ids := make([]string, len(b.Transactions))
	for i := range b.Transactions {
		ids[i] = b.Transactions[i].ID
	}
	h := sha256.Sum256(serializeHeader(b.Height, b.PrevHash, b.Time, ids))
	return hex.EncodeToString(h[:])
}
