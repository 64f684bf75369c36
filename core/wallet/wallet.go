// Light wallet engine for Spectrum Chain
package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/gofrs/flock"
	"github.com/spectrum-chain/litewallet/core/chain"
)

const (
	// fileVersion is written into every saved wallet
	fileVersion = 1

	// DefaultFee is the fee paid by send unless changed with defaultfee
	DefaultFee uint64 = 1000
)

var (
	// ErrWalletInUse means another process holds the wallet lock. It wraps
	// fs.ErrPermission so callers can treat it like any access failure.
	ErrWalletInUse = fmt.Errorf("wallet file is in use by another process: %w", fs.ErrPermission)

	// ErrWalletExists is returned when restoring over an existing wallet
	ErrWalletExists = errors.New("wallet file already exists")

	// ErrLocked is returned by operations that need the seed while it is encrypted
	ErrLocked = errors.New("wallet is locked")

	// ErrNotEncrypted is returned by lock/unlock/decrypt on a plain wallet
	ErrNotEncrypted = errors.New("wallet is not encrypted")

	// ErrAlreadyEncrypted is returned when encrypting twice
	ErrAlreadyEncrypted = errors.New("wallet is already encrypted")
)

// Utxo is an unspent output owned by the wallet
type Utxo struct {
	TxID    string `json:"txid"`
	Vout    uint32 `json:"vout"`
	Address string `json:"address"`
	Value   uint64 `json:"value"`
	Height  uint64 `json:"height"`
	SpentBy string `json:"spent_by,omitempty"`
}

// OutgoingPayment is a payment to an address outside the wallet
type OutgoingPayment struct {
	Address string `json:"address"`
	Value   uint64 `json:"value"`
}

// TxRecord is a transaction that touched the wallet
type TxRecord struct {
	TxID        string            `json:"txid"`
	Height      uint64            `json:"block_height"`
	Time        int64             `json:"datetime"`
	Amount      int64             `json:"amount"`
	Fee         uint64            `json:"fee,omitempty"`
	Memo        string            `json:"memo,omitempty"`
	Outgoing    []OutgoingPayment `json:"outgoing_metadata,omitempty"`
	Unconfirmed bool              `json:"unconfirmed"`
}

// walletFile is the persisted wallet. Seed fields come first so a
// truncated file still yields the seed.
type walletFile struct {
	Version       int              `json:"version"`
	Seed          string           `json:"seed,omitempty"`
	EncryptedSeed *sealedSeed      `json:"encrypted_seed,omitempty"`
	Birthday      uint64           `json:"birthday"`
	ChainName     string           `json:"chain_name,omitempty"`
	Addresses     []string         `json:"addresses"`
	NextHeight    uint64           `json:"next_height"`
	LastHash      string           `json:"last_hash,omitempty"`
	Utxos         map[string]*Utxo `json:"utxos"`
	Txs           []*TxRecord      `json:"transactions"`
	DefaultFee    uint64           `json:"default_fee"`
}

// Options controls how Open obtains a wallet
type Options struct {
	// Path is the wallet file location
	Path string

	// Seed restores a wallet from this phrase; the file must not exist
	Seed string

	// Birthday is the first height scanned for a restored wallet, and the
	// fallback for a new one when the server cannot be reached
	Birthday uint64

	// Source is the chain server the wallet syncs from
	Source chain.Source
}

// LightWallet holds keys, balances and history for one wallet file.
// It is not safe for concurrent use.
type LightWallet struct {
	path   string
	lock   *flock.Flock
	source chain.Source
	data   walletFile

	keys         *keychain
	privKeys     map[string]*btcec.PrivateKey
	addrIndex    map[string]int
	unlockedSeed string

	latestHeight uint64
	dirty        bool
	closed       bool
}

// Open restores, loads or creates the wallet at opts.Path and takes an
// exclusive lock on it.
func Open(ctx context.Context, opts Options) (*LightWallet, error) {
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create wallet directory: %w", err)
	}

	lock := flock.New(opts.Path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock wallet: %w", err)
	}
	if !locked {
		return nil, ErrWalletInUse
	}

	w := &LightWallet{
		path:   opts.Path,
		lock:   lock,
		source: opts.Source,
	}

	_, statErr := os.Stat(opts.Path)
	exists := statErr == nil

	switch {
	case opts.Seed != "" && exists:
		err = fmt.Errorf("cannot restore from seed, %w at %s", ErrWalletExists, opts.Path)
	case opts.Seed != "":
		err = w.create(NormalizeSeedPhrase(opts.Seed), opts.Birthday)
	case exists:
		err = w.load()
	case errors.Is(statErr, fs.ErrNotExist):
		err = w.createNew(ctx, opts.Birthday)
	default:
		err = fmt.Errorf("failed to access wallet file: %w", statErr)
	}
	if err != nil {
		lock.Unlock()
		return nil, err
	}

	log.Infof("Opened wallet %s with %d addresses", opts.Path, len(w.data.Addresses))
	return w, nil
}

// createNew makes a wallet from a fresh seed, born at the server's tip
func (w *LightWallet) createNew(ctx context.Context, fallbackBirthday uint64) error {
	phrase, err := NewSeedPhrase()
	if err != nil {
		return err
	}

	birthday := fallbackBirthday
	if w.source != nil {
		info, err := w.source.Info(ctx)
		if err != nil {
			log.Warnf("Could not fetch chain tip for new wallet birthday, using %d: %v", birthday, err)
		} else {
			birthday = info.Height
		}
	}
	return w.create(phrase, birthday)
}

// create initializes wallet state from a seed phrase and saves it
func (w *LightWallet) create(phrase string, birthday uint64) error {
	keys, err := newKeychain(phrase)
	if err != nil {
		return err
	}

	w.data = walletFile{
		Version:    fileVersion,
		Seed:       phrase,
		Birthday:   birthday,
		NextHeight: birthday,
		Utxos:      make(map[string]*Utxo),
		DefaultFee: DefaultFee,
	}
	w.setKeys(keys)
	if _, err := w.deriveNext(); err != nil {
		return err
	}

	w.dirty = true
	return w.Save()
}

// load reads an existing wallet file
func (w *LightWallet) load() error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return fmt.Errorf("failed to read wallet file: %w", err)
	}

	var wf walletFile
	if err := json.Unmarshal(data, &wf); err != nil {
		return fmt.Errorf("failed to unmarshal wallet data: %w", err)
	}
	if wf.Version != fileVersion {
		return fmt.Errorf("unsupported wallet version %d", wf.Version)
	}
	if wf.Utxos == nil {
		wf.Utxos = make(map[string]*Utxo)
	}
	w.data = wf
	w.indexAddresses()

	if wf.Seed != "" {
		keys, err := newKeychain(wf.Seed)
		if err != nil {
			return err
		}
		if err := w.unlockWith(keys); err != nil {
			return err
		}
	}
	return nil
}

func (w *LightWallet) indexAddresses() {
	w.addrIndex = make(map[string]int, len(w.data.Addresses))
	for i, a := range w.data.Addresses {
		w.addrIndex[a] = i
	}
}

func (w *LightWallet) setKeys(keys *keychain) {
	w.keys = keys
	w.privKeys = make(map[string]*btcec.PrivateKey)
	w.indexAddresses()
}

// unlockWith rederives every known address and checks it matches the file
func (w *LightWallet) unlockWith(keys *keychain) error {
	privKeys := make(map[string]*btcec.PrivateKey, len(w.data.Addresses))
	for i, addr := range w.data.Addresses {
		priv, derived, err := keys.derive(uint32(i))
		if err != nil {
			return err
		}
		if derived != addr {
			return fmt.Errorf("address %d does not match seed", i)
		}
		privKeys[addr] = priv
	}
	w.keys = keys
	w.privKeys = privKeys
	return nil
}

// deriveNext appends the next address in the chain
func (w *LightWallet) deriveNext() (string, error) {
	if w.keys == nil {
		return "", ErrLocked
	}
	index := uint32(len(w.data.Addresses))
	priv, addr, err := w.keys.derive(index)
	if err != nil {
		return "", err
	}
	w.data.Addresses = append(w.data.Addresses, addr)
	w.addrIndex[addr] = int(index)
	w.privKeys[addr] = priv
	w.dirty = true
	return addr, nil
}

// NewAddress derives, stores and returns a new receiving address
func (w *LightWallet) NewAddress() (string, error) {
	return w.deriveNext()
}

// Addresses lists every address in derivation order
func (w *LightWallet) Addresses() []string {
	return append([]string(nil), w.data.Addresses...)
}

// IsMine reports whether addr belongs to the wallet
func (w *LightWallet) IsMine(addr string) bool {
	norm, ok := normalizeAddress(addr)
	if !ok {
		return false
	}
	_, mine := w.addrIndex[norm]
	return mine
}

// Seed returns the seed phrase and birthday
func (w *LightWallet) Seed() (string, uint64, error) {
	if w.keys == nil {
		return "", 0, ErrLocked
	}
	if w.data.Seed != "" {
		return w.data.Seed, w.data.Birthday, nil
	}
	return w.unlockedSeed, w.data.Birthday, nil
}

// Birthday is the first height this wallet scans
func (w *LightWallet) Birthday() uint64 {
	return w.data.Birthday
}

// ChainName is the chain the wallet last synced against
func (w *LightWallet) ChainName() string {
	return w.data.ChainName
}

// Path is the wallet file location
func (w *LightWallet) Path() string {
	return w.path
}

// DefaultFee returns the fee used for sends
func (w *LightWallet) DefaultFee() uint64 {
	return w.data.DefaultFee
}

// SetDefaultFee changes the fee used for sends
func (w *LightWallet) SetDefaultFee(fee uint64) {
	if w.data.DefaultFee != fee {
		w.data.DefaultFee = fee
		w.dirty = true
	}
}

// Balance summarizes the wallet's unspent outputs
type Balance struct {
	Confirmed uint64            `json:"confirmed"`
	Pending   uint64            `json:"pending_spend"`
	Addresses map[string]uint64 `json:"-"`
}

// Balance sums unspent outputs. Outputs spent by a broadcast but
// unconfirmed transaction count as pending.
func (w *LightWallet) Balance() Balance {
	bal := Balance{Addresses: make(map[string]uint64, len(w.data.Addresses))}
	for _, addr := range w.data.Addresses {
		bal.Addresses[addr] = 0
	}
	for _, u := range w.data.Utxos {
		if u.SpentBy != "" {
			bal.Pending += u.Value
			continue
		}
		bal.Confirmed += u.Value
		bal.Addresses[u.Address] += u.Value
	}
	return bal
}

// Utxos lists unspent outputs ordered by height then outpoint
func (w *LightWallet) Utxos() []Utxo {
	out := make([]Utxo, 0, len(w.data.Utxos))
	for _, u := range w.data.Utxos {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Height != out[j].Height {
			return out[i].Height < out[j].Height
		}
		if out[i].TxID != out[j].TxID {
			return out[i].TxID < out[j].TxID
		}
		return out[i].Vout < out[j].Vout
	})
	return out
}

// Transactions returns wallet history, oldest first
func (w *LightWallet) Transactions() []TxRecord {
	out := make([]TxRecord, len(w.data.Txs))
	for i, tx := range w.data.Txs {
		out[i] = *tx
	}
	return out
}

// LastTxID is the most recently recorded transaction, or ""
func (w *LightWallet) LastTxID() string {
	if len(w.data.Txs) == 0 {
		return ""
	}
	return w.data.Txs[len(w.data.Txs)-1].TxID
}

// Save writes the wallet if anything changed since the last save. Saving
// an unchanged wallet is a no-op that succeeds.
func (w *LightWallet) Save() error {
	if w.closed {
		return errors.New("wallet is closed")
	}
	if !w.dirty {
		return nil
	}

	data, err := json.MarshalIndent(&w.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal wallet data: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(w.path), filepath.Base(w.path)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to write wallet file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write wallet file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync wallet file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write wallet file: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		return fmt.Errorf("failed to set wallet permissions: %w", err)
	}
	if err := os.Rename(tmpName, w.path); err != nil {
		return fmt.Errorf("failed to replace wallet file: %w", err)
	}

	w.dirty = false
	log.Debugf("Saved wallet to %s", w.path)
	return nil
}

// Close saves pending changes and releases the wallet lock
func (w *LightWallet) Close() error {
	if w.closed {
		return nil
	}
	saveErr := w.Save()
	w.closed = true
	w.privKeys = nil
	w.keys = nil
	w.unlockedSeed = ""

	if err := w.lock.Unlock(); err != nil && saveErr == nil {
		return fmt.Errorf("failed to release wallet lock: %w", err)
	}
	return saveErr
}
