package commands

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/spectrum-chain/litewallet/core/bridge"
	"github.com/spectrum-chain/litewallet/core/chain"
	"github.com/spectrum-chain/litewallet/core/config"
	"github.com/spectrum-chain/litewallet/core/node"
)

const testPhrase = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

const outsider = "0x00000000000000000000000000000000000000Aa"

type harness struct {
	t      *testing.T
	node   *node.Node
	runner *Runner
	key    *ecdsa.PrivateKey
	funds  chain.OutPoint
	value  uint64
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	store, err := chain.OpenStore("")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	n, err := node.NewNode(store, &node.Config{
		ChainName:      "regtest",
		BlockInterval:  time.Hour,
		GenesisAddress: crypto.PubkeyToAddress(key.PublicKey).Hex(),
		GenesisAmount:  10_000_000,
		MempoolSize:    100,
	}, "test")
	require.NoError(t, err)

	srv := httptest.NewServer(n.Handler())
	t.Cleanup(srv.Close)

	genesis, err := store.BlockByHeight(0)
	require.NoError(t, err)
	cb := genesis.Transactions[0]

	cfg, err := config.Validate(config.RawParams{
		Server:   srv.URL,
		Seed:     testPhrase,
		Birthday: "0",
		DataDir:  t.TempDir(),
	})
	require.NoError(t, err)

	engine, err := NewOpener("v-test")(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	return &harness{
		t:      t,
		node:   n,
		runner: engine.(*Runner),
		key:    key,
		funds:  chain.OutPoint{TxID: cb.ID, Vout: 0},
		value:  cb.Outputs[0].Value,
	}
}

func (h *harness) run(name string, params ...string) string {
	h.t.Helper()
	return h.runner.Execute(context.Background(), bridge.NewCommand(name, params...))
}

func (h *harness) runJSON(v interface{}, name string, params ...string) {
	h.t.Helper()
	resp := h.run(name, params...)
	require.NoError(h.t, json.Unmarshal([]byte(resp), v), resp)
}

// pay sends amount from the genesis output to addr and mines it
func (h *harness) pay(addr string, amount uint64) {
	h.t.Helper()
	tx := &chain.Transaction{
		Inputs: []chain.TxInput{{TxID: h.funds.TxID, Vout: h.funds.Vout}},
		Outputs: []chain.TxOutput{
			{Address: addr, Value: amount},
			{Address: crypto.PubkeyToAddress(h.key.PublicKey).Hex(), Value: h.value - amount},
		},
		Memo: "funding",
		Time: time.Now().Unix(),
	}
	sig, err := crypto.Sign(tx.SigHash(), h.key)
	require.NoError(h.t, err)
	tx.Inputs[0].Signature = hex.EncodeToString(sig)
	tx.ID = tx.Hash()

	require.NoError(h.t, h.node.Mempool().Add(tx))
	h.mine()

	h.funds = chain.OutPoint{TxID: tx.ID, Vout: 1}
	h.value -= amount
}

func (h *harness) mine() {
	h.t.Helper()
	block, err := h.node.Producer().Produce(time.Now())
	require.NoError(h.t, err)
	require.NotNil(h.t, block)
}

func (h *harness) firstAddress() string {
	h.t.Helper()
	var addrs []string
	h.runJSON(&addrs, "addresses")
	require.NotEmpty(h.t, addrs)
	return addrs[0]
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, "Unknown command: frobnicate. Type 'help' for a list of commands.", h.run("frobnicate"))
}

func TestHelp(t *testing.T) {
	h := newHarness(t)

	list := h.run("help")
	for _, name := range h.runner.Names() {
		require.Contains(t, list, name+" - ")
	}

	require.Contains(t, h.run("help", "send"), "Usage:")
	require.Equal(t, "Command nope not found", h.run("help", "nope"))

	// Names are matched case-insensitively
	require.Equal(t, h.run("help", "send"), h.run("HELP", "SEND"))
}

func TestUsageErrorsReturnHelp(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name   string
		params []string
	}{
		{"new", []string{"extra"}},
		{"lock", []string{"extra"}},
		{"height", []string{"maybe"}},
		{"height", []string{"true", "false"}},
		{"defaultfee", []string{"1", "2"}},
		{"send", nil},
		{"encrypt", nil},
		{"unlock", []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%d", tt.name, len(tt.params)), func(t *testing.T) {
			require.Equal(t, h.runner.commands[tt.name].help, h.run(tt.name, tt.params...))
		})
	}
}

func TestSyncBalanceAndSend(t *testing.T) {
	h := newHarness(t)
	addr := h.firstAddress()

	h.pay(addr, 1_000_000)

	var res map[string]interface{}
	h.runJSON(&res, "sync")
	require.EqualValues(t, 1, res["synced_height"])

	var height map[string]uint64
	h.runJSON(&height, "height", "false")
	require.Equal(t, uint64(1), height["height"])

	var bal struct {
		Balance uint64 `json:"balance"`
		Display string `json:"balance_display"`
		Pending uint64 `json:"pending_spend"`
		Addrs   []struct {
			Address string `json:"address"`
			Balance uint64 `json:"balance"`
		} `json:"addresses"`
	}
	h.runJSON(&bal, "balance")
	require.Equal(t, uint64(1_000_000), bal.Balance)
	require.Equal(t, "0.01000000", bal.Display)
	require.Len(t, bal.Addrs, 1)
	require.Equal(t, addr, bal.Addrs[0].Address)

	var sent map[string]string
	h.runJSON(&sent, "send", outsider, "250000", "thanks for lunch")
	txid := sent["txid"]
	require.NotEmpty(t, txid)

	var last map[string]string
	h.runJSON(&last, "lasttxid")
	require.Equal(t, txid, last["last_txid"])

	h.runJSON(&bal, "balance")
	require.Zero(t, bal.Balance)
	require.Equal(t, uint64(1_000_000), bal.Pending)

	h.mine()
	var height2 map[string]uint64
	h.runJSON(&height2, "height")
	require.Equal(t, uint64(2), height2["height"])

	h.runJSON(&bal, "balance")
	require.Equal(t, uint64(1_000_000-250_000-1000), bal.Balance)
	require.Zero(t, bal.Pending)

	var txs []struct {
		TxID        string `json:"txid"`
		Amount      int64  `json:"amount"`
		Memo        string `json:"memo"`
		Unconfirmed bool   `json:"unconfirmed"`
	}
	h.runJSON(&txs, "list")
	require.Len(t, txs, 2)
	require.Equal(t, int64(1_000_000), txs[0].Amount)
	require.Equal(t, txid, txs[1].TxID)
	require.Equal(t, int64(-251_000), txs[1].Amount)
	require.Equal(t, "thanks for lunch", txs[1].Memo)
	require.False(t, txs[1].Unconfirmed)
}

func TestSendJSONList(t *testing.T) {
	h := newHarness(t)
	h.pay(h.firstAddress(), 500_000)
	h.run("sync")

	payload := fmt.Sprintf(`[{'address': '%s', 'amount': 1000, 'memo': 'one'}, {'address': '%s', 'amount': "2000"}]`, outsider, outsider)
	var sent map[string]string
	h.runJSON(&sent, "send", payload)
	require.NotEmpty(t, sent["txid"])

	resp := h.run("send", `[{"amount": 5}]`)
	require.Contains(t, resp, `"error"`)

	resp = h.run("send", "not json")
	require.Contains(t, resp, "couldn't understand JSON")
}

func TestSendJSONListKeepsApostrophes(t *testing.T) {
	h := newHarness(t)
	h.pay(h.firstAddress(), 500_000)
	h.run("sync")

	payload := fmt.Sprintf(`[{"address": "%s", "amount": 100, "memo": "don't forget"}]`, outsider)
	var sent map[string]string
	h.runJSON(&sent, "send", payload)
	require.NotEmpty(t, sent["txid"])

	require.Contains(t, h.run("list"), `"memo": "don't forget"`)
}

func TestSendFailures(t *testing.T) {
	h := newHarness(t)

	resp := h.run("send", outsider, "100")
	require.Contains(t, resp, "insufficient funds")

	resp = h.run("send", "0x1234", "100")
	require.Contains(t, resp, "invalid address")

	resp = h.run("send", outsider, "-4")
	require.Contains(t, resp, "invalid amount")
}

func TestAddressesAndSeed(t *testing.T) {
	h := newHarness(t)

	var created []string
	h.runJSON(&created, "new")
	require.Len(t, created, 1)

	var addrs []string
	h.runJSON(&addrs, "addresses")
	require.Len(t, addrs, 2)
	require.Equal(t, created[0], addrs[1])

	var seed struct {
		Seed     string `json:"seed"`
		Birthday uint64 `json:"birthday"`
	}
	h.runJSON(&seed, "seed")
	require.Equal(t, testPhrase, seed.Seed)
	require.Zero(t, seed.Birthday)
}

func TestEncryptionCommands(t *testing.T) {
	h := newHarness(t)

	var status map[string]bool
	h.runJSON(&status, "encryptionstatus")
	require.False(t, status["encrypted"])

	require.Contains(t, h.run("lock"), "not encrypted")
	require.Contains(t, h.run("encrypt", "hunter2"), "success")

	h.runJSON(&status, "encryptionstatus")
	require.True(t, status["encrypted"])
	require.True(t, status["locked"])

	require.Contains(t, h.run("seed"), "locked")
	require.Contains(t, h.run("new"), "locked")
	require.Contains(t, h.run("encrypt", "again"), "already encrypted")

	require.Contains(t, h.run("unlock", "wrong"), "incorrect password")
	require.Contains(t, h.run("unlock", "hunter2"), "success")
	require.Contains(t, h.run("seed"), testPhrase)

	require.Contains(t, h.run("lock"), "success")
	require.Contains(t, h.run("decrypt", "wrong"), "incorrect password")
	require.Contains(t, h.run("decrypt", "hunter2"), "success")

	h.runJSON(&status, "encryptionstatus")
	require.False(t, status["encrypted"])
	require.False(t, status["locked"])
}

func TestInfoAndFees(t *testing.T) {
	h := newHarness(t)

	var info map[string]interface{}
	h.runJSON(&info, "info")
	require.Equal(t, "v-test", info["version"])
	require.Equal(t, "regtest", info["chain_name"])
	require.Equal(t, "test", info["server_version"])
	require.Contains(t, info["server"], "http://127.0.0.1")

	var fee map[string]uint64
	h.runJSON(&fee, "defaultfee")
	require.Equal(t, uint64(1000), fee["defaultfee"])
	h.runJSON(&fee, "defaultfee", "2500")
	require.Equal(t, uint64(2500), fee["defaultfee"])
}

func TestClearRescanAndSave(t *testing.T) {
	h := newHarness(t)
	h.pay(h.firstAddress(), 42_000)
	h.run("sync")

	require.Contains(t, h.run("clear"), "success")
	var bal map[string]interface{}
	h.runJSON(&bal, "balance")
	require.EqualValues(t, 0, bal["balance"])

	var res map[string]interface{}
	h.runJSON(&res, "rescan")
	require.EqualValues(t, 1, res["synced_height"])
	h.runJSON(&bal, "balance")
	require.EqualValues(t, 42_000, bal["balance"])

	var status map[string]interface{}
	h.runJSON(&status, "syncstatus")
	require.Equal(t, false, status["syncing"])
	require.EqualValues(t, 1, status["synced_blocks"])

	require.Contains(t, h.run("save"), "success")
	require.Contains(t, h.run("quit"), "success")
}

func TestRunnerSyncResult(t *testing.T) {
	h := newHarness(t)
	msg, err := h.runner.Sync(context.Background())
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(msg, "{"))
	require.Contains(t, msg, `"synced_height": 0`)
}
