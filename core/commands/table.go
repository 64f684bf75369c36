package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spectrum-chain/litewallet/core/utils"
	"github.com/spectrum-chain/litewallet/core/wallet"
)

func commandTable() map[string]*command {
	return map[string]*command{
		"help": {
			short: "Lists all available commands",
			help: "List all available commands\n" +
				"Usage:\n" +
				"help [command_name]\n\n" +
				"If no \"command_name\" is specified, a list of all available commands is returned\n" +
				"Example:\n" +
				"help send\n",
			exec: execHelp,
		},
		"sync": {
			short: "Download CompactBlocks and sync to the server",
			help: "Sync the light client with the server\n" +
				"Usage:\n" +
				"sync\n",
			exec: func(ctx context.Context, r *Runner, args []string) string {
				res, err := r.wallet.Sync(ctx)
				if err != nil {
					return errResponse(err)
				}
				return jsonResponse(res)
			},
		},
		"syncstatus": {
			short: "Get the sync status of the wallet",
			help: "Get the sync status of the wallet\n" +
				"Usage:\n" +
				"syncstatus\n",
			exec: func(ctx context.Context, r *Runner, args []string) string {
				// Commands never run during a sync, so this is always idle
				return jsonResponse(map[string]interface{}{
					"syncing":       false,
					"synced_blocks": r.wallet.ScannedHeight(),
					"total_blocks":  r.wallet.LatestHeight(),
				})
			},
		},
		"rescan": {
			short: "Rescan the wallet, downloading and scanning all blocks and transactions",
			help: "Rescan the wallet, rescanning all blocks for new transactions\n" +
				"Usage:\n" +
				"rescan\n\n" +
				"This command will download all blocks since the initial block again from the light client server\n" +
				"and attempt to scan each block for transactions belonging to the wallet.\n",
			exec: func(ctx context.Context, r *Runner, args []string) string {
				res, err := r.wallet.Rescan(ctx)
				if err != nil {
					return errResponse(err)
				}
				return jsonResponse(res)
			},
		},
		"clear": {
			short: "Clear the wallet state, rolling back the wallet to an empty state.",
			help: "Clear the wallet state, rolling back the wallet to an empty state.\n" +
				"Usage:\n" +
				"clear\n\n" +
				"This command will clear all notes, utxos and transactions from the wallet, setting up the wallet to be synced from scratch.\n",
			exec: func(ctx context.Context, r *Runner, args []string) string {
				r.wallet.Clear()
				return successResponse()
			},
		},
		"info": {
			short: "Get the lightwalletd server's info",
			help: "Get info about the lightwalletd we're connected to\n" +
				"Usage:\n" +
				"info\n",
			exec: execInfo,
		},
		"height": {
			short: "Get the latest block height that the wallet is at",
			help: "Get the latest block height that the wallet is at.\n" +
				"Usage:\n" +
				"height [do_sync = true | false]\n\n" +
				"Pass 'true' (default) to sync to the server to get the latest block height. Pass 'false' to get the latest height in the wallet without checking with the server.\n",
			exec: execHeight,
		},
		"balance": {
			short: "Show the current balance in the wallet",
			help: "Show the current balance in the wallet\n" +
				"Usage:\n" +
				"balance\n\n" +
				"Transactions received in the wallet are counted once their block is scanned.\n",
			exec: execBalance,
		},
		"addresses": {
			short: "List all addresses in the wallet",
			help: "List current addresses in the wallet\n" +
				"Usage:\n" +
				"addresses\n",
			exec: func(ctx context.Context, r *Runner, args []string) string {
				return jsonResponse(r.wallet.Addresses())
			},
		},
		"new": {
			short: "Create a new address in this wallet",
			help: "Create a new address in this wallet\n" +
				"Usage:\n" +
				"new\n",
			exec: func(ctx context.Context, r *Runner, args []string) string {
				if len(args) != 0 {
					return r.help("new")
				}
				addr, err := r.wallet.NewAddress()
				if err != nil {
					return errResponse(err)
				}
				return jsonResponse([]string{addr})
			},
		},
		"seed": {
			short: "Display the seed phrase",
			help: "Show the wallet's seed phrase\n" +
				"Usage:\n" +
				"seed\n\n" +
				"Your wallet is entirely recoverable from the seed phrase. Please save it carefully and don't share it with anyone\n",
			exec: func(ctx context.Context, r *Runner, args []string) string {
				phrase, birthday, err := r.wallet.Seed()
				if err != nil {
					return errResponse(err)
				}
				return jsonResponse(map[string]interface{}{
					"seed":     phrase,
					"birthday": birthday,
				})
			},
		},
		"send": {
			short: "Send funds to an address",
			help: "Send funds to an address\n" +
				"Usage:\n" +
				"send <address> <amount in base units> \"optional_memo\"\n" +
				"OR\n" +
				"send '[{'address': <address>, 'amount': <amount in base units>, 'memo': <optional memo>}, ...]'\n\n" +
				"NOTE: The fee set with 'defaultfee' is added to the amount and deducted from your balance.\n" +
				"Example:\n" +
				"send 0x52908400098527886E0F7030069857D2E4169EE7 200000 \"Hello from the command line\"\n",
			exec: execSend,
		},
		"list": {
			short: "List all transactions in the wallet",
			help: "List all incoming and outgoing transactions from this wallet\n" +
				"Usage:\n" +
				"list\n",
			exec: execList,
		},
		"lasttxid": {
			short: "Show the latest TxId in the wallet",
			help: "Show the latest TxId in the wallet\n" +
				"Usage:\n" +
				"lasttxid\n",
			exec: func(ctx context.Context, r *Runner, args []string) string {
				return jsonResponse(map[string]string{"last_txid": r.wallet.LastTxID()})
			},
		},
		"defaultfee": {
			short: "Returns or sets the default fee in base units for outgoing transactions",
			help: "Returns or sets the default fee in base units for outgoing transactions\n" +
				"Usage:\n" +
				"defaultfee [fee]\n",
			exec: execDefaultFee,
		},
		"encrypt": {
			short: "Encrypt the wallet with a password",
			help: "Encrypt the wallet with a password\n" +
				"Note 1: This will encrypt the seed. You will need to unlock the wallet to spend or see the seed.\n" +
				"Note 2: If you forget the password, the only way to recover the wallet is to restore from the seed phrase.\n" +
				"Usage:\n" +
				"encrypt password\n",
			exec: passwordCommand("encrypt", (*wallet.LightWallet).Encrypt),
		},
		"decrypt": {
			short: "Completely remove wallet encryption",
			help: "Completely remove wallet encryption, storing the wallet in plaintext on disk\n" +
				"Note 1: This will decrypt the seed and store it UNENCRYPTED on disk.\n" +
				"Note 2: If you've forgotten the password, the only way to recover the wallet is to restore from the seed phrase.\n" +
				"Usage:\n" +
				"decrypt password\n",
			exec: passwordCommand("decrypt", (*wallet.LightWallet).Decrypt),
		},
		"unlock": {
			short: "Unlock wallet encryption for spending",
			help: "Unlock the wallet's encryption in memory, allowing spending from this wallet.\n" +
				"Note 1: This will decrypt spending keys in memory only. The wallet remains encrypted on disk.\n" +
				"Usage:\n" +
				"unlock password\n",
			exec: passwordCommand("unlock", (*wallet.LightWallet).Unlock),
		},
		"lock": {
			short: "Lock a wallet that's been temporarily unlocked",
			help: "Lock a wallet that's been temporarily unlocked. You should already have encryption enabled.\n" +
				"Note 1: This will remove all spending keys from memory. The wallet remains encrypted on disk.\n" +
				"Usage:\n" +
				"lock\n",
			exec: func(ctx context.Context, r *Runner, args []string) string {
				if len(args) != 0 {
					return r.help("lock")
				}
				if err := r.wallet.Lock(); err != nil {
					return errResponse(err)
				}
				return successResponse()
			},
		},
		"encryptionstatus": {
			short: "Check if the wallet is encrypted and if it is locked",
			help: "Check if the wallet is encrypted and if it is locked\n" +
				"Usage:\n" +
				"encryptionstatus\n",
			exec: func(ctx context.Context, r *Runner, args []string) string {
				return jsonResponse(map[string]bool{
					"encrypted": r.wallet.IsEncrypted(),
					"locked":    r.wallet.IsLocked(),
				})
			},
		},
		"save": {
			short: "Save wallet file to disk",
			help: "Save the wallet to disk\n" +
				"Usage:\n" +
				"save\n\n" +
				"The wallet is saved to disk. The wallet is periodically saved to disk (and also saved upon exit)\n" +
				"but you can use this command to explicitly save it to disk\n",
			exec: execSave,
		},
		"quit": {
			short: "Quit the light client",
			help: "Save the wallet to disk and quit\n" +
				"Usage:\n" +
				"quit\n",
			exec: execSave,
		},
	}
}

func (r *Runner) help(name string) string {
	return r.commands[name].help
}

func execHelp(ctx context.Context, r *Runner, args []string) string {
	switch len(args) {
	case 0:
		var b strings.Builder
		b.WriteString("Available commands:\n")
		for _, name := range r.Names() {
			fmt.Fprintf(&b, "%s - %s\n", name, r.commands[name].short)
		}
		return b.String()
	case 1:
		c, ok := r.commands[strings.ToLower(args[0])]
		if !ok {
			return fmt.Sprintf("Command %s not found", args[0])
		}
		return c.help
	}
	return r.help("help")
}

func execInfo(ctx context.Context, r *Runner, args []string) string {
	resp := map[string]interface{}{
		"version":             r.version,
		"server":              r.server,
		"chain_name":          r.wallet.ChainName(),
		"latest_block_height": r.wallet.LatestHeight(),
		"wallet_file":         r.wallet.Path(),
		"birthday":            r.wallet.Birthday(),
	}
	info, err := r.wallet.ChainInfo(ctx)
	if err != nil {
		resp["server_error"] = err.Error()
	} else {
		resp["chain_name"] = info.ChainName
		resp["latest_block_height"] = info.Height
		resp["server_version"] = info.Version
	}
	return jsonResponse(resp)
}

func execHeight(ctx context.Context, r *Runner, args []string) string {
	doSync := true
	switch len(args) {
	case 0:
	case 1:
		v, err := utils.ParseBool(args[0])
		if err != nil {
			return r.help("height")
		}
		doSync = v
	default:
		return r.help("height")
	}

	if doSync {
		if _, err := r.wallet.Sync(ctx); err != nil {
			return errResponse(err)
		}
	}
	return jsonResponse(map[string]uint64{"height": r.wallet.ScannedHeight()})
}

type addressBalance struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
}

func execBalance(ctx context.Context, r *Runner, args []string) string {
	bal := r.wallet.Balance()

	addrs := make([]addressBalance, 0, len(bal.Addresses))
	for _, addr := range r.wallet.Addresses() {
		addrs = append(addrs, addressBalance{Address: addr, Balance: bal.Addresses[addr]})
	}

	return jsonResponse(map[string]interface{}{
		"balance":         bal.Confirmed,
		"balance_display": utils.FormatAmount(bal.Confirmed),
		"pending_spend":   bal.Pending,
		"addresses":       addrs,
	})
}

func execSend(ctx context.Context, r *Runner, args []string) string {
	var recipients []wallet.Recipient

	switch len(args) {
	case 1:
		var raw []struct {
			Address string          `json:"address"`
			Amount  json.RawMessage `json:"amount"`
			Memo    string          `json:"memo"`
		}
		if err := json.Unmarshal([]byte(args[0]), &raw); err != nil {
			// Fall back to the single-quoted form shown in the help text
			payload := strings.ReplaceAll(args[0], "'", "\"")
			if json.Unmarshal([]byte(payload), &raw) != nil {
				return errResponse(fmt.Errorf("couldn't understand JSON: %w", err))
			}
		}
		for i, item := range raw {
			if item.Address == "" || len(item.Amount) == 0 {
				return errResponse(fmt.Errorf("entry %d needs 'address' and 'amount'", i))
			}
			amount, err := utils.ParseUnits(strings.Trim(string(item.Amount), "\""))
			if err != nil {
				return errResponse(err)
			}
			recipients = append(recipients, wallet.Recipient{Address: item.Address, Value: amount, Memo: item.Memo})
		}
	case 2, 3:
		amount, err := utils.ParseUnits(args[1])
		if err != nil {
			return errResponse(err)
		}
		rcpt := wallet.Recipient{Address: args[0], Value: amount}
		if len(args) == 3 {
			rcpt.Memo = args[2]
		}
		recipients = append(recipients, rcpt)
	default:
		return r.help("send")
	}

	txid, err := r.wallet.Send(ctx, recipients)
	if err != nil {
		return errResponse(err)
	}
	return jsonResponse(map[string]string{"txid": txid})
}

type txView struct {
	wallet.TxRecord
	AmountDisplay string `json:"amount_display"`
}

func execList(ctx context.Context, r *Runner, args []string) string {
	txs := r.wallet.Transactions()
	sort.SliceStable(txs, func(i, j int) bool {
		// Unconfirmed sends sort after everything mined
		hi, hj := txs[i].Height, txs[j].Height
		if txs[i].Unconfirmed != txs[j].Unconfirmed {
			return !txs[i].Unconfirmed
		}
		return hi < hj
	})

	out := make([]txView, len(txs))
	for i, tx := range txs {
		out[i] = txView{TxRecord: tx, AmountDisplay: utils.FormatSignedAmount(tx.Amount)}
	}
	return jsonResponse(out)
}

func execDefaultFee(ctx context.Context, r *Runner, args []string) string {
	switch len(args) {
	case 0:
	case 1:
		fee, err := utils.ParseUnits(args[0])
		if err != nil {
			return errResponse(err)
		}
		r.wallet.SetDefaultFee(fee)
	default:
		return r.help("defaultfee")
	}
	return jsonResponse(map[string]uint64{"defaultfee": r.wallet.DefaultFee()})
}

func execSave(ctx context.Context, r *Runner, args []string) string {
	if err := r.wallet.Save(); err != nil {
		return errResponse(fmt.Errorf("error writing wallet file: %w", err))
	}
	return successResponse()
}

// passwordCommand builds a command taking exactly one password argument
func passwordCommand(name string, op func(*wallet.LightWallet, []byte) error) func(context.Context, *Runner, []string) string {
	return func(ctx context.Context, r *Runner, args []string) string {
		if len(args) != 1 {
			return r.help(name)
		}
		if err := op(r.wallet, []byte(args[0])); err != nil {
			if errors.Is(err, wallet.ErrBadPassword) {
				return errResponse(errors.New("incorrect password"))
			}
			return errResponse(err)
		}
		return successResponse()
	}
}
