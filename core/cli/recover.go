package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/spectrum-chain/litewallet/core/config"
	"github.com/spectrum-chain/litewallet/core/utils"
	"github.com/spectrum-chain/litewallet/core/wallet"
)

// recoverCmd salvages the seed phrase from a wallet file that fails to load
func (c *CLI) recoverCmd() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Attempt to recover the seed phrase from a damaged wallet file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.loadSettings(cmd); err != nil {
				return err
			}
			cfg, err := config.Validate(c.rawParams(false))
			if err != nil {
				fmt.Fprintln(c.errOut, err)
				return &reportedError{err}
			}

			if !utils.FileExists(cfg.WalletPath()) {
				err := fmt.Errorf("no wallet file at %s", cfg.WalletPath())
				fmt.Fprintf(c.errOut, "Failed to recover seed. Error: %v\n", err)
				return &reportedError{err}
			}

			pw := []byte(password)
			if len(pw) == 0 {
				if pw, err = c.readPassword(); err != nil {
					return err
				}
			}
			defer clear(pw)

			phrase, err := wallet.RecoverSeed(cfg.WalletPath(), pw)
			if err != nil {
				fmt.Fprintf(c.errOut, "Failed to recover seed. Error: %v\n", err)
				return &reportedError{err}
			}
			fmt.Fprintf(c.out, "Recovered seed: '%s'\n", phrase)
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "password of an encrypted wallet (prompted when omitted on a terminal)")
	return cmd
}

// readPassword prompts without echo when stdin is a terminal. Elsewhere it
// returns an empty password, which is what unencrypted wallets need.
func (c *CLI) readPassword() ([]byte, error) {
	f, ok := c.in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return nil, nil
	}

	fmt.Fprint(c.errOut, "Wallet password (leave empty if not encrypted): ")
	defer fmt.Fprintln(c.errOut)

	raw, err := term.ReadPassword(int(f.Fd()))
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	return raw, nil
}
