// Command-line front end for the light wallet
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/spectrum-chain/litewallet/core/bridge"
	"github.com/spectrum-chain/litewallet/core/commands"
	"github.com/spectrum-chain/litewallet/core/config"
	"github.com/spectrum-chain/litewallet/core/logging"
)

// envPrefix namespaces environment overrides, e.g. LITEWALLET_SERVER
const envPrefix = "LITEWALLET"

// configName is the optional config file looked up in the app directory
const configName = "litewallet"

// CLI represents the command-line interface
type CLI struct {
	version string
	in      io.Reader
	out     io.Writer
	errOut  io.Writer
	open    bridge.Opener
	v       *viper.Viper
	rootCmd *cobra.Command
}

// Option customizes a CLI
type Option func(*CLI)

// WithOpener replaces the wallet engine constructor
func WithOpener(open bridge.Opener) Option {
	return func(c *CLI) {
		c.open = open
	}
}

// WithIO replaces stdin, stdout and stderr
func WithIO(in io.Reader, out, errOut io.Writer) Option {
	return func(c *CLI) {
		c.in = in
		c.out = &syncWriter{w: out}
		c.errOut = &syncWriter{w: errOut}
	}
}

// NewCLI creates a new CLI instance
func NewCLI(version string, opts ...Option) *CLI {
	c := &CLI{
		version: version,
		in:      os.Stdin,
		out:     &syncWriter{w: os.Stdout},
		errOut:  &syncWriter{w: os.Stderr},
		open:    commands.NewOpener(version),
		v:       viper.New(),
	}
	for _, opt := range opts {
		opt(c)
	}

	rootCmd := &cobra.Command{
		Use:   "litewallet [flags] [command [args...]]",
		Short: "Light wallet command line client",
		Long: "Light wallet command line client.\n\n" +
			"Without a command an interactive prompt is started. With a command, it is\n" +
			"run once, the wallet is saved and the program exits.",
		Version:       version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runWallet(cmd.Context(), args)
		},
	}
	// Wallet command arguments may look like flags, e.g. negative numbers
	rootCmd.Flags().SetInterspersed(false)
	// "help" is a wallet command, cobra's own stays reachable through -h
	rootCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})

	addWalletFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(c.recoverCmd())
	rootCmd.AddCommand(c.versionCmd())

	c.rootCmd = rootCmd
	return c
}

// addWalletFlags registers the settings shared by every subcommand. Each
// one may also come from LITEWALLET_<NAME> or the config file.
func addWalletFlags(flags *pflag.FlagSet) {
	flags.String("server", config.DefaultServer, "chain server to connect to, as [scheme]://[host]:[port]")
	flags.String("seed", "", "seed phrase to restore a wallet from")
	flags.String("birthday", "", "block height to start scanning a restored wallet from")
	flags.String("datadir", "", "directory for the wallet and log files (default ~/.<appdir>)")
	flags.String("appdir", config.DefaultAppDir, "application directory name under the home directory")
	flags.String("wallet", config.DefaultWalletName, "wallet file name")
	flags.String("log", config.DefaultLogName, "debug log file name")
	flags.Bool("nosync", false, "do not sync the wallet at startup")
	flags.String("loglevel", "info", "log level (trace, debug, info, warn, error, critical, off)")
	flags.String("config", "", "config file (default <datadir>/litewallet.toml)")
}

// Run executes the CLI with the given arguments, excluding the program name
func (c *CLI) Run(ctx context.Context, args []string) error {
	c.rootCmd.SetArgs(args)
	c.rootCmd.SetIn(c.in)
	c.rootCmd.SetOut(c.out)
	c.rootCmd.SetErr(c.errOut)

	if err := c.rootCmd.ExecuteContext(ctx); err != nil {
		var reported *reportedError
		if !errors.As(err, &reported) {
			fmt.Fprintf(c.errOut, "Error: %v\n", err)
		}
		return err
	}
	return nil
}

// reportedError marks an error already shown to the user
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// loadSettings binds flags, LITEWALLET_* variables and the optional config
// file into viper
func (c *CLI) loadSettings(cmd *cobra.Command) error {
	if err := c.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	c.v.SetEnvPrefix(envPrefix)
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()
	c.v.SetConfigType("toml")

	if path := c.v.GetString("config"); path != "" {
		c.v.SetConfigFile(path)
		if err := c.v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		return nil
	}

	if dir := c.v.GetString("datadir"); dir != "" {
		c.v.AddConfigPath(dir)
	} else if home, err := os.UserHomeDir(); err == nil {
		c.v.AddConfigPath(filepath.Join(home, "."+c.v.GetString("appdir")))
	}
	c.v.SetConfigName(configName)
	if err := c.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return nil
}

func (c *CLI) rawParams(interactive bool) config.RawParams {
	return config.RawParams{
		Server:      c.v.GetString("server"),
		Seed:        c.v.GetString("seed"),
		Birthday:    c.v.GetString("birthday"),
		DataDir:     c.v.GetString("datadir"),
		AppDir:      c.v.GetString("appdir"),
		WalletName:  c.v.GetString("wallet"),
		LogName:     c.v.GetString("log"),
		NoSync:      c.v.GetBool("nosync"),
		Interactive: interactive,
	}
}

// runWallet validates the configuration, starts the wallet worker and
// hands control to the single-shot runner or the interactive prompt
func (c *CLI) runWallet(ctx context.Context, args []string) error {
	if err := c.loadSettings(c.rootCmd); err != nil {
		return err
	}

	interactive := len(args) == 0
	cfg, err := config.Validate(c.rawParams(interactive))
	if err != nil {
		fmt.Fprintln(c.errOut, err)
		return &reportedError{err}
	}

	lvl, err := logging.ParseLevel(c.v.GetString("loglevel"))
	if err != nil {
		return err
	}
	backend, err := setupLogging(cfg, lvl)
	if err != nil {
		// The log lives in the data directory, so this is the first write there
		serr := bridge.Classify(err)
		c.reportStartupError(cfg, serr)
		return &reportedError{serr}
	}
	defer backend.Close()

	var notify func(string)
	if interactive {
		notify = func(msg string) {
			fmt.Fprintln(c.out, msg)
		}
	}

	cmds, resps, err := bridge.Startup(ctx, cfg, c.open, notify)
	if err != nil {
		log.Errorf("Startup failed: %v", err)
		c.reportStartupError(cfg, err)
		return &reportedError{err}
	}

	if !interactive {
		return c.runOnce(cmds, resps, args[0], args[1:])
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	return c.repl(ctx, cmds, resps)
}

// reportStartupError explains why the wallet could not be opened
func (c *CLI) reportStartupError(cfg *config.Config, err error) {
	fmt.Fprintf(c.errOut, "Error during startup:%v\n", err)
	fmt.Fprintln(c.errOut, "If you repeatedly run into this issue, you might have to restore your wallet from your seed phrase.")

	if !bridge.IsPermissionDenied(err) {
		return
	}

	user := os.Getenv("USER")
	fmt.Fprintf(c.errOut, "USER: %s\n", user)
	fmt.Fprintf(c.errOut, "HOME: %s\n", os.Getenv("HOME"))
	if exe, exeErr := os.Executable(); exeErr == nil {
		fmt.Fprintf(c.errOut, "Executable: %s\n", exe)
	}
	fmt.Fprintf(c.errOut, "User %s must have permission to write to '%s%c' .\n", user, cfg.DataDir, filepath.Separator)
}

// versionCmd prints the build version
func (c *CLI) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(c.out, "litewallet %s\n", c.version)
		},
	}
}
