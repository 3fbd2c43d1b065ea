package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Seednode/bankbox/ledger"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind            string
	clientBuffer    int
	database        string
	eventBuffer     int
	port            int
	prefix          string
	profile         bool
	startingBalance string
	tlsCert         string
	tlsKey          string
	verbose         bool
	version         bool

	defaultBalance decimal.Decimal
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.eventBuffer < 1 {
		return fmt.Errorf("invalid event buffer (must be at least 1): %d", c.eventBuffer)
	}
	if c.clientBuffer < 1 {
		return fmt.Errorf("invalid client buffer (must be at least 1): %d", c.clientBuffer)
	}

	balance, err := decimal.NewFromString(c.startingBalance)
	if err != nil {
		return fmt.Errorf("invalid starting balance %q: %w", c.startingBalance, err)
	}
	if balance.IsNegative() || !ledger.MoneyInRange(balance) {
		return fmt.Errorf("invalid starting balance (must be between 0 and %d digits with at most %d decimal places): %s",
			ledger.MoneyDigits, ledger.MoneyScale, c.startingBalance)
	}
	c.defaultBalance = balance

	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("BANKBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "bankbox",
		Short:         "A shared bank for board game nights: one bank, many players, live balances.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: BANKBOX_BIND)")
	fs.IntVar(&cfg.clientBuffer, "client-buffer", 32, "events queued per websocket client before it is dropped (env: BANKBOX_CLIENT_BUFFER)")
	fs.StringVarP(&cfg.database, "database", "d", "", "path to sqlite database; games are kept in memory if unset (env: BANKBOX_DATABASE)")
	fs.IntVar(&cfg.eventBuffer, "event-buffer", 256, "events queued for broadcast before new ones are dropped (env: BANKBOX_EVENT_BUFFER)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: BANKBOX_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: BANKBOX_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: BANKBOX_PROFILE)")
	fs.StringVar(&cfg.startingBalance, "starting-balance", "1500", "balance given to new players when a game does not set one (env: BANKBOX_STARTING_BALANCE)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: BANKBOX_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: BANKBOX_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: BANKBOX_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: BANKBOX_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("bankbox v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
