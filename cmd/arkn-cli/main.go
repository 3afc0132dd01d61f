package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"arkenstone/crypto"
	"arkenstone/native/staking"
	"arkenstone/services/stakingd/api"
	"arkenstone/services/stakingd/client"
	"arkenstone/services/stakingd/middleware"
)

type flags struct {
	profilePath string
	endpoint    string
	token       string
	timeout     time.Duration
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:           "arkn-cli",
		Short:         "Arkenstone staking ledger client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&f.profilePath, "profile", defaultProfilePath(), "Path to the YAML connection profile")
	root.PersistentFlags().StringVar(&f.endpoint, "endpoint", "", "Override the stakingd endpoint")
	root.PersistentFlags().StringVar(&f.token, "token", "", "Override the bearer token")
	root.PersistentFlags().DurationVar(&f.timeout, "timeout", 15*time.Second, "Request timeout")

	root.AddCommand(
		newStakeCmd(f, "deposit", "Stake principal into a pool"),
		newStakeCmd(f, "withdraw", "Withdraw principal from a pool"),
		newClaimCmd(f),
		newPositionCmd(f),
		newPendingCmd(f),
		newRateCmd(f),
		newTVLCmd(f),
		newEventsCmd(f),
		newOwnerCmd(f),
		newAuthCmd(f),
	)
	return root
}

func (f *flags) profile() (Profile, error) {
	profile, err := loadProfile(f.profilePath)
	if err != nil {
		return Profile{}, err
	}
	if f.endpoint != "" {
		profile.Endpoint = f.endpoint
	}
	if f.token != "" {
		profile.Token = f.token
	}
	return profile, nil
}

func (f *flags) client() (*client.Client, error) {
	profile, err := f.profile()
	if err != nil {
		return nil, err
	}
	token, err := profile.bearer()
	if err != nil {
		return nil, err
	}
	return client.New(profile.Endpoint, client.WithToken(token))
}

func (f *flags) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), f.timeout)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parsePoolAmount(args []string) (staking.PoolID, *uint256.Int, error) {
	pool, err := staking.ParsePoolID(args[0])
	if err != nil {
		return "", nil, err
	}
	amount, err := uint256.FromDecimal(args[1])
	if err != nil {
		return "", nil, fmt.Errorf("invalid amount %q: %w", args[1], err)
	}
	return pool, amount, nil
}

func newStakeCmd(f *flags, name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <pool> <amount>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, amount, err := parsePoolAmount(args)
			if err != nil {
				return err
			}
			c, err := f.client()
			if err != nil {
				return err
			}
			ctx, cancel := f.context(cmd)
			defer cancel()
			call := c.Deposit
			if name == "withdraw" {
				call = c.Withdraw
			}
			receipt, err := call(ctx, pool, amount)
			if err != nil {
				return err
			}
			return printJSON(cmd, receipt)
		},
	}
}

func newClaimCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "claim <pool>",
		Short: "Mint the pending reward of a pool position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := staking.ParsePoolID(args[0])
			if err != nil {
				return err
			}
			c, err := f.client()
			if err != nil {
				return err
			}
			ctx, cancel := f.context(cmd)
			defer cancel()
			receipt, err := c.Claim(ctx, pool)
			if err != nil {
				return err
			}
			return printJSON(cmd, receipt)
		},
	}
}

func newPositionCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "position <pool> <address>",
		Short: "Show a position with its pending reward",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := staking.ParsePoolID(args[0])
			if err != nil {
				return err
			}
			user, err := crypto.ParseAddress(args[1])
			if err != nil {
				return err
			}
			c, err := f.client()
			if err != nil {
				return err
			}
			ctx, cancel := f.context(cmd)
			defer cancel()
			view, err := c.Position(ctx, pool, user)
			if err != nil {
				return err
			}
			return printJSON(cmd, view)
		},
	}
}

func newPendingCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "pending <pool> <address>",
		Short: "Show the reward a position would receive if claimed now",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := staking.ParsePoolID(args[0])
			if err != nil {
				return err
			}
			user, err := crypto.ParseAddress(args[1])
			if err != nil {
				return err
			}
			c, err := f.client()
			if err != nil {
				return err
			}
			ctx, cancel := f.context(cmd)
			defer cancel()
			pending, err := c.Pending(ctx, pool, user)
			if err != nil {
				return err
			}
			return printJSON(cmd, pending)
		},
	}
}

func newRateCmd(f *flags) *cobra.Command {
	rate := &cobra.Command{
		Use:   "rate",
		Short: "Inspect or change pool rates",
	}
	rate.AddCommand(&cobra.Command{
		Use:   "get <pool>",
		Short: "Show the current annual rate and its bounds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := staking.ParsePoolID(args[0])
			if err != nil {
				return err
			}
			c, err := f.client()
			if err != nil {
				return err
			}
			ctx, cancel := f.context(cmd)
			defer cancel()
			out, err := c.Rate(ctx, pool)
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}, &cobra.Command{
		Use:   "set <pool> <bps>",
		Short: "Change a pool rate (owner only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := staking.ParsePoolID(args[0])
			if err != nil {
				return err
			}
			bps, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid bps %q: %w", args[1], err)
			}
			c, err := f.client()
			if err != nil {
				return err
			}
			ctx, cancel := f.context(cmd)
			defer cancel()
			out, err := c.SetRate(ctx, pool, bps)
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	})
	return rate
}

func newTVLCmd(f *flags) *cobra.Command {
	var history int
	cmd := &cobra.Command{
		Use:   "tvl",
		Short: "Show total value locked per pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := f.client()
			if err != nil {
				return err
			}
			ctx, cancel := f.context(cmd)
			defer cancel()
			if history > 0 {
				snaps, err := c.TVLHistory(ctx, history)
				if err != nil {
					return err
				}
				return printJSON(cmd, snaps)
			}
			out, err := c.TVL(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().IntVar(&history, "history", 0, "Show the N most recent snapshots instead of live totals")
	return cmd
}

func newEventsCmd(f *flags) *cobra.Command {
	var (
		q      client.EventQuery
		follow bool
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Page through indexed ledger and token events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := f.client()
			if err != nil {
				return err
			}
			if follow {
				enc := json.NewEncoder(cmd.OutOrStdout())
				return c.StreamEvents(cmd.Context(), q, func(evt api.EventResponse) error {
					return enc.Encode(evt)
				})
			}
			ctx, cancel := f.context(cmd)
			defer cancel()
			out, err := c.Events(ctx, q)
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().StringVar(&q.Type, "type", "", "Event type, e.g. staking.deposited")
	cmd.Flags().StringVar(&q.Pool, "pool", "", "Pool filter (base|reward)")
	cmd.Flags().StringVar(&q.Account, "account", "", "Account filter")
	cmd.Flags().Int64Var(&q.After, "after", 0, "Only events with a sequence greater than this")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "Maximum number of events")
	cmd.Flags().BoolVar(&follow, "follow", false, "Stream events as they are indexed")
	return cmd
}

func newOwnerCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "owner",
		Short: "Show the rate administrator and the ledger address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := f.client()
			if err != nil {
				return err
			}
			ctx, cancel := f.context(cmd)
			defer cancel()
			out, err := c.Owner(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
}

func newAuthCmd(f *flags) *cobra.Command {
	auth := &cobra.Command{
		Use:   "auth",
		Short: "Manage API credentials",
	}

	var ttl time.Duration
	token := &cobra.Command{
		Use:   "token <address>",
		Short: "Sign a development JWT for address using the shared secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, err := crypto.ParseAddress(args[0])
			if err != nil {
				return err
			}
			profile, err := f.profile()
			if err != nil {
				return err
			}
			secret, err := readSecret(profile.SecretEnv, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			signed, err := middleware.IssueToken(secret, profile.Issuer, subject, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), signed)
			return err
		},
	}
	token.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")

	login := &cobra.Command{
		Use:   "login <address>",
		Short: "Store the endpoint and subject in the profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, err := crypto.ParseAddress(args[0])
			if err != nil {
				return err
			}
			profile, err := f.profile()
			if err != nil {
				return err
			}
			profile.Subject = subject.Hex()
			if err := saveProfile(f.profilePath, profile); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "profile %s updated\n", f.profilePath)
			return err
		},
	}
	auth.AddCommand(token, login)
	return auth
}
