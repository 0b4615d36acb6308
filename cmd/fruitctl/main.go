package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"fruitbot/internal/catalog"
	cl "fruitbot/internal/cli"
	"fruitbot/internal/config"
	"fruitbot/internal/gacha"
	"fruitbot/internal/syncq"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const requestTimeout = 30 * time.Second

// env carries what every subcommand needs.
type env struct {
	cfg config.CLIConfig
	dir string
}

func main() {
	e := &env{cfg: config.LoadCLIFromEnv()}

	root := &cobra.Command{
		Use:          "fruitctl",
		Short:        "Devil fruit gacha client",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			dir, err := cl.BaseDir(e.cfg.Home)
			if err != nil {
				return err
			}
			e.dir = dir
			return nil
		},
	}
	root.PersistentFlags().StringVar(&e.cfg.APIBaseURL, "api", e.cfg.APIBaseURL, "API base URL")

	root.AddCommand(
		newLoginCmd(e),
		newLogoutCmd(e),
		newPullCmd(e),
		newBalanceCmd(e),
		newIncomeCmd(e),
		newPityCmd(e),
		newCollectionCmd(e),
		newHistoryCmd(e),
		newSyncCmd(e),
		newAdminCmd(e),
		newCatalogCmd(),
		newSimulateCmd(),
	)

	if err := root.Execute(); err != nil {
		printError(fmt.Sprintf("error: %v", err))
		os.Exit(1)
	}
}

func (e *env) client() *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(e.cfg.APIBaseURL), "/"))
}

func (e *env) session() (cl.Session, error) {
	sess, err := cl.LoadSession(e.dir)
	if err != nil {
		return cl.Session{}, err
	}
	if sess.Expired(time.Now()) {
		return cl.Session{}, errors.New("session expired, run `fruitctl login` again")
	}
	return sess, nil
}

func newLoginCmd(e *env) *cobra.Command {
	var (
		playerID string
		username string
		admin    bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Obtain a token for a player and save it locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if strings.TrimSpace(playerID) == "" {
				if playerID, err = promptRequired("Player ID"); err != nil {
					return err
				}
			}
			key := e.cfg.AdminKey
			if key == "" {
				if key, err = promptSecret("Admin key"); err != nil {
					return err
				}
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			tok, err := e.client().IssueToken(ctx, key, playerID, username, admin)
			if err != nil {
				return err
			}
			if err := cl.SaveSession(e.dir, cl.Session{
				AccessToken: tok.AccessToken,
				PlayerID:    tok.PlayerID,
				Username:    tok.Username,
				ExpiresAt:   tok.ExpiresAt,
			}); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Logged in as %s.", tok.PlayerID))
			return nil
		},
	}
	cmd.Flags().StringVar(&playerID, "player", "", "player id")
	cmd.Flags().StringVar(&username, "username", "", "display name")
	cmd.Flags().BoolVar(&admin, "admin", false, "request an admin token")
	return cmd
}

func newLogoutCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the local session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearSession(e.dir); err != nil {
				return err
			}
			printSuccess("Logged out.")
			return nil
		},
	}
}

func newPullCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:     "pull [count]",
		Aliases: []string{"summon"},
		Short:   "Pull devil fruits",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := e.session()
			if err != nil {
				return err
			}
			count := 1
			if len(args) == 1 {
				if count, err = strconv.Atoi(strings.TrimSpace(args[0])); err != nil || count < 1 {
					return errors.Newf("invalid count %q", args[0])
				}
			}
			idem := uuid.NewString()
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			out, err := e.client().Pull(ctx, sess.AccessToken, count, idem)
			if err != nil {
				return e.queueOnNetworkError(err, syncq.Command{
					Method:         "POST",
					Path:           "/v1/pulls",
					Body:           map[string]any{"count": count},
					IdempotencyKey: idem,
				})
			}
			renderPulls(out)
			return nil
		},
	}
}

func newBalanceCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show berries and account stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := e.session()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			out, err := e.client().Balance(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			renderBalance(out)
			return nil
		},
	}
}

func newIncomeCmd(e *env) *cobra.Command {
	var passiveOnly bool
	cmd := &cobra.Command{
		Use:   "income",
		Short: "Collect passive income and claim the manual bonus",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := e.session()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			client := e.client()
			if passiveOnly {
				out, err := client.PassiveIncome(ctx, sess.AccessToken)
				if err != nil {
					return err
				}
				renderIncome("Passive income", out)
				return nil
			}
			out, err := client.ManualIncome(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			if out.Passive.Granted > 0 {
				renderIncome("Passive income", out.Passive)
			}
			renderIncome("Manual claim", out.Manual)
			return nil
		},
	}
	cmd.Flags().BoolVar(&passiveOnly, "passive", false, "only accrue passive income")
	return cmd
}

func newPityCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "pity",
		Short: "Show pity progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := e.session()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			out, err := e.client().Pity(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			renderPity(out)
			return nil
		},
	}
}

func newCollectionCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "collection",
		Short: "List owned devil fruits",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := e.session()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			out, err := e.client().Collection(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			renderCollection(out)
			return nil
		},
	}
}

func newHistoryCmd(e *env) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent ledger entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := e.session()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			out, err := e.client().History(ctx, sess.AccessToken, limit)
			if err != nil {
				return err
			}
			renderHistory(out)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "entries to show (1-200)")
	return cmd
}

func newSyncCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay commands queued while the API was unreachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := e.session()
			if err != nil {
				return err
			}
			queue, err := syncq.Open(e.dir)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*requestTimeout)
			defer cancel()
			client := e.client()

			replayed, rejected, kept := 0, 0, 0
			dropped, err := queue.Replay(func(c syncq.Command) syncq.Outcome {
				_, err := client.Do(ctx, c.Method, c.Path, sess.AccessToken, c.Body, c.IdempotencyKey)
				switch {
				case err == nil:
					replayed++
					return syncq.Done
				case cl.Queueable(err):
					kept++
					printWarn(fmt.Sprintf("Still failing %s %s: %v", c.Method, c.Path, err))
					return syncq.Keep
				default:
					rejected++
					printError(fmt.Sprintf("Rejected %s %s: %v", c.Method, c.Path, err))
					return syncq.Done
				}
			})
			if err != nil {
				return err
			}
			if dropped == 0 && kept == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			printSuccess(fmt.Sprintf("Sync complete: replayed=%d rejected=%d remaining=%d", replayed, rejected, kept))
			return nil
		},
	}
}

func newAdminCmd(e *env) *cobra.Command {
	admin := &cobra.Command{
		Use:   "admin",
		Short: "Operator commands (admin token required)",
	}
	admin.AddCommand(&cobra.Command{
		Use:   "adjust <player_id> <delta> <reason>",
		Short: "Credit or debit a player's berries",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := e.session()
			if err != nil {
				return err
			}
			delta, err := strconv.ParseInt(strings.TrimSpace(args[1]), 10, 64)
			if err != nil {
				return errors.Newf("invalid delta %q", args[1])
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			acct, err := e.client().AdminAdjust(ctx, sess.AccessToken, args[0], delta, args[2])
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("%s balance is now %s berries.", acct.PlayerID, formatBerries(acct.Balance)))
			return nil
		},
	})
	admin.AddCommand(&cobra.Command{
		Use:   "wipe <player_id>",
		Short: "Delete a player's account, collection and history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := e.session()
			if err != nil {
				return err
			}
			ok, err := promptConfirm(fmt.Sprintf("Wipe %s permanently?", args[0]))
			if err != nil {
				return err
			}
			if !ok {
				printInfo("Aborted.")
				return nil
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			if err := e.client().AdminWipe(ctx, sess.AccessToken, args[0]); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Wiped %s.", args[0]))
			return nil
		},
	})
	admin.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show economy totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := e.session()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			out, err := e.client().AdminStats(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			renderStats(out)
			return nil
		},
	})
	return admin
}

func newCatalogCmd() *cobra.Command {
	cat := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect item catalogs",
	}
	cat.AddCommand(&cobra.Command{
		Use:   "validate [path]",
		Short: "Validate a catalog file, or the built-in catalog",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadCatalog(args)
			if err != nil {
				return err
			}
			renderCatalog(c)
			return nil
		},
	})
	return cat
}

func newSimulateCmd() *cobra.Command {
	var (
		pulls int
		seed  uint64
		path  string
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Simulate pulls offline to inspect rates and pity",
		RunE: func(cmd *cobra.Command, args []string) error {
			var paths []string
			if path != "" {
				paths = []string{path}
			}
			c, err := loadCatalog(paths)
			if err != nil {
				return err
			}
			cfg := gacha.DefaultConfig()
			cfg.Table = c.Rates()
			rng := gacha.DefaultRNG()
			if seed != 0 {
				rng = gacha.NewSeededRNG(seed)
			}
			rep, err := gacha.Simulate(cfg, rng, pulls)
			if err != nil {
				return err
			}
			renderSimulation(rep)
			return nil
		},
	}
	cmd.Flags().IntVar(&pulls, "pulls", 10000, "number of pulls")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "seed for a reproducible run (0 = random)")
	cmd.Flags().StringVar(&path, "catalog", "", "catalog file (default: built-in)")
	return cmd
}

func loadCatalog(args []string) (*catalog.Catalog, error) {
	log := zap.NewNop()
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return catalog.Default(log)
	}
	return catalog.Load(args[0], log)
}

// queueOnNetworkError keeps the command for `fruitctl sync` when the API
// could not be reached. Rejections are returned as is.
func (e *env) queueOnNetworkError(err error, c syncq.Command) error {
	if !cl.Queueable(err) {
		return err
	}
	queue, qerr := syncq.Open(e.dir)
	if qerr != nil {
		return errors.CombineErrors(err, qerr)
	}
	c.QueuedAt = time.Now().UTC()
	if qerr := queue.Push(c); qerr != nil {
		return errors.CombineErrors(err, qerr)
	}
	printWarn(fmt.Sprintf("API unreachable (%v). Queued; run `fruitctl sync` later.", err))
	return nil
}
