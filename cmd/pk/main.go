package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"pokeclicker/internal/candy"
	cl "pokeclicker/internal/cli"
	"pokeclicker/internal/config"
	"pokeclicker/internal/game"
	"pokeclicker/internal/syncq"
	"pokeclicker/internal/upgrades"

	"github.com/spf13/cobra"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "pk",
		Short:        "Pokeclicker CLI game client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "API base URL")

	root.AddCommand(
		newSignupCmd(&apiBase),
		newLoginCmd(&apiBase),
		newLogoutCmd(),
		newMeCmd(&apiBase),
		newClickCmd(&apiBase),
		newSyncCmd(&apiBase),
		newUpgradesCmd(&apiBase),
		newUpgradeCmd(&apiBase),
		newPriceCmd(&apiBase),
		newInfoCmd(&apiBase),
		newDexCmd(&apiBase),
		newBuyCmd(&apiBase),
		newCatchCmd(&apiBase),
		newTrainCmd(&apiBase),
		newFavoriteCmd(&apiBase),
		newSelectCmd(&apiBase),
		newRanksCmd(&apiBase),
		newDeleteAccountCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func requireSession() (cl.Session, error) {
	sess, err := cl.LoadSession()
	if err != nil {
		return cl.Session{}, fmt.Errorf("login required: %w", err)
	}
	return sess, nil
}

func openQueue() (*syncq.Queue, error) {
	dir, err := cl.BaseDir()
	if err != nil {
		return nil, err
	}
	return syncq.Open(dir)
}

func saveAuth(res cl.AuthResult) error {
	return cl.SaveSession(cl.Session{
		AccessToken: res.AccessToken,
		ExpiresAt:   res.ExpiresAt,
		UserID:      res.UserID,
		Username:    res.Username,
	})
}

func newSignupCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "signup",
		Short: "Create a Pokeclicker account",
		RunE: func(cmd *cobra.Command, args []string) error {
			username, err := promptUsername()
			if err != nil {
				return err
			}
			password, err := promptRequired("Password")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			res, err := newClient(apiBase).Signup(ctx, username, password)
			if err != nil {
				return err
			}
			if err := saveAuth(res); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Welcome, %s. Bulbasaur has joined your team.", res.Username))
			return nil
		},
	}
}

func newLoginCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Login to Pokeclicker",
		RunE: func(cmd *cobra.Command, args []string) error {
			username, err := promptRequired("Username")
			if err != nil {
				return err
			}
			password, err := promptRequired("Password")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			res, err := newClient(apiBase).Login(ctx, username, password)
			if err != nil {
				return err
			}
			if err := saveAuth(res); err != nil {
				return err
			}
			printSuccess("Login successful.")
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear local session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearSession(); err != nil {
				return err
			}
			printSuccess("Logged out.")
			return nil
		},
	}
}

func newMeCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show your trainer profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			p, err := newClient(apiBase).Me(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			renderProfile(p)
			if queue, err := openQueue(); err == nil {
				if total, n, err := queue.Pending(); err == nil && n > 0 {
					printWarn(fmt.Sprintf("%s candy from %d offline batches waiting for `pk sync`.", formatCandy(total), n))
				}
			}
			return nil
		},
	}
}

func newClickCmd(apiBase *string) *cobra.Command {
	var idle time.Duration
	cmd := &cobra.Command{
		Use:   "click [count]",
		Short: "Click for rare candy",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			count := 1
			if len(args) > 0 {
				v, err := strconv.Atoi(strings.TrimSpace(args[0]))
				if err != nil || v < 1 {
					return fmt.Errorf("click count must be a positive number")
				}
				count = v
			}
			sess, err := requireSession()
			if err != nil {
				return err
			}
			queue, err := openQueue()
			if err != nil {
				return err
			}
			client := newClient(apiBase)
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			yield := upgrades.ComputeYield(nil, 0)
			if p, err := client.Me(ctx, sess.AccessToken); err == nil {
				yield = p.Yield
			} else if !isNetworkError(err) {
				return err
			} else {
				printWarn("Offline: clicking at base yield.")
			}

			earned, lucky := earnClicks(yield, count, rand.Float64)
			earned = earned.Add(yield.PassiveAmount(idle.Seconds()))
			if _, err := queue.Push(earned); err != nil {
				return err
			}
			msg := fmt.Sprintf("+%s rare candy", formatCandy(earned))
			if lucky > 0 {
				msg += fmt.Sprintf(" (%d lucky hits)", lucky)
			}
			printSuccess(msg)
			return flushQueue(ctx, client, sess, queue)
		},
	}
	cmd.Flags().DurationVar(&idle, "idle", 0, "credit autoclicker output for this long")
	return cmd
}

// earnClicks sums count clicks. roll returns values in [0,1).
func earnClicks(y upgrades.Yield, count int, roll func() float64) (candy.Amount, int) {
	total := candy.Zero
	lucky := 0
	for range count {
		hit := roll()*100 < y.LuckyChancePct
		if hit {
			lucky++
		}
		total = total.Add(y.ClickAmount(hit))
	}
	return total, lucky
}

func newSyncCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Send offline candy to the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			queue, err := openQueue()
			if err != nil {
				return err
			}
			if _, n, err := queue.Pending(); err != nil {
				return err
			} else if n == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()
			return flushQueue(ctx, newClient(apiBase), sess, queue)
		},
	}
}

func flushQueue(ctx context.Context, client *cl.Client, sess cl.Session, queue *syncq.Queue) error {
	res, err := queue.Flush(ctx, func(ctx context.Context, e syncq.Entry) error {
		_, err := client.AddCandy(ctx, sess.AccessToken, e.Amount, e.IdempotencyKey)
		if cl.IsStatus(err, http.StatusConflict) {
			return nil
		}
		return err
	})
	if res.Sent > 0 {
		printSuccess(fmt.Sprintf("Synced %s candy in %d batches.", formatCandy(res.Total), res.Sent))
	}
	if err != nil {
		if isNetworkError(err) {
			printWarn(fmt.Sprintf("Server unreachable; %d batches stay queued for `pk sync`.", res.Remaining))
			return nil
		}
		return err
	}
	return nil
}

func newUpgradesCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "upgrades",
		Short: "List upgrades and their next cost",
		RunE: func(cmd *cobra.Command, args []string) error {
			token := ""
			if sess, err := cl.LoadSession(); err == nil {
				token = sess.AccessToken
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			views, err := newClient(apiBase).Upgrades(ctx, token)
			if err != nil {
				return err
			}
			renderUpgrades(views)
			return nil
		},
	}
}

func newUpgradeCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade <key>",
		Short: "Buy the next level of an upgrade",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.TrimSpace(args[0])
			if !upgrades.IsUpgrade(key) {
				return fmt.Errorf("unknown upgrade %q, one of: %s", key, strings.Join(upgrades.Keys(), ", "))
			}
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			res, err := newClient(apiBase).UpgradeStat(ctx, sess.AccessToken, key)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("%s is now level %d (paid %s, next %s).", res.Key, res.Level, formatCandy(res.Paid), formatCandy(res.NextCost)))
			return nil
		},
	}
}

func newPriceCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "price <pokemon-id>",
		Short: "Show what a Pokemon costs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := pokemonIDArg(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			q, err := newClient(apiBase).Price(ctx, id)
			if err != nil {
				return err
			}
			renderQuote(q)
			return nil
		},
	}
}

func newInfoCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "info <pokemon-id>",
		Short: "Show a Pokemon's types, stats and price",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := pokemonIDArg(args[0])
			if err != nil {
				return err
			}
			token := ""
			if sess, err := cl.LoadSession(); err == nil {
				token = sess.AccessToken
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			p, err := newClient(apiBase).Pokemon(ctx, token, id)
			if err != nil {
				return err
			}
			renderPokemonDetail(p)
			return nil
		},
	}
}

func newDexCmd(apiBase *string) *cobra.Command {
	var q game.PokedexQuery
	dex := &cobra.Command{
		Use:     "dex",
		Short:   "Browse the Pokedex",
		Aliases: []string{"pokedex"},
		RunE: func(cmd *cobra.Command, args []string) error {
			token := ""
			if sess, err := cl.LoadSession(); err == nil {
				token = sess.AccessToken
			} else if q.OwnedOnly {
				return fmt.Errorf("login required for --owned: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			page, err := newClient(apiBase).Pokedex(ctx, token, q)
			if err != nil {
				return err
			}
			renderPokedex(page.Pokemon)
			printInfo(fmt.Sprintf("Showing %d of %d", len(page.Pokemon), page.Total))
			return nil
		},
	}
	f := dex.Flags()
	f.StringVar(&q.Search, "search", "", "name contains")
	f.StringVar(&q.Generation, "gen", "", "region, e.g. kanto")
	f.StringSliceVar(&q.Types, "type", nil, "any of these types")
	f.StringVar(&q.SortBy, "sort", "id", "id, name, type, bst or price")
	f.StringVar(&q.SortOrder, "order", "asc", "asc or desc")
	f.IntVar(&q.Limit, "limit", 0, "rows per page")
	f.IntVar(&q.Offset, "offset", 0, "rows to skip")
	f.BoolVar(&q.OwnedOnly, "owned", false, "only Pokemon you own")

	var limit int
	rangeCmd := &cobra.Command{
		Use:   "range <min-bst> <max-bst>",
		Short: "List Pokemon within a base stat total range",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			minBST, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("min bst must be an integer")
			}
			maxBST, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("max bst must be an integer")
			}
			token := ""
			if sess, err := cl.LoadSession(); err == nil {
				token = sess.AccessToken
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			entries, err := newClient(apiBase).PokemonByBST(ctx, token, minBST, maxBST, limit)
			if err != nil {
				return err
			}
			renderPokedex(entries)
			return nil
		},
	}
	rangeCmd.Flags().IntVar(&limit, "limit", 0, "max rows")
	dex.AddCommand(rangeCmd)
	return dex
}

func newBuyCmd(apiBase *string) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "buy <pokemon-id>",
		Short: "Buy a Pokemon with rare candy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := pokemonIDArg(args[0])
			if err != nil {
				return err
			}
			sess, err := requireSession()
			if err != nil {
				return err
			}
			client := newClient(apiBase)
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()
			if !yes {
				q, err := client.Price(ctx, id)
				if err != nil {
					return err
				}
				renderQuote(q)
				choice, err := promptChoice("Buy it", []string{"yes", "no"}, "no")
				if err != nil {
					return err
				}
				if choice != "yes" {
					printInfo("Cancelled.")
					return nil
				}
			}
			res, err := client.Purchase(ctx, sess.AccessToken, id)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Bought #%d for %s rare candy.", res.PokemonID, formatCandy(res.Paid)))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation")
	return cmd
}

func newCatchCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "catch <pokemon-id>",
		Short: "Add a caught Pokemon to your collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := pokemonIDArg(args[0])
			if err != nil {
				return err
			}
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			p, err := newClient(apiBase).Catch(ctx, sess.AccessToken, id)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Caught #%d. You own %d Pokemon.", id, len(p.OwnedPokemonIDs)))
			return nil
		},
	}
}

func newTrainCmd(apiBase *string) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "train <pokemon-id>",
		Short: "Level up an owned Pokemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := pokemonIDArg(args[0])
			if err != nil {
				return err
			}
			sess, err := requireSession()
			if err != nil {
				return err
			}
			client := newClient(apiBase)
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()
			if !yes {
				view, err := client.PokemonUpgrade(ctx, sess.AccessToken, id)
				if err != nil {
					return err
				}
				printInfo(fmt.Sprintf("#%d is level %d; next level costs %s.", id, view.Level, formatCandy(view.Cost)))
				choice, err := promptChoice("Train", []string{"yes", "no"}, "no")
				if err != nil {
					return err
				}
				if choice != "yes" {
					printInfo("Cancelled.")
					return nil
				}
			}
			view, err := client.UpgradePokemon(ctx, sess.AccessToken, id)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("#%d reached level %d. Next level costs %s.", id, view.Level, formatCandy(view.Cost)))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation")
	return cmd
}

func newFavoriteCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "favorite <pokemon-id|none>",
		Short: "Mark an owned Pokemon as your favorite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := optionalPokemonIDArg(args[0])
			if err != nil {
				return err
			}
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			p, err := newClient(apiBase).SetFavorite(ctx, sess.AccessToken, id)
			if err != nil {
				return err
			}
			printSuccess("Favorite: " + optionalID(p.FavoritePokemonID))
			return nil
		},
	}
}

func newSelectCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "select <pokemon-id|none>",
		Short: "Choose the Pokemon shown on your clicker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := optionalPokemonIDArg(args[0])
			if err != nil {
				return err
			}
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			p, err := newClient(apiBase).SetSelected(ctx, sess.AccessToken, id)
			if err != nil {
				return err
			}
			printSuccess("Selected: " + optionalID(p.SelectedPokemonID))
			return nil
		},
	}
}

func newRanksCmd(apiBase *string) *cobra.Command {
	var limit, offset int
	ranks := &cobra.Command{
		Use:     "ranks",
		Short:   "Show the candy and Pokemon leagues",
		Aliases: []string{"leaderboard"},
		RunE: func(cmd *cobra.Command, args []string) error {
			token := ""
			if sess, err := cl.LoadSession(); err == nil {
				token = sess.AccessToken
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Ranks(ctx, token, limit, offset)
			if err != nil {
				return err
			}
			renderRanks(out)
			return nil
		},
	}
	ranks.Flags().IntVar(&limit, "limit", 0, "rows per league")
	ranks.Flags().IntVar(&offset, "offset", 0, "rows to skip")

	for _, show := range []bool{true, false} {
		use, short := "show", "Appear on the leaderboards"
		if !show {
			use, short = "hide", "Hide from the leaderboards"
		}
		ranks.AddCommand(&cobra.Command{
			Use:   use,
			Short: short,
			RunE: func(cmd *cobra.Command, args []string) error {
				sess, err := requireSession()
				if err != nil {
					return err
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
				defer cancel()
				p, err := newClient(apiBase).SetShowInRanks(ctx, sess.AccessToken, show)
				if err != nil {
					return err
				}
				printSuccess(fmt.Sprintf("Shown in ranks: %t", p.ShowInRanks))
				return nil
			},
		})
	}
	return ranks
}

func newDeleteAccountCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-account",
		Short: "Permanently delete your account",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			typed, err := promptRequired(fmt.Sprintf("Type %s to confirm", sess.Username))
			if err != nil {
				return err
			}
			if typed != sess.Username {
				printInfo("Cancelled.")
				return nil
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := newClient(apiBase).DeleteMe(ctx, sess.AccessToken); err != nil {
				return err
			}
			if err := cl.ClearSession(); err != nil {
				printError(err.Error())
			}
			printSuccess("Account deleted.")
			return nil
		},
	}
}

func pokemonIDArg(raw string) (int, error) {
	id, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(raw), "#"))
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid pokemon id %q", raw)
	}
	return id, nil
}

func optionalPokemonIDArg(raw string) (*int, error) {
	if strings.EqualFold(strings.TrimSpace(raw), "none") {
		return nil, nil
	}
	id, err := pokemonIDArg(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// isNetworkError is true when the request never got an API response.
func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *cl.APIError
	return !errors.As(err, &apiErr) && !errors.Is(err, context.Canceled)
}
