package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	cl "leverclick/internal/cli"
	"leverclick/internal/config"
	"leverclick/internal/game"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "leverctl",
		Short:        "Leverclick command line client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "API base URL")

	root.AddCommand(
		newMatchCmd(&apiBase),
		newStateCmd(&apiBase),
		newClickCmd(&apiBase),
		newUpgradeClickCmd(&apiBase),
		newBuyCmd(&apiBase),
		newOpenCmd(&apiBase),
		newCloseCmd(&apiBase),
		newLeaderboardCmd(&apiBase),
		newGeneratorsCmd(&apiBase),
		newLeaveCmd(),
		newTutorialCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

// sessionClient loads the saved seat and a client for the server it was
// issued by.
func sessionClient(apiBase *string) (cl.Session, *cl.Client, error) {
	sess, err := cl.LoadSession()
	if err != nil {
		return cl.Session{}, nil, fmt.Errorf("join a match first: %w", err)
	}
	base := *apiBase
	if sess.APIBaseURL != "" {
		base = sess.APIBaseURL
	}
	return sess, newClient(&base), nil
}

// matchIDFromArgs falls back to the match of the saved session.
func matchIDFromArgs(args []string) (string, error) {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return strings.TrimSpace(args[0]), nil
	}
	sess, err := cl.LoadSession()
	if err != nil {
		return "", fmt.Errorf("match id required: %w", err)
	}
	return sess.MatchID, nil
}

func newMatchCmd(apiBase *string) *cobra.Command {
	match := &cobra.Command{
		Use:     "match",
		Short:   "Create, join and inspect matches",
		Aliases: []string{"matches"},
	}
	match.AddCommand(
		newMatchCreateCmd(apiBase),
		newMatchListCmd(apiBase),
		newMatchShowCmd(apiBase),
		newMatchJoinCmd(apiBase),
		newMatchStartCmd(apiBase),
		newMatchStandingsCmd(apiBase),
		newMatchRemoveCmd(apiBase),
		newMatchWatchCmd(apiBase),
	)
	return match
}

func newMatchCreateCmd(apiBase *string) *cobra.Command {
	var duration time.Duration
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new match",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			view, err := newClient(apiBase).CreateMatch(ctx, duration)
			if err != nil {
				return err
			}
			printSuccess("Match created: " + view.ID.String())
			renderMatch(view)
			return nil
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 0, "match length, server default when zero")
	return cmd
}

func newMatchListCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List matches on the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			views, err := newClient(apiBase).ListMatches(ctx)
			if err != nil {
				return err
			}
			renderMatches(views)
			return nil
		},
	}
}

func newMatchShowCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show [match-id]",
		Short: "Show one match and its recent events",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := matchIDFromArgs(args)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			view, err := newClient(apiBase).MatchState(ctx, id)
			if err != nil {
				return err
			}
			renderMatch(view)
			renderEvents(view.Events)
			return nil
		},
	}
}

func newMatchJoinCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "join <match-id> [name]",
		Short: "Join a match and save the player token",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) > 1 {
				name = args[1]
			} else {
				var err error
				if name, err = promptPlayerName("Player name"); err != nil {
					return err
				}
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			joined, err := newClient(apiBase).Join(ctx, args[0], name)
			if err != nil {
				return err
			}
			if err := cl.SaveSession(cl.Session{
				APIBaseURL: *apiBase,
				MatchID:    joined.MatchID.String(),
				Player:     joined.Player.Name,
				Token:      joined.Token,
			}); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Joined as %s. Session saved.", joined.Player.Name))
			renderAccount(joined.Player)
			return nil
		},
	}
}

func newMatchStartCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start [match-id]",
		Short: "Start the match clock",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := matchIDFromArgs(args)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			view, err := newClient(apiBase).StartMatch(ctx, id)
			if err != nil {
				return err
			}
			printSuccess("Match started.")
			renderMatch(view)
			return nil
		},
	}
}

func newMatchStandingsCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "standings [match-id]",
		Short: "Rank players by net worth",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := matchIDFromArgs(args)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			rows, err := newClient(apiBase).Standings(ctx, id)
			if err != nil {
				return err
			}
			renderStandings(rows)
			return nil
		},
	}
}

func newMatchRemoveCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <match-id>",
		Short: "Finish and remove a match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := newClient(apiBase).RemoveMatch(ctx, args[0]); err != nil {
				return err
			}
			printSuccess("Match removed.")
			return nil
		},
	}
}

func newMatchWatchCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [match-id]",
		Short: "Stream live match events until the match finishes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := matchIDFromArgs(args)
			if err != nil {
				return err
			}
			return newClient(apiBase).Watch(cmd.Context(), id, func(msg cl.LiveMessage) bool {
				if msg.Type == "snapshot" {
					accent.Printf("watching %s (tick %d, %s)\n", msg.Update.MatchID, msg.Update.Tick, msg.Update.Status)
				}
				renderEvents(msg.Update.Events)
				if msg.Update.Status == game.MatchFinished {
					renderRanking(msg.Update.Views)
					return false
				}
				return true
			})
		},
	}
}

func newStateCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show your account, generators and positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, client, err := sessionClient(apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			view, err := client.PlayerState(ctx, sess)
			if err != nil {
				return err
			}
			renderAccount(view)
			return nil
		},
	}
}

func newClickCmd(apiBase *string) *cobra.Command {
	var times int
	cmd := &cobra.Command{
		Use:   "click",
		Short: "Click for currency",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, client, err := sessionClient(apiBase)
			if err != nil {
				return err
			}
			if times < 1 {
				times = 1
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			var last game.ClickResult
			for i := 0; i < times; i++ {
				if last, err = client.Click(ctx, sess); err != nil {
					return err
				}
			}
			printSuccess(fmt.Sprintf("Clicked %dx. Balance %s", times, formatAmount(last.Balance)))
			return nil
		},
	}
	cmd.Flags().IntVarP(&times, "times", "n", 1, "number of clicks")
	return cmd
}

func newUpgradeClickCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade-click",
		Short: "Raise click power by one",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, client, err := sessionClient(apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := client.UpgradeClick(ctx, sess)
			if err != nil {
				return rejectionOr(err)
			}
			printSuccess(fmt.Sprintf("Click power now %s for %s. Balance %s",
				out.ClickPower.String(), formatAmount(out.Cost), formatAmount(out.Balance)))
			return nil
		},
	}
}

func newBuyCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "buy <kind>",
		Short: "Buy one generator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, client, err := sessionClient(apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := client.BuyGenerator(ctx, sess, args[0])
			if err != nil {
				return rejectionOr(err)
			}
			renderBuy(out)
			return nil
		},
	}
}

func newOpenCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "open <target> <long|short> <stake> <leverage>",
		Short: "Open a leveraged position on another player's balance",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := game.ParseDirection(args[1])
			if err != nil {
				return err
			}
			stake, err := decimal.NewFromString(strings.TrimSpace(args[2]))
			if err != nil {
				return fmt.Errorf("invalid stake %q", args[2])
			}
			leverage, err := strconv.ParseInt(strings.TrimSpace(strings.TrimSuffix(args[3], "x")), 10, 32)
			if err != nil {
				return fmt.Errorf("invalid leverage %q", args[3])
			}
			sess, client, err := sessionClient(apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := client.OpenPosition(ctx, sess, args[0], dir, stake, int32(leverage))
			if err != nil {
				return rejectionOr(err)
			}
			renderOpen(out)
			return nil
		},
	}
}

func newCloseCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "close <position-id>",
		Short: "Close one of your positions at the current price",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("invalid position id %q", args[0])
			}
			sess, client, err := sessionClient(apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := client.ClosePosition(ctx, sess, id)
			if err != nil {
				return err
			}
			renderClose(out)
			return nil
		},
	}
}

func newLeaderboardCmd(apiBase *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:     "leaderboard",
		Short:   "All-time results across finished matches",
		Aliases: []string{"lb"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Leaderboard(ctx, limit)
			if err != nil {
				return err
			}
			renderLeaderboard(out)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "rows to show")
	return cmd
}

func newGeneratorsCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "generators",
		Short: "List purchasable generators",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Generators(ctx)
			if err != nil {
				return err
			}
			renderGenerators(out)
			return nil
		},
	}
}

func newLeaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "leave",
		Short:   "Forget the saved player token",
		Aliases: []string{"logout"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearSession(); err != nil {
				return err
			}
			printSuccess("Session cleared.")
			return nil
		},
	}
}

// rejectionOr prints a trade or purchase rejection as a warning instead of
// failing the command.
func rejectionOr(err error) error {
	if reason := cl.ReasonOf(err); reason != "" {
		printWarn(fmt.Sprintf("Rejected: %s (%v)", reason, err))
		return nil
	}
	return err
}
