package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/app"
	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/auth"
	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/backup"
	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/database"
	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/database/repositories"
	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/election"
	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/notify"
)

var jsonFlag = &cli.BoolFlag{Name: "json", Usage: "output raw JSON"}

// fail turns an election error into its user message for the terminal
func fail(err error) error {
	if err == nil {
		return nil
	}
	coded := election.AsError(err)
	return cli.Exit(fmt.Sprintf("%s (%s)", coded.Message, coded.Code), 1)
}

func actorFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "actor-id", Value: "admin", Usage: "id recorded on the audit entry"},
		&cli.StringFlag{Name: "actor-name", Value: "System Admin", Usage: "name recorded on the audit entry"},
	}
}

func actorOf(c *cli.Command) election.Actor {
	return election.Actor{ID: c.String("actor-id"), Name: c.String("actor-name")}
}

func initCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Create the schema and seed the default roster",
		Action: func(ctx context.Context, c *cli.Command) error {
			return withServices(ctx, c, func(s *app.Services) error {
				h := s.Health(ctx)
				fmt.Printf("schema version %d, %d voters, %d candidates, %d admins\n",
					h.SchemaVersion, h.Counts[database.VotersTable], h.Counts[database.CandidatesTable], h.Counts[database.AdminsTable])
				return nil
			})
		},
	}
}

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check the store and list record counts",
		Flags: []cli.Flag{jsonFlag},
		Action: func(ctx context.Context, c *cli.Command) error {
			return withServices(ctx, c, func(s *app.Services) error {
				h := s.Health(ctx)
				if c.Bool("json") {
					return printJSON(h)
				}
				status := "healthy"
				if !h.Healthy {
					status = "unhealthy: " + h.Error
				}
				fmt.Printf("%s (schema version %d)\n", status, h.SchemaVersion)
				for _, name := range h.Collections {
					fmt.Printf("  %-12s %d\n", name, h.Counts[name])
				}
				return nil
			})
		},
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show turnout and results",
		Flags: []cli.Flag{jsonFlag},
		Action: func(ctx context.Context, c *cli.Command) error {
			return withServices(ctx, c, func(s *app.Services) error {
				st, err := s.Stats.ElectionStats(ctx)
				if err != nil {
					return fail(err)
				}
				if c.Bool("json") {
					return printJSON(st)
				}

				fmt.Printf("Turnout: %d of %d voters (%.1f%%)\n\n", st.VotedVoters, st.TotalVoters, st.VotePercentage)
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "NO\tCANDIDATE\tVOTES\tSHARE")
				for _, r := range st.Candidates {
					fmt.Fprintf(w, "%d\t%s\t%d\t%.1f%%\n", r.Number, r.Name, r.Votes, r.Percentage)
				}
				fmt.Fprintln(w)
				fmt.Fprintln(w, "CLASS\tTOTAL\tVOTED\tSHARE")
				for _, class := range st.Classes {
					cc := st.VotesByClass[class]
					fmt.Fprintf(w, "%s\t%d\t%d\t%.1f%%\n", class, cc.Total, cc.Voted, cc.Percentage())
				}
				if st.FirstVote != nil {
					fmt.Fprintf(w, "\nFirst vote\t%s\nLast vote\t%s\n", st.FirstVote.Local().Format(time.RFC3339), st.LastVote.Local().Format(time.RFC3339))
				}
				return w.Flush()
			})
		},
	}
}

func outputFile(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	return os.Create(path)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export the data set as JSON or the results report as CSV",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Value: "json", Usage: "json or csv"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "output file (default stdout)"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			format := c.String("format")
			if format != "json" && format != "csv" {
				return cli.Exit("unsupported format: "+format, 2)
			}
			return withServices(ctx, c, func(s *app.Services) error {
				out, err := outputFile(c.String("output"))
				if err != nil {
					return err
				}
				defer out.Close()

				if format == "csv" {
					return fail(s.Backup.WriteCSV(ctx, out))
				}
				snap, err := s.Backup.Export(ctx)
				if err != nil {
					return fail(err)
				}
				return backup.WriteSnapshot(out, snap, snap.Metadata.ExportDate)
			})
		},
	}
}

func backupCommand() *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "Write a backup file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "backup file (default election_backup_<date>.json)"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return withServices(ctx, c, func(s *app.Services) error {
				path := c.String("output")
				if path == "" {
					path = fmt.Sprintf("election_backup_%s.json", time.Now().Format("2006-01-02"))
				}
				out, err := outputFile(path)
				if err != nil {
					return err
				}
				defer out.Close()

				snap, err := s.Backup.Backup(ctx, out)
				if err != nil {
					return fail(err)
				}
				fmt.Fprintf(os.Stderr, "backup written to %s (%d voters, %d votes)\n", path, len(snap.Voters), len(snap.Votes))
				return nil
			})
		},
	}
}

func restoreCommand() *cli.Command {
	return &cli.Command{
		Name:      "restore",
		Usage:     "Replace the whole store with a backup file",
		ArgsUsage: "<backup.json>",
		Action: func(ctx context.Context, c *cli.Command) error {
			path := c.Args().First()
			if path == "" {
				return cli.Exit("restore needs a backup file", 2)
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			snap, err := backup.ReadSnapshot(f)
			if err != nil {
				return fail(err)
			}
			return withServices(ctx, c, func(s *app.Services) error {
				if err := s.Backup.Restore(ctx, snap); err != nil {
					return fail(err)
				}
				fmt.Printf("restored %d voters, %d candidates, %d votes\n", len(snap.Voters), len(snap.Candidates), len(snap.Votes))
				e, err := notify.NewEvent(notify.EventDatabaseUpdate, notify.DatabaseUpdate{Reason: "restore"})
				if err != nil {
					return err
				}
				return s.Bridge.Notify(ctx, e)
			})
		},
	}
}

func repairCommand() *cli.Command {
	return &cli.Command{
		Name:  "repair",
		Usage: "Rebuild the store and re-seed the defaults",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "snapshot", Usage: "write the pre-repair snapshot to this file"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return withServices(ctx, c, func(s *app.Services) error {
				snap, err := s.Backup.Repair(ctx)
				if err != nil {
					return fail(err)
				}
				if path := c.String("snapshot"); path != "" && snap != nil {
					f, err := os.Create(path)
					if err != nil {
						return err
					}
					defer f.Close()
					if err := backup.WriteSnapshot(f, snap, time.Now().UTC()); err != nil {
						return err
					}
				}
				fmt.Println("database repaired")
				return nil
			})
		},
	}
}

func idArg(c *cli.Command, i int, name string) (int64, error) {
	raw := c.Args().Get(i)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, cli.Exit(fmt.Sprintf("invalid %s %q", name, raw), 2)
	}
	return id, nil
}

func castCommand() *cli.Command {
	return &cli.Command{
		Name:      "cast",
		Usage:     "Cast a vote",
		ArgsUsage: "<voter-id> <candidate-id>",
		Flags:     []cli.Flag{jsonFlag},
		Action: func(ctx context.Context, c *cli.Command) error {
			voterID, err := idArg(c, 0, "voter id")
			if err != nil {
				return err
			}
			candidateID, err := idArg(c, 1, "candidate id")
			if err != nil {
				return err
			}
			return withServices(ctx, c, func(s *app.Services) error {
				res, err := s.Coordinator.CastVote(ctx, voterID, candidateID)
				if err != nil {
					return fail(err)
				}
				if c.Bool("json") {
					return printJSON(res)
				}
				fmt.Println(res.Message)
				if res.Status == election.StatusSuccess {
					fmt.Printf("candidate %d now has %d votes\n", res.Candidate.Number, res.Votes)
				}
				return nil
			})
		},
	}
}

func resetCommand() *cli.Command {
	return &cli.Command{
		Name:      "reset",
		Usage:     "Reset the vote of one voter",
		ArgsUsage: "<voter-id>",
		Flags:     actorFlags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			voterID, err := idArg(c, 0, "voter id")
			if err != nil {
				return err
			}
			return withServices(ctx, c, func(s *app.Services) error {
				res, err := s.Coordinator.As(actorOf(c)).ResetSingleVote(ctx, voterID)
				if err != nil {
					return fail(err)
				}
				fmt.Println(res.Message)
				return nil
			})
		},
	}
}

func resetAllCommand() *cli.Command {
	return &cli.Command{
		Name:  "reset-all",
		Usage: "Reset every vote and tally",
		Flags: append(actorFlags(), &cli.BoolFlag{Name: "yes", Usage: "do not ask for confirmation"}),
		Action: func(ctx context.Context, c *cli.Command) error {
			if !c.Bool("yes") {
				return cli.Exit("reset-all deletes every vote; run again with --yes", 2)
			}
			return withServices(ctx, c, func(s *app.Services) error {
				res, err := s.Coordinator.As(actorOf(c)).ResetAllVotes(ctx)
				if err != nil {
					return fail(err)
				}
				fmt.Printf("%s (%d voters reset)\n", res.Message, res.VotersReset)
				return nil
			})
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show the voting status of one voter",
		ArgsUsage: "<voter-id>",
		Flags:     []cli.Flag{jsonFlag},
		Action: func(ctx context.Context, c *cli.Command) error {
			voterID, err := idArg(c, 0, "voter id")
			if err != nil {
				return err
			}
			return withServices(ctx, c, func(s *app.Services) error {
				st, err := s.Coordinator.VotingStatus(ctx, voterID)
				if err != nil {
					return fail(err)
				}
				if c.Bool("json") {
					return printJSON(st)
				}
				if !st.HasVoted {
					fmt.Printf("%s (%s) has not voted\n", st.Voter.Name, st.Voter.Class)
					return nil
				}
				fmt.Printf("%s (%s) voted at %s", st.Voter.Name, st.Voter.Class, st.Voter.VoteTime.Local().Format(time.RFC3339))
				if st.Candidate != nil {
					fmt.Printf(" for candidate %d", st.Candidate.Number)
				}
				fmt.Println()
				return nil
			})
		},
	}
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:      "login",
		Usage:     "Check whether a voter may open a ballot",
		ArgsUsage: "<username>",
		Action: func(ctx context.Context, c *cli.Command) error {
			username := c.Args().First()
			return withServices(ctx, c, func(s *app.Services) error {
				res, err := s.Auth.ValidateLogin(ctx, username)
				if err != nil {
					return fail(err)
				}
				switch res.Status {
				case auth.LoginSuccess:
					fmt.Printf("welcome %s (%s)\n", res.Voter.Name, res.Voter.Class)
					return nil
				default:
					return cli.Exit(res.Message, 1)
				}
			})
		},
	}
}

func adminLoginCommand() *cli.Command {
	return &cli.Command{
		Name:  "admin-login",
		Usage: "Check committee credentials",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "username", Required: true},
			&cli.StringFlag{Name: "password", Required: true},
			jsonFlag,
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return withServices(ctx, c, func(s *app.Services) error {
				res, err := s.Auth.ValidateAdminLogin(ctx, c.String("username"), c.String("password"))
				if err != nil {
					return fail(err)
				}
				if res.Status != auth.AdminSuccess {
					return cli.Exit(res.Message, 1)
				}
				if c.Bool("json") {
					return printJSON(res.Admin)
				}
				fmt.Printf("logged in as %s (%s), permissions %v\n", res.Admin.Name, res.Admin.Role, res.Admin.Permissions)
				return nil
			})
		},
	}
}

func auditCommand() *cli.Command {
	return &cli.Command{
		Name:  "audit",
		Usage: "List audit log entries, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "action", Usage: "filter by action, e.g. VOTE_CAST"},
			&cli.StringFlag{Name: "user", Usage: "filter by user id"},
			&cli.IntFlag{Name: "limit", Value: 50},
			jsonFlag,
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return withServices(ctx, c, func(s *app.Services) error {
				entries, err := s.AuditLogs.Query(ctx, repositories.AuditFilter{
					Action: database.AuditAction(c.String("action")),
					UserID: c.String("user"),
					Limit:  int(c.Int("limit")),
				})
				if err != nil {
					return fail(err)
				}
				if c.Bool("json") {
					return printJSON(entries)
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tTIME\tACTION\tUSER\tDETAILS")
				for _, e := range entries {
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", e.ID, e.Timestamp.Local().Format(time.DateTime), e.Action, e.UserName, e.Details)
				}
				return w.Flush()
			})
		},
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Print change notifications from other sessions until interrupted",
		Action: func(ctx context.Context, c *cli.Command) error {
			return withServices(ctx, c, func(s *app.Services) error {
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()

				unsubscribe := s.Bridge.OnUpdate(func(e notify.Event) {
					if e.Origin == s.Bridge.Origin() {
						return
					}
					_ = printJSON(e)
				})
				defer unsubscribe()

				fmt.Fprintf(os.Stderr, "watching %s notifications on %s\n", s.Config.Notify.Driver, s.Config.Notify.Channel)
				<-ctx.Done()
				if errors.Is(ctx.Err(), context.Canceled) {
					return nil
				}
				return ctx.Err()
			})
		},
	}
}
