package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"trashcal/internal/config"
	"trashcal/internal/extract"
	"trashcal/internal/ics"
	appLog "trashcal/internal/log"
	"trashcal/internal/migrate"
	"trashcal/internal/model"
	"trashcal/internal/schedule"
	"trashcal/internal/scheduler"
)

func newMigrateCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Upgrade the stored schedule to the current format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, envOptions{skipMigrate: true})
			if err != nil {
				return err
			}
			defer e.Close()

			if force {
				if err := e.settings.SetMigratedVersion(ctx, ""); err != nil {
					return err
				}
			}
			rep, err := migrate.NewMigrator(e.settings).MigrateIfNeeded(ctx, version)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if rep.Skipped {
				fmt.Fprintf(out, "already migrated for %s\n", version)
				return nil
			}
			fmt.Fprintf(out, "from_v1=%t legacy_nth=%d discarded=%d ids_assigned=%d wrote=%t backed_up=%t\n",
				rep.Result.FromV1, rep.Result.LegacyNth, rep.Result.Discarded, rep.Result.IDsAssigned,
				rep.Wrote, rep.BackedUp)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Run even if this version already migrated")
	return cmd
}

func newImportICSCmd() *cobra.Command {
	var feedID string
	var days int
	var save bool

	cmd := &cobra.Command{
		Use:   "import-ics [file]",
		Short: "Propose a schedule from an ICS file or a configured feed",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, envOptions{})
			if err != nil {
				return err
			}
			defer e.Close()

			feed, body, err := readICS(ctx, e, feedID, args)
			if err != nil {
				return err
			}
			events, err := ics.Parse(feed, body, e.loc)
			if err != nil {
				return err
			}
			from := model.DateOnly(e.now())
			occ, err := ics.Expand(events, ics.ExpandConfig{From: from, To: from.AddDate(0, 0, days), Location: e.loc})
			if err != nil {
				return err
			}
			return emitProposal(ctx, cmd.OutOrStdout(), e, ics.Propose(occ), save)
		},
	}
	cmd.Flags().StringVar(&feedID, "feed", "", "ID of a feed from the config instead of a file")
	cmd.Flags().IntVar(&days, "days", 365, "How many days ahead to read collections")
	cmd.Flags().BoolVar(&save, "save", false, "Replace the stored schedule with the proposal")
	return cmd
}

func readICS(ctx context.Context, e *env, feedID string, args []string) (ics.Feed, []byte, error) {
	if feedID != "" {
		for _, f := range e.cfg.Feeds {
			if f.ID != feedID {
				continue
			}
			feed := ics.Feed{ID: f.ID, Name: f.Name, URL: f.URL}
			res, err := ics.NewFetcher(filepath.Join(e.cfg.DataDir, "ics-cache")).Fetch(ctx, feed)
			return feed, res.Body, err
		}
		return ics.Feed{}, nil, fmt.Errorf("no feed %q in config", feedID)
	}
	if len(args) == 0 {
		return ics.Feed{}, nil, errors.New("give an ICS file or --feed")
	}
	body, err := readInput(args[0])
	return ics.Feed{ID: "file", Name: args[0]}, body, err
}

// readInput reads path, or stdin for "-".
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// emitProposal prints proposal as JSON and, with save, accepts it.
func emitProposal(ctx context.Context, w io.Writer, e *env, proposal model.Schedule, save bool) error {
	data, err := json.MarshalIndent(proposal, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(data))
	if !save {
		return nil
	}

	accepted := schedule.AcceptProposal(proposal)
	if err := accepted.Validate(); err != nil {
		return fmt.Errorf("proposal is not valid: %w", err)
	}
	if err := e.settings.SaveSchedule(ctx, accepted); err != nil {
		return err
	}
	appLog.Info("proposal saved", "entries", len(accepted.Entries))
	return nil
}

func newExportICSCmd() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "export-ics",
		Short: "Write the schedule as an iCalendar file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context(), envOptions{})
			if err != nil {
				return err
			}
			defer e.Close()

			sched, err := e.settings.Schedule(cmd.Context())
			if err != nil {
				return err
			}
			doc := ics.Export(sched, model.DateOnly(e.now()))
			if outPath == "" || outPath == "-" {
				_, err = io.WriteString(cmd.OutOrStdout(), doc)
				return err
			}
			return os.WriteFile(outPath, []byte(doc), 0o644)
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file (default stdout)")
	return cmd
}

func newExtractCmd() *cobra.Command {
	var apiKey string
	var save bool

	cmd := &cobra.Command{
		Use:   "extract <calendar.pdf>",
		Short: "Propose a schedule from a municipal calendar PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, envOptions{})
			if err != nil {
				return err
			}
			defer e.Close()

			if apiKey == "" {
				if apiKey, err = e.settings.APIKey(ctx); err != nil {
					return err
				}
			}
			client, err := extract.New(apiKey, e.cfg.Extract.Model)
			if err != nil {
				return fmt.Errorf("%w (set one with `trashcal settings apikey`)", err)
			}
			pdf, err := readInput(args[0])
			if err != nil {
				return err
			}
			proposal, err := client.FromPDF(ctx, pdf)
			if err != nil {
				return err
			}
			return emitProposal(ctx, cmd.OutOrStdout(), e, proposal.Schedule, save)
		},
	}
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key (default: the stored key)")
	cmd.Flags().BoolVar(&save, "save", false, "Replace the stored schedule with the proposal")
	return cmd
}

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change stored settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, envOptions{})
			if err != nil {
				return err
			}
			defer e.Close()

			ns, err := e.settings.NotificationSettings(ctx)
			if err != nil {
				return err
			}
			key, err := e.settings.APIKey(ctx)
			if err != nil {
				return err
			}
			marker, err := e.settings.MigratedVersion(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "store:            %s\n", e.backend.Path())
			fmt.Fprintf(out, "notifications:    %t\n", ns.Enabled)
			fmt.Fprintf(out, "weekly time:      %s (%s)\n", ns.WeeklyNotificationTime, e.cfg.Weekday())
			fmt.Fprintf(out, "day-before time:  %s\n", ns.DayBeforeNotificationTime)
			fmt.Fprintf(out, "api key:          %t\n", key != "")
			fmt.Fprintf(out, "migrated version: %s\n", marker)
			return nil
		},
	}
	cmd.AddCommand(newSettingsNotifyCmd(), newSettingsAPIKeyCmd())
	return cmd
}

func newSettingsNotifyCmd() *cobra.Command {
	var enabled bool
	var weekly, dayBefore string

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Change notification settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, envOptions{})
			if err != nil {
				return err
			}
			defer e.Close()

			ns, err := e.settings.NotificationSettings(ctx)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("enabled") {
				ns.Enabled = enabled
			}
			if weekly != "" {
				ns.WeeklyNotificationTime = weekly
			}
			if dayBefore != "" {
				ns.DayBeforeNotificationTime = dayBefore
			}
			for _, v := range []string{ns.WeeklyNotificationTime, ns.DayBeforeNotificationTime} {
				if _, _, err := scheduler.ParseClock(v); err != nil {
					return err
				}
			}
			return e.settings.SaveNotificationSettings(ctx, ns)
		},
	}
	cmd.Flags().BoolVar(&enabled, "enabled", true, "Enable or disable notifications")
	cmd.Flags().StringVar(&weekly, "weekly", "", "Weekly summary time (HH:MM)")
	cmd.Flags().StringVar(&dayBefore, "day-before", "", "Day-before reminder time (HH:MM)")
	return cmd
}

func newSettingsAPIKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apikey [key]",
		Short: "Store the extraction API key (no argument clears it)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, envOptions{})
			if err != nil {
				return err
			}
			defer e.Close()

			key := ""
			if len(args) == 1 {
				key = strings.TrimSpace(args[0])
			}
			return e.settings.SetAPIKey(ctx, key)
		},
	}
}

func newHashPasswordCmd() *cobra.Command {
	var username string
	var write bool

	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Hash an API password (argon2id) for basic_auth",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := readPassword(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			hash, err := config.HashPassword(password)
			if err != nil {
				return err
			}
			if !write {
				fmt.Fprintln(cmd.OutOrStdout(), hash)
				return nil
			}

			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			cfg.BasicAuth = &config.BasicAuthConfig{Username: username, PasswordHash: hash}
			if err := cfg.Save(flags.configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "basic auth for %q written to %s\n", username, flags.configPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "admin", "Username stored with --write")
	cmd.Flags().BoolVar(&write, "write", false, "Store the hash in the config file")
	return cmd
}

// readPassword prompts twice on a terminal, or reads one line from piped
// stdin.
func readPassword(prompt io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(prompt, "Enter password:   ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", err
	}
	fmt.Fprint(prompt, "Confirm password: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", err
	}
	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}
