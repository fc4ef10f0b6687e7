package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"trashcal/internal/model"
	"trashcal/internal/rule"
	"trashcal/internal/schedule"
)

func newTodayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "today",
		Short: "Show today's and tomorrow's collections",
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
			tt := schedule.TodayAndTomorrow(e.now(), sched.Entries)
			out := cmd.OutOrStdout()
			fmt.Fprint(out, "今日  ")
			printDay(out, tt.Today)
			fmt.Fprint(out, "明日  ")
			printDay(out, tt.Tomorrow)
			return nil
		},
	}
}

func newWeekCmd() *cobra.Command {
	var date string
	var rolling bool

	cmd := &cobra.Command{
		Use:   "week",
		Short: "Show the collections of one week",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context(), envOptions{})
			if err != nil {
				return err
			}
			defer e.Close()

			start := model.DateOnly(e.now())
			if date != "" {
				if start, err = model.ParseDate(date, e.loc); err != nil {
					return err
				}
			}
			if !rolling {
				start = schedule.WeekStart(start)
			}

			sched, err := e.settings.Schedule(cmd.Context())
			if err != nil {
				return err
			}
			for _, d := range schedule.Week(start, sched.Entries) {
				printDay(cmd.OutOrStdout(), d)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Any day of the week to show (YYYY-MM-DD, default today)")
	cmd.Flags().BoolVar(&rolling, "rolling", false, "Show seven days from --date instead of its Sunday-start week")
	return cmd
}

func newMonthCmd() *cobra.Command {
	var month string

	cmd := &cobra.Command{
		Use:   "month",
		Short: "Print a month calendar with collection icons",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context(), envOptions{})
			if err != nil {
				return err
			}
			defer e.Close()

			anchor := model.DateOnly(e.now())
			if month != "" {
				if anchor, err = time.ParseInLocation("2006-01", month, e.loc); err != nil {
					return fmt.Errorf("invalid --month %q (use YYYY-MM)", month)
				}
			}

			sched, err := e.settings.Schedule(cmd.Context())
			if err != nil {
				return err
			}
			printMonth(cmd.OutOrStdout(), anchor, schedule.Month(anchor, sched.Entries))
			return nil
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "Month to show (YYYY-MM, default this month)")
	return cmd
}

func newUpcomingCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "upcoming",
		Short: "List upcoming one-off collection dates",
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
			list := schedule.Upcoming(model.DateOnly(e.now()), sched.Entries, limit)
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "予定されている指定日はありません")
				return nil
			}
			for _, u := range list {
				fmt.Fprintf(out, "%s  %s\n", u.Date, u.Entry.Trash.Label())
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", schedule.DefaultUpcomingLimit, "Maximum number of dates")
	return cmd
}

func newDayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "day <date>",
		Short: "Show the collections of one day",
		Long: `Show the collections of one day. The date is either YYYY-MM-DD or an
English expression such as "tomorrow", "next friday" or "in 3 days".`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), envOptions{})
			if err != nil {
				return err
			}
			defer e.Close()

			d, err := parseDay(strings.Join(args, " "), e.now())
			if err != nil {
				return err
			}
			sched, err := e.settings.Schedule(cmd.Context())
			if err != nil {
				return err
			}
			printDay(cmd.OutOrStdout(), schedule.Day{Date: d, Entries: schedule.EntriesOn(d, sched.Entries)})
			return nil
		},
	}
}

var dateParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// parseDay reads an ISO date or a natural-language date relative to now,
// returning midnight in now's location.
func parseDay(text string, now time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	if d, err := model.ParseDate(text, now.Location()); err == nil {
		return d, nil
	}
	switch strings.ToLower(text) {
	case "today", "今日":
		return model.DateOnly(now), nil
	case "tomorrow", "明日":
		return model.DateOnly(now).AddDate(0, 0, 1), nil
	}

	r, err := dateParser.Parse(text, now)
	if err != nil {
		return time.Time{}, err
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("could not understand date %q", text)
	}
	return model.DateOnly(r.Time.In(now.Location())), nil
}

func printDay(w io.Writer, d schedule.Day) {
	fmt.Fprintf(w, "%s (%s)  ", model.FormatDate(d.Date), model.ShortDayNames[d.Date.Weekday()])
	if len(d.Entries) == 0 {
		fmt.Fprintln(w, "-")
		return
	}
	parts := make([]string, 0, len(d.Entries))
	for _, e := range d.Entries {
		p := e.Trash.Label()
		if b := rule.Badge(e.Rule); b != "" {
			p += " [" + b + "]"
		}
		parts = append(parts, p)
	}
	fmt.Fprintln(w, strings.Join(parts, "、"))
}

func printMonth(w io.Writer, anchor time.Time, cells []schedule.MonthCell) {
	fmt.Fprintf(w, "%d年%d月\n", anchor.Year(), anchor.Month())
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	fmt.Fprintln(tw, strings.Join(model.ShortDayNames[:], "\t"))
	for row := 0; row < len(cells)/schedule.DaysInWeek; row++ {
		cols := make([]string, schedule.DaysInWeek)
		for i := range cols {
			c := cells[row*schedule.DaysInWeek+i]
			if !c.InMonth {
				cols[i] = "."
				continue
			}
			cols[i] = fmt.Sprintf("%2d", c.Date.Day())
			for _, e := range c.Entries {
				cols[i] += model.IconFor(e.Trash.Icon)
			}
		}
		fmt.Fprintln(tw, strings.Join(cols, "\t"))
	}
	_ = tw.Flush()
}
