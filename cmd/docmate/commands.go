package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docmate-health/docmate/internal/export"
	"github.com/docmate-health/docmate/internal/session"
	"github.com/docmate-health/docmate/internal/vitals"
	"github.com/docmate-health/docmate/pkg/client"
	"github.com/docmate-health/docmate/pkg/model"
	"github.com/spf13/cobra"
)

const dateLayout = "2006-01-02"

func newHealthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show API health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := a.api.Health(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), status)
		},
	}
}

func newCheckCmd(a *app) *cobra.Command {
	var in model.VitalsInput

	cmd := &cobra.Command{
		Use:   "check <symptoms>",
		Short: "Triage symptoms and save the result to the history",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.session(cmd.Context(), true)
			if err != nil {
				return err
			}
			analysis, report, err := s.CheckSymptoms(cmd.Context(), strings.Join(args, " "), in)
			if analysis == nil {
				return err
			}
			if perr := printJSON(cmd.OutOrStdout(), map[string]any{"report_id": report.ID, "analysis": analysis}); perr != nil {
				return perr
			}
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&in.Temperature, "temp", "", "body temperature (F)")
	flags.StringVar(&in.HeartRate, "hr", "", "heart rate (bpm)")
	flags.StringVar(&in.BPSystolic, "bp-sys", "", "systolic blood pressure")
	flags.StringVar(&in.BPDiastolic, "bp-dia", "", "diastolic blood pressure")
	flags.StringVar(&in.SpO2, "spo2", "", "oxygen saturation (%)")
	return cmd
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var title, date string

	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Analyze a lab report image or PDF and save it to the history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var day *time.Time
			if date != "" {
				t, err := time.Parse(dateLayout, date)
				if err != nil {
					return fmt.Errorf("invalid --date, want YYYY-MM-DD: %w", err)
				}
				day = &t
			}

			file, err := readFile(args[0])
			if err != nil {
				return err
			}

			s, err := a.session(cmd.Context(), false)
			if err != nil {
				return err
			}
			analysis, report, err := s.AnalyzeReport(cmd.Context(), file, title, day)
			if analysis == nil {
				return err
			}
			if perr := printJSON(cmd.OutOrStdout(), map[string]any{"report_id": report.ID, "analysis": analysis}); perr != nil {
				return perr
			}
			return err
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "report title (default \"Lab Report\")")
	cmd.Flags().StringVar(&date, "date", "", "report date, YYYY-MM-DD (default today)")
	return cmd
}

func newRemediesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remedies <report-id>",
		Short: "Show home, ayurvedic and natural remedies for a saved report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.session(cmd.Context(), false)
			if err != nil {
				return err
			}
			res, err := s.FetchRemedies(cmd.Context(), args[0])
			if errors.Is(err, session.ErrReportNotFound) {
				return fmt.Errorf("no report with id %s", args[0])
			}
			if res.Fallback {
				fmt.Fprintln(cmd.ErrOrStderr(), "Remedies are unavailable right now; showing general advice.")
			}
			if perr := printJSON(cmd.OutOrStdout(), res.Remedies); perr != nil {
				return perr
			}
			return err
		},
	}
}

func newChatCmd(a *app) *cobra.Command {
	var lang, audio string

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Ask the assistant a question, by text or recorded audio",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				resp *model.ChatResponse
				err  error
			)
			switch {
			case audio != "":
				file, rerr := readFile(audio)
				if rerr != nil {
					return rerr
				}
				resp, err = a.api.ChatAudio(cmd.Context(), file, lang)
			case len(args) > 0:
				resp, err = a.api.Chat(cmd.Context(), model.ChatRequest{
					Message:           strings.Join(args, " "),
					History:           []model.ChatTurn{},
					PreferredLanguage: lang,
				})
			default:
				return fmt.Errorf("a message or --audio is required")
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", resp.LanguageCode, resp.Response)
			return nil
		},
	}

	cmd.Flags().StringVar(&lang, "lang", "", "preferred reply language")
	cmd.Flags().StringVar(&audio, "audio", "", "audio file to send instead of text")
	return cmd
}

func newReportsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports [query]",
		Short: "List the report history, optionally filtered",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.session(cmd.Context(), false)
			if err != nil {
				return err
			}
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			reports, stats := s.Reports(cmd.Context(), query)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Total: %d  Avg severity: %.1f  Latest: %s\n", stats.Total, stats.AverageSeverity, stats.LatestDate)
			for _, r := range reports {
				fmt.Fprintf(out, "%s  %s  %-14s %-12s %s\n", r.ID, r.Date.Time.Format(dateLayout), r.Type, r.RiskLevel, r.Title)
			}
			return nil
		},
	}

	cmd.AddCommand(newReportShowCmd(a), newReportExportCmd(a), newReportPDFCmd(a))
	return cmd
}

func newReportShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <report-id>",
		Short: "Print one saved report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.session(cmd.Context(), false)
			if err != nil {
				return err
			}
			report, err := s.Report(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
}

func newReportExportCmd(a *app) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the report history to an XLSX workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.session(cmd.Context(), false)
			if err != nil {
				return err
			}
			reports, _ := s.Reports(cmd.Context(), "")
			data, err := export.ReportsXLSX(reports)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o600); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d reports to %s\n", len(reports), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "docmate-reports.xlsx", "output file")
	return cmd
}

func newReportPDFCmd(a *app) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "pdf <report-id>",
		Short: "Render a saved report as a PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.session(cmd.Context(), true)
			if err != nil {
				return err
			}
			report, err := s.Report(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			profile := s.Profile().Profile
			data, archived, err := a.api.RenderReportPDF(cmd.Context(), model.ReportPDFRequest{Report: report, Profile: &profile})
			if err != nil {
				return err
			}
			if out == "" {
				out = "docmate-report-" + report.ID + ".pdf"
			}
			if err := os.WriteFile(out, data, 0o600); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", out)
			if archived != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Archived as %s\n", archived)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default docmate-report-<id>.pdf)")
	return cmd
}

func newDashboardCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show the health score, sleep card and severity trend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.session(cmd.Context(), false)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), s.Dashboard(cmd.Context()))
		},
	}
}

func newInsightsCmd(a *app) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "insights",
		Short: "Show AI health insights and the action plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.session(cmd.Context(), true)
			if err != nil {
				return err
			}
			view, err := s.Insights(cmd.Context(), refresh)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), view)
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "ignore cached insights")

	cmd.AddCommand(&cobra.Command{
		Use:   "toggle <action-id>",
		Short: "Mark an action plan item done or not done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.session(cmd.Context(), false)
			if err != nil {
				return err
			}
			view, err := s.ToggleAction(cmd.Context(), args[0])
			if errors.Is(err, session.ErrNoInsights) {
				return fmt.Errorf("no cached insights, run `docmate insights` first")
			}
			if err != nil {
				return err
			}
			for _, item := range view.ActionPlan {
				mark := " "
				if item.Completed {
					mark = "x"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s  %s\n", mark, item.ID, item.Task)
			}
			return nil
		},
	})
	return cmd
}

func newVitalsCmd(a *app) *cobra.Command {
	var (
		ticks    int
		interval time.Duration
		seed     uint64
	)

	cmd := &cobra.Command{
		Use:   "vitals",
		Short: "Stream simulated vitals as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var opts []vitals.Option
			if seed != 0 {
				opts = append(opts, vitals.WithSeed(seed))
			}
			sim := vitals.NewSimulator(opts...)

			n := 0
			errDone := errors.New("done")
			err := sim.Run(cmd.Context(), interval, func(t vitals.Tick) error {
				if err := printJSON(cmd.OutOrStdout(), t.Vitals); err != nil {
					return err
				}
				n++
				if ticks > 0 && n >= ticks {
					return errDone
				}
				return nil
			})
			if errors.Is(err, errDone) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().IntVar(&ticks, "ticks", 0, "stop after this many readings (0 runs until interrupted)")
	cmd.Flags().DurationVar(&interval, "interval", vitals.DefaultInterval, "time between readings")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed for a reproducible stream")
	return cmd
}

func newProfileCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show the stored health profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := a.api.GetProfile(cmd.Context(), a.cfg.UserID)
			if errors.Is(err, client.ErrNotFound) {
				fmt.Fprintln(cmd.OutOrStdout(), "No profile saved yet.")
				return nil
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), env)
		},
	}

	cmd.AddCommand(newProfileSetCmd(a), &cobra.Command{
		Use:   "delete",
		Short: "Delete the stored profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.api.DeleteProfile(cmd.Context(), a.cfg.UserID); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Profile deleted.")
			return nil
		},
	})
	return cmd
}

func newProfileSetCmd(a *app) *cobra.Command {
	var (
		fields      = map[string]*string{}
		lists       = map[string]*[]string{}
		locationOK  bool
		autoTrigger bool
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update profile fields; unset flags keep their stored value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.session(cmd.Context(), true)
			if err != nil {
				return err
			}

			env := s.Profile()
			p := &env.Profile
			targets := map[string]*string{
				"name":          &p.FullName,
				"age":           &p.Age,
				"gender":        &p.Gender,
				"blood-type":    &p.BloodType,
				"weight":        &p.Weight,
				"height":        &p.Height,
				"smoking":       &p.SmokingStatus,
				"alcohol":       &p.AlcoholConsumption,
				"exercise":      &p.ExerciseLevel,
				"contact-name":  &p.EmergencyContactName,
				"contact-phone": &p.EmergencyContactPhone,
				"contact-rel":   &p.EmergencyContactRelationship,
			}
			for name, dst := range targets {
				if cmd.Flags().Changed(name) {
					*dst = *fields[name]
				}
			}
			listTargets := map[string]*[]string{
				"conditions":  &p.PastConditions,
				"allergies":   &p.Allergies,
				"medications": &p.CurrentMedications,
			}
			for name, dst := range listTargets {
				if cmd.Flags().Changed(name) {
					*dst = *lists[name]
				}
			}
			if cmd.Flags().Changed("location-sharing") {
				env.Settings.LocationSharingConsent = locationOK
			}
			if cmd.Flags().Changed("auto-trigger") {
				env.Settings.AutoTriggerConsent = autoTrigger
			}

			saved, err := s.SaveProfile(cmd.Context(), env)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), saved)
		},
	}

	flags := cmd.Flags()
	for _, name := range []string{
		"name", "age", "gender", "blood-type", "weight", "height",
		"smoking", "alcohol", "exercise",
		"contact-name", "contact-phone", "contact-rel",
	} {
		fields[name] = flags.String(name, "", "profile "+strings.ReplaceAll(name, "-", " "))
	}
	for _, name := range []string{"conditions", "allergies", "medications"} {
		lists[name] = flags.StringSlice(name, nil, "comma separated "+name)
	}
	flags.BoolVar(&locationOK, "location-sharing", false, "consent to location sharing")
	flags.BoolVar(&autoTrigger, "auto-trigger", false, "consent to automatic emergency alerts")
	return cmd
}

func readFile(path string) (client.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return client.File{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return client.File{Name: filepath.Base(path), Data: data}, nil
}
