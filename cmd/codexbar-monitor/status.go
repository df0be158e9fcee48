package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/j-veylop/codexbar-monitor/internal/models"
	"github.com/j-veylop/codexbar-monitor/internal/services/setup"
	"github.com/j-veylop/codexbar-monitor/internal/ui/styles"
)

var errNotReady = errors.New("setup incomplete")

func newStatusCmd(logLevel *string) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check that the shell host and codexbar are ready",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*logLevel)
			if err != nil {
				return err
			}
			d, err := openDeps(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer func() { _ = d.Close() }()

			status := setup.NewChecker(d.runner, d.usage).Check(cmd.Context())

			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				if err := enc.Encode(status); err != nil {
					return err
				}
			} else if err := printStatus(w, status, d.runner.UsesWSL(), d.settings.Settings().GuideURL); err != nil {
				return err
			}

			if !status.IsReady {
				return fmt.Errorf("%w: %s", errNotReady, nextStep(status))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the status as JSON")
	return cmd
}

func printStatus(w io.Writer, s models.SetupStatus, wsl bool, guideURL string) error {
	host := "bash"
	if wsl {
		host = "WSL"
	}

	var b strings.Builder
	fmt.Fprintln(&b, styles.SubTitleStyle.Render("Setup status"))
	fmt.Fprintf(&b, "  %-14s %s\n", host+" installed", check(s.ShellOK))
	fmt.Fprintf(&b, "  %-14s %s\n", host+" running", check(s.ShellUp))
	if s.ShellError != models.ShellErrorNone {
		fmt.Fprintf(&b, "  %-14s %s\n", "error", styles.ErrorTextStyle.Render(string(s.ShellError)))
	}
	if s.Distros != nil {
		distros := strings.Join(s.Distros, ", ")
		if distros == "" {
			distros = styles.ErrorTextStyle.Render("none")
		}
		fmt.Fprintf(&b, "  %-14s %s\n", "distributions", distros)
	}
	fmt.Fprintf(&b, "  %-14s %s\n", "codexbar", check(s.ToolOK))
	if s.ToolVersion != "" {
		fmt.Fprintf(&b, "  %-14s %s\n", "version", s.ToolVersion)
	}
	if s.ToolError != "" {
		fmt.Fprintf(&b, "  %-14s %s\n", "problem", styles.ErrorTextStyle.Render(s.ToolError))
	}

	step := nextStep(s)
	if s.IsReady {
		fmt.Fprintf(&b, "\n%s\n", styles.SuccessTextStyle.Render("Ready"))
	} else {
		fmt.Fprintf(&b, "\nNext step: %s\n", styles.WarningTextStyle.Render(step.String()))
		if guideURL != "" {
			fmt.Fprintf(&b, "See %s\n", guideURL)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func check(ok bool) string {
	if ok {
		return styles.SuccessTextStyle.Render("yes")
	}
	return styles.ErrorTextStyle.Render("no")
}

// nextStep is CurrentStep, except that an installed but outdated codexbar needs reinstalling.
func nextStep(s models.SetupStatus) models.SetupStep {
	step := s.CurrentStep()
	if step == models.SetupReady && !s.IsReady {
		return models.SetupInstallTool
	}
	return step
}
