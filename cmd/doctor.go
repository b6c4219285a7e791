package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harshul/octo-studio/internal/doctor"
	"github.com/harshul/octo-studio/internal/settings"
	"github.com/harshul/octo-studio/internal/ui"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor <app-id>",
	Short: "Check that an app can run on this machine",
	Long: `The doctor command checks, for each part of an app:
- The runtime its server needs (Node.js, Python, Go or Rust)
- Whether JavaScript dependencies are installed
- The start command that 'octo run' would use
- Environment variables its code reads that no .env file defines`,
	Args: cobra.ExactArgs(1),
	RunE: runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	app, err := loadApp(ctx, st, args[0])
	if err != nil {
		return err
	}

	spinner := ui.NewSpinner("Checking app...")
	spinner.Start()
	d := doctor.Diagnose(ctx, appDir(app), doctor.Options{Docker: cfg.RuntimeMode == settings.RuntimeDocker})
	spinner.Stop()

	ui.Highlight("App", app.Name)
	ui.Highlight("Layout", string(d.Layout))
	for _, p := range d.Parts {
		ui.Divider()
		ui.Highlight("Part", p.Name)
		if p.Framework != "" {
			ui.Highlight("Framework", string(p.Framework))
		}
		if p.StartCommand != "" {
			ui.Highlight("Start", p.StartCommand)
		}
		if p.Runtime.Installed {
			ui.Highlight(p.Runtime.Name, p.Runtime.Version)
		}
		if len(p.Env.EnvFiles) > 0 {
			ui.Highlight("Env files", fmt.Sprint(p.Env.EnvFiles))
		}
		for _, v := range p.Env.Required {
			if p.Env.Defined[v.Name] {
				ui.Highlight(v.Name, "set")
			}
		}
	}
	if d.Docker != nil && d.Docker.Installed {
		ui.Highlight("Docker", d.Docker.Version)
	}

	ui.Divider()
	if d.Healthy {
		ui.Success("Ready to run")
		return nil
	}
	for _, issue := range d.Issues {
		ui.Warn(issue)
	}
	return fmt.Errorf("%d issue(s) found", len(d.Issues))
}
