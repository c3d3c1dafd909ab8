package main

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pitabwire/console/internal/auth"
	"github.com/pitabwire/console/internal/config"
	"github.com/pitabwire/console/internal/console"
	"github.com/pitabwire/console/internal/notify"
	"github.com/pitabwire/console/internal/observability"
	"github.com/pitabwire/console/internal/resources"
	"github.com/pitabwire/console/model"
)

// options inject collaborators, for tests.
type options struct {
	store     auth.TokenStore
	notifier  notify.Notifier
	confirmer notify.Confirmer
	in        *os.File
}

// reportedError marks a failure the notifier already showed to the user.
type reportedError struct{ err error }

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

func reported(err error) error {
	if err == nil {
		return nil
	}
	return &reportedError{err: err}
}

// cli holds the global flags and the lazily built app of one invocation.
type cli struct {
	opts       options
	configPath string
	output     string
	assumeYes  bool
	metrics    bool

	cfg *config.Config
	app *console.App
}

func newRootCommand(opts options) (*cobra.Command, *cli) {
	c := &cli{opts: opts}
	root := &cobra.Command{
		Use:           "console",
		Short:         "Manage admin resources from the terminal",
		Version:       observability.Version + " (" + observability.Commit + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.configPath, "config", "", "path to the configuration file")
	pf.StringVarP(&c.output, "output", "o", "", "output format: table or json")
	pf.BoolVarP(&c.assumeYes, "yes", "y", false, "answer yes to every confirmation")
	pf.BoolVar(&c.metrics, "metrics", false, "print collected metrics to stderr on exit")

	root.AddCommand(
		loginCommand(c),
		logoutCommand(c),
		whoamiCommand(c),
		statusCommand(c),
		devBackendCommand(c),
		pagesCommand(c),
		usersCommand(c),
		companyCommand(c),
		locationsCommand(c),
		foldersCommand(c),
		filesCommand(c),
		jobsCommand(c),
		genericCommand(c),
	)
	return root, c
}

// config loads the configuration once, applying the --output override.
func (c *cli) config() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	if c.output != "" {
		cfg.UI.Output = c.output
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	c.cfg = cfg
	return cfg, nil
}

// application wires the app on first use.
func (c *cli) application(cmd *cobra.Command) (*console.App, error) {
	if c.app != nil {
		return c.app, nil
	}
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	in := c.opts.in
	if in == nil {
		in = os.Stdin
	}
	app, err := console.NewApp(cmd.Context(), cfg, console.AppOptions{
		In:        in,
		Out:       cmd.OutOrStdout(),
		Err:       cmd.ErrOrStderr(),
		AssumeYes: c.assumeYes,
		Store:     c.opts.store,
		Notifier:  c.opts.notifier,
		Confirmer: c.opts.confirmer,
	})
	if err != nil {
		return nil, err
	}
	c.app = app
	return app, nil
}

// close dumps metrics when asked and flushes the app.
func (c *cli) close(ctx context.Context, errOut io.Writer) error {
	if c.app == nil {
		return nil
	}
	if c.metrics {
		if err := c.app.DumpMetrics(errOut); err != nil {
			return err
		}
	}
	return c.app.Close(ctx)
}

// fail notifies a load failure and marks it reported.
func (c *cli) fail(cmd *cobra.Command, err error, fallback string) error {
	if c.app != nil {
		c.app.Notifier.Notify(cmd.Context(), notify.Error, model.MessageFor(err, fallback))
		return reported(err)
	}
	return err
}

func pagesCommand(c *cli) *cobra.Command {
	r := newResource(c, fixedName(resources.Pages), resources.BindPages)
	cmd := r.command("pages", "Manage content pages")
	cmd.AddCommand(pageBySlugCommand(c), checkSlugCommand(c))
	return cmd
}

func usersCommand(c *cli) *cobra.Command {
	return newResource(c, fixedName(resources.Users), resources.BindUsers).command("users", "Manage users")
}

func locationsCommand(c *cli) *cobra.Command {
	return newResource(c, fixedName(resources.Locations), resources.BindLocations).command("locations", "Manage company locations")
}

func foldersCommand(c *cli) *cobra.Command {
	cmd := newResource(c, fixedName(resources.Folders), resources.BindFolders).command("folders", "Manage file folders")
	cmd.AddCommand(folderTreeCommand(c))
	return cmd
}

func filesCommand(c *cli) *cobra.Command {
	cmd := newResource(c, fixedName(resources.Files), resources.BindFiles).command("files", "Manage uploaded files")
	cmd.AddCommand(uploadCommand(c), downloadCommand(c))
	return cmd
}

func jobsCommand(c *cli) *cobra.Command {
	return newResource(c, fixedName(resources.Jobs), resources.BindJobs).command("jobs", "Manage deployment and template-sync jobs")
}

// genericCommand manages any resource loaded from extra definition files.
func genericCommand(c *cli) *cobra.Command {
	var name string
	r := newResource(c, func() string { return name }, resources.BindGeneric)
	cmd := r.command("resource", "Manage a resource declared in a definition file")
	cmd.PersistentFlags().StringVar(&name, "name", "", "resource name")
	_ = cmd.MarkPersistentFlagRequired("name")
	return cmd
}

func fixedName(name string) func() string { return func() string { return name } }
