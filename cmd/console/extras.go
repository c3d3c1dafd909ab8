package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pitabwire/console/internal/api"
	"github.com/pitabwire/console/internal/console"
	"github.com/pitabwire/console/internal/resources"
	"github.com/pitabwire/console/model"
)

func companyCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{Use: "company", Short: "Show or edit the company profile"}

	singleton := func(cmd *cobra.Command) (*console.SingletonController[model.Company], error) {
		app, err := c.application(cmd)
		if err != nil {
			return nil, err
		}
		desc, err := app.Descriptor(resources.Company)
		if err != nil {
			return nil, err
		}
		return console.NewSingletonController(app.Client, resources.BindCompany(desc), app.Deps()), nil
	}

	get := &cobra.Command{
		Use:   "get",
		Short: "Show the company profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctrl, err := singleton(cmd)
			if err != nil {
				return err
			}
			company, err := ctrl.Get(cmd.Context())
			if err != nil {
				return c.fail(cmd, err, "Failed to load company")
			}
			return printItem(c, cmd, company)
		},
	}

	var v values
	update := &cobra.Command{
		Use:   "update",
		Short: "Update the company profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctrl, err := singleton(cmd)
			if err != nil {
				return err
			}
			f, err := ctrl.EditForm(cmd.Context())
			if err != nil {
				return c.fail(cmd, err, "Failed to load company")
			}
			if err := v.apply(f); err != nil {
				return err
			}
			company, out, err := ctrl.Save(cmd.Context(), f)
			if err != nil {
				printFieldErrors(cmd, err)
				return reported(err)
			}
			if !out.OK() {
				return reported(out.Err)
			}
			return printItem(c, cmd, company)
		},
	}
	v.register(update)
	_ = update.Flags().MarkHidden("form")

	cmd.AddCommand(get, update)
	return cmd
}

func pagesClient(c *cli, cmd *cobra.Command) (*api.Pages, error) {
	app, err := c.application(cmd)
	if err != nil {
		return nil, err
	}
	desc, err := app.Descriptor(resources.Pages)
	if err != nil {
		return nil, err
	}
	return api.NewPages(app.Client, desc), nil
}

func pageBySlugCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "slug <slug>",
		Short: "Show the page published under a slug",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pages, err := pagesClient(c, cmd)
			if err != nil {
				return err
			}
			page, err := pages.BySlug(cmd.Context(), args[0])
			if err != nil {
				return c.fail(cmd, err, "Failed to load page")
			}
			return printItem(c, cmd, page)
		},
	}
}

func checkSlugCommand(c *cli) *cobra.Command {
	var exclude string
	cmd := &cobra.Command{
		Use:   "check-slug <slug>",
		Short: "Report whether a slug is free",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pages, err := pagesClient(c, cmd)
			if err != nil {
				return err
			}
			ok, err := pages.ValidateSlug(cmd.Context(), args[0], exclude)
			if err != nil {
				return c.fail(cmd, err, "Failed to check slug")
			}
			if c.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), model.SlugValidation{IsValid: ok})
			}
			if ok {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s is available\n", args[0])
			} else {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s is already in use\n", args[0])
			}
			return err
		},
	}
	cmd.Flags().StringVar(&exclude, "exclude", "", "page id to ignore, for renames")
	return cmd
}

func folderTreeCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "tree",
		Short: "Show the folder hierarchy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := c.application(cmd)
			if err != nil {
				return err
			}
			desc, err := app.Descriptor(resources.Folders)
			if err != nil {
				return err
			}
			tree, err := console.FolderTree(cmd.Context(), app.Deps(), api.NewFolders(app.Client, desc))
			if err != nil {
				return c.fail(cmd, err, "Failed to load folders")
			}
			if c.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), tree)
			}
			writeTree(cmd.OutOrStdout(), tree, 0)
			return nil
		},
	}
}

func writeTree(w io.Writer, folders []model.Folder, depth int) {
	for _, f := range folders {
		fmt.Fprintf(w, "%s%s (%d files)\n", strings.Repeat("  ", depth), f.Name, f.FileCount)
		writeTree(w, f.SubFolders, depth+1)
	}
}

func filesClient(c *cli, cmd *cobra.Command) (*console.App, *api.Files, error) {
	app, err := c.application(cmd)
	if err != nil {
		return nil, nil, err
	}
	desc, err := app.Descriptor(resources.Files)
	if err != nil {
		return nil, nil, err
	}
	return app, api.NewFiles(app.Client, desc), nil
}

func uploadCommand(c *cli) *cobra.Command {
	var (
		folder      int64
		description string
		public      bool
	)
	cmd := &cobra.Command{
		Use:   "upload <path>",
		Short: "Upload a local file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, files, err := filesClient(c, cmd)
			if err != nil {
				return err
			}
			src, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer src.Close()

			up := api.Upload{
				FileName:    filepath.Base(args[0]),
				Content:     src,
				Description: description,
				IsPublic:    public,
			}
			if cmd.Flags().Changed("folder") {
				up.FolderID = &folder
			}
			file, out := console.Upload(cmd.Context(), app.Deps(), files, up)
			if !out.OK() {
				return reported(out.Err)
			}
			return printItem(c, cmd, file)
		},
	}
	cmd.Flags().Int64Var(&folder, "folder", 0, "destination folder id")
	cmd.Flags().StringVar(&description, "description", "", "file description")
	cmd.Flags().BoolVar(&public, "public", false, "make the file public")
	return cmd
}

func downloadCommand(c *cli) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "download <id>",
		Short: "Download a file to disk or stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, files, err := filesClient(c, cmd)
			if err != nil {
				return err
			}
			var w io.Writer = cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			n, err := console.Download(cmd.Context(), app.Deps(), files, args[0], w)
			if err != nil {
				return reported(err)
			}
			if w != cmd.OutOrStdout() {
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d bytes to %s\n", n, out)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "O", "", "destination path, - for stdout")
	return cmd
}
