package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pitabwire/console/internal/api"
	"github.com/pitabwire/console/internal/console"
	"github.com/pitabwire/console/internal/form"
	"github.com/pitabwire/console/internal/resources"
	"github.com/pitabwire/console/model"
)

// resource builds the CRUD and action subcommands of one typed binding.
type resource[T any] struct {
	c    *cli
	name func() string
	bind func(model.ResourceDescriptor) resources.Binding[T]
}

func newResource[T any](c *cli, name func() string, bind func(model.ResourceDescriptor) resources.Binding[T]) *resource[T] {
	return &resource[T]{c: c, name: name, bind: bind}
}

func (r *resource[T]) command(use, short string) *cobra.Command {
	cmd := &cobra.Command{Use: use, Short: short}
	cmd.AddCommand(
		r.listCommand(),
		r.getCommand(),
		r.createCommand(),
		r.updateCommand(),
		r.deleteCommand(),
		r.actionCommand(),
	)
	return cmd
}

func (r *resource[T]) controller(cmd *cobra.Command) (*console.Controller[T], error) {
	app, err := r.c.application(cmd)
	if err != nil {
		return nil, err
	}
	desc, err := app.Descriptor(r.name())
	if err != nil {
		return nil, err
	}
	return console.NewController(app.Client, r.bind(desc), app.Deps()), nil
}

func (r *resource[T]) listCommand() *cobra.Command {
	var p api.ListParams
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List one page of items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctrl, err := r.controller(cmd)
			if err != nil {
				return err
			}
			listing, err := ctrl.Load(cmd.Context(), p)
			if err != nil {
				return r.c.fail(cmd, err, "Failed to load "+ctrl.Descriptor().Plural)
			}
			return printListing(r.c, cmd, listing)
		},
	}
	cmd.Flags().IntVar(&p.Page, "page", 1, "page number, starting at 1")
	cmd.Flags().IntVar(&p.PageSize, "page-size", 0, "items per page (defaults to the resource page size)")
	cmd.Flags().StringVar(&p.Search, "search", "", "free text search")
	cmd.Flags().StringToStringVar(&p.Filters, "filter", nil, "filter as key=value, repeatable")
	return cmd
}

func (r *resource[T]) getCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := r.controller(cmd)
			if err != nil {
				return err
			}
			item, err := ctrl.Get(cmd.Context(), args[0])
			if err != nil {
				return r.c.fail(cmd, err, "Failed to load "+ctrl.Descriptor().Title())
			}
			return printItem(r.c, cmd, item)
		},
	}
}

// values are the --data and --set inputs of create and update.
type values struct {
	formID string
	data   string
	sets   []string
}

func (v *values) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&v.formID, "form", "", "form id to submit")
	cmd.Flags().StringVar(&v.data, "data", "", "JSON object with field values")
	cmd.Flags().StringArrayVar(&v.sets, "set", nil, "field=value, repeatable; groups use name.index.field")
}

// apply loads --data over the form's current values, then each --set.
func (v *values) apply(f *form.Form) error {
	if v.data != "" {
		var data map[string]any
		if err := json.Unmarshal([]byte(v.data), &data); err != nil {
			return fmt.Errorf("--data: %w", err)
		}
		merged := f.Payload()
		for k, val := range data {
			merged[k] = val
		}
		f.Reset(merged)
	}
	for _, s := range v.sets {
		path, val, ok := strings.Cut(s, "=")
		if !ok || path == "" {
			return fmt.Errorf("--set %q: want field=value", s)
		}
		if err := setGrowing(f, path, val); err != nil {
			return err
		}
	}
	return nil
}

// setGrowing sets path, appending group entries until the index exists.
func setGrowing(f *form.Form, path, val string) error {
	err := f.Set(path, val)
	if !errors.Is(err, form.ErrGroupNotFound) {
		return err
	}
	name, _, _ := strings.Cut(path, ".")
	for range 16 {
		if _, err := f.AppendGroup(name, nil); err != nil {
			return err
		}
		if err = f.Set(path, val); !errors.Is(err, form.ErrGroupNotFound) {
			return err
		}
	}
	return fmt.Errorf("--set %s: group index out of range", path)
}

func (r *resource[T]) createCommand() *cobra.Command {
	var v values
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctrl, err := r.controller(cmd)
			if err != nil {
				return err
			}
			f, err := ctrl.NewForm(v.formID)
			if err != nil {
				return err
			}
			if err := v.apply(f); err != nil {
				return err
			}
			return r.save(cmd, ctrl, f)
		},
	}
	v.register(cmd)
	return cmd
}

func (r *resource[T]) updateCommand() *cobra.Command {
	var v values
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := r.controller(cmd)
			if err != nil {
				return err
			}
			item, err := ctrl.Get(cmd.Context(), args[0])
			if err != nil {
				return r.c.fail(cmd, err, "Failed to load "+ctrl.Descriptor().Title())
			}
			f, err := ctrl.EditForm(item, v.formID)
			if err != nil {
				return err
			}
			if err := v.apply(f); err != nil {
				return err
			}
			return r.save(cmd, ctrl, f)
		},
	}
	v.register(cmd)
	return cmd
}

func (r *resource[T]) save(cmd *cobra.Command, ctrl *console.Controller[T], f *form.Form) error {
	item, out, err := ctrl.Save(cmd.Context(), f)
	if err != nil {
		printFieldErrors(cmd, err)
		return reported(err)
	}
	if !out.OK() {
		return reported(out.Err)
	}
	return printItem(r.c, cmd, item)
}

func (r *resource[T]) deleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an item after confirmation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := r.controller(cmd)
			if err != nil {
				return err
			}
			item, err := ctrl.Get(cmd.Context(), args[0])
			if err != nil {
				return r.c.fail(cmd, err, "Failed to load "+ctrl.Descriptor().Title())
			}
			res, err := ctrl.Delete(cmd.Context(), item)
			return settle(cmd, res, err)
		},
	}
}

func (r *resource[T]) actionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "action <id> <action>",
		Short: "Run a row action such as publish or activate",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := r.controller(cmd)
			if err != nil {
				return err
			}
			item, err := ctrl.Get(cmd.Context(), args[0])
			if err != nil {
				return r.c.fail(cmd, err, "Failed to load "+ctrl.Descriptor().Title())
			}
			res, err := ctrl.Run(cmd.Context(), item, args[1])
			if err := settle(cmd, res, err); err != nil || !res.Confirmed {
				return err
			}
			return printItem(r.c, cmd, res.Item)
		},
	}
}

// settle turns a guarded mutation result into the command outcome.
func settle[T any](cmd *cobra.Command, res console.Result[T], err error) error {
	switch {
	case errors.Is(err, console.ErrActionUnavailable):
		return errors.New("action is not available for this item")
	case err != nil:
		return err
	case !res.Confirmed:
		fmt.Fprintln(cmd.ErrOrStderr(), "Cancelled")
		return nil
	case !res.Outcome.OK():
		return reported(res.Outcome.Err)
	}
	return nil
}
