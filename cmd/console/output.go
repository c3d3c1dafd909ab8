package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/pitabwire/console/internal/console"
	"github.com/pitabwire/console/internal/table"
	"github.com/pitabwire/console/model"
)

type listJSON[T any] struct {
	Items      []T `json:"items"`
	TotalCount int `json:"totalCount"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
}

func (c *cli) jsonOutput() bool {
	return c.cfg != nil && c.cfg.UI.Output == "json"
}

// renderer colors output only for terminals when the config allows it.
func (c *cli) renderer(w io.Writer) *table.Renderer {
	color := c.cfg != nil && c.cfg.UI.Color
	if f, ok := w.(*os.File); !ok || !isatty.IsTerminal(f.Fd()) {
		color = false
	}
	return table.NewRenderer(w, color)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printListing[T any](c *cli, cmd *cobra.Command, l console.Listing[T]) error {
	out := cmd.OutOrStdout()
	if c.jsonOutput() {
		return writeJSON(out, listJSON[T]{
			Items:      l.Page.Items,
			TotalCount: l.Page.TotalCount,
			Page:       l.Page.PageNumber,
			PageSize:   l.Page.PageSize,
		})
	}
	rd := c.renderer(out)
	if err := table.Render(rd, l.View); err != nil {
		return err
	}
	return rd.RenderPagination(l.Pagination)
}

type field struct {
	name  string
	value any
}

var fieldColumns = []model.ColumnDescriptor[field]{
	{Header: "Field", Accessor: model.Derived(func(f field) any { return f.name })},
	{Header: "Value", Accessor: model.Derived(func(f field) any { return f.value }), Render: func(v any, _ field) string {
		switch v.(type) {
		case map[string]any, []any:
			data, _ := json.Marshal(v)
			return string(data)
		}
		return table.FormatValue(v)
	}},
}

// printItem writes one entity as JSON or as a sorted field/value table.
func printItem(c *cli, cmd *cobra.Command, item any) error {
	out := cmd.OutOrStdout()
	if c.jsonOutput() {
		return writeJSON(out, item)
	}
	m := model.ToMap(item)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	rows := make([]field, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, field{name: k, value: m[k]})
	}
	return table.Render(c.renderer(out), table.Build(rows, fieldColumns, nil, false, "No fields"))
}

// printFieldErrors lists local validation failures on stderr.
func printFieldErrors(cmd *cobra.Command, err error) {
	var verr *model.ValidationError
	if !errors.As(err, &verr) {
		return
	}
	for _, fe := range verr.Fields {
		fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s\n", fe.Field, fe.Message)
	}
}
