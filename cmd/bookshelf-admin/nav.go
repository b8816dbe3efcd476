package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/target/bookshelf/config"
	domainauth "github.com/target/bookshelf/internal/domain/auth"
	"github.com/target/bookshelf/internal/domain/nav"
)

func newNavCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nav",
		Short: "Inspect the navigation table",
	}
	cmd.AddCommand(newNavValidateCmd(a), newNavResolveCmd(a))
	return cmd
}

func newNavValidateCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the navigation table, then list its entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			table, err := a.loadTable(file)
			if err != nil {
				return err
			}
			return printTable(cmd.OutOrStdout(), table)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "navigation YAML file (defaults to NAV_FILE or the built-in table)")
	return cmd
}

type resolveOptions struct {
	file     string
	route    string
	signedIn bool
	email    string
}

func newNavResolveCmd(a *app) *cobra.Command {
	var opts resolveOptions
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Print the navigation resolved for a route and identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			table, err := a.loadTable(opts.file)
			if err != nil {
				return err
			}
			state := domainauth.Absent()
			if opts.signedIn {
				state = domainauth.Present(domainauth.Identity{UserID: "cli", Email: opts.email})
			}
			return printResolved(cmd.OutOrStdout(), nav.Resolve(state, opts.route, table))
		},
	}
	cmd.Flags().StringVar(&opts.file, "file", "", "navigation YAML file (defaults to NAV_FILE or the built-in table)")
	cmd.Flags().StringVar(&opts.route, "route", "", "route to resolve, e.g. /my-books")
	cmd.Flags().BoolVar(&opts.signedIn, "signed-in", false, "resolve for a signed-in user")
	cmd.Flags().StringVar(&opts.email, "email", "student@example.edu", "email shown for the signed-in user")
	_ = cmd.MarkFlagRequired("route")
	return cmd
}

func (a *app) loadTable(file string) (nav.Table, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nav.Table{}, fmt.Errorf("load config: %w", err)
	}
	if file = strings.TrimSpace(file); file != "" {
		cfg.Navigation.File = file
	}
	return config.LoadNavigation(cfg.Navigation)
}

func printTable(w io.Writer, table nav.Table) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "PATH\tLABEL\tVISIBILITY"); err != nil {
		return err
	}
	for _, e := range table.Entries() {
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Path, e.Label, e.Visibility); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d entries, deny_undeclared=%t\n", table.Len(), table.Options().DenyUndeclared)
	return err
}

func printResolved(w io.Writer, view nav.ResolvedView) error {
	out := struct {
		nav.ResolvedView
		Denial string `json:"denial,omitempty"`
	}{ResolvedView: view, Denial: string(view.Denial())}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
