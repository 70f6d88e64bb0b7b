package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"xdao.co/libreg/config"
	"xdao.co/libreg/journal"
	"xdao.co/libreg/storage"
	"xdao.co/libreg/storage/casregistry"
)

// storeFlags select a journal store directly, bypassing the daemon.
type storeFlags struct {
	backend string
	opts    []string
	ref     string
}

func (f *storeFlags) register(cmd *cobra.Command) {
	fl := cmd.PersistentFlags()
	fl.StringVar(&f.backend, "backend", "localfs", "storage backend ("+strings.Join(casregistry.Names(casregistry.UsageCLI), ", ")+")")
	fl.StringArrayVar(&f.opts, "opt", nil, "backend option key=value (repeatable)")
	fl.StringVar(&f.ref, "ref", journal.DefaultRef, "journal ref name")
}

func (f *storeFlags) open() (storage.Store, func() error, error) {
	opts, err := parseKV(f.opts)
	if err != nil {
		return nil, nil, err
	}
	st, closeFn, err := casregistry.Open(f.backend, casregistry.UsageCLI, opts)
	if err != nil {
		return nil, nil, err
	}
	if closeFn == nil {
		closeFn = func() error { return nil }
	}
	return st, closeFn, nil
}

func parseKV(items []string) (map[string]string, error) {
	out := make(map[string]string, len(items))
	for _, it := range items {
		k, v, ok := strings.Cut(it, "=")
		if !ok {
			return nil, fmt.Errorf("expected key=value, got %q", it)
		}
		k = strings.TrimSpace(k)
		if k == "" {
			return nil, errors.New("empty key")
		}
		if _, exists := out[k]; exists {
			return nil, fmt.Errorf("duplicate option %q", k)
		}
		out[k] = v
	}
	return out, nil
}

func newJournalCmd() *cobra.Command {
	var sf storeFlags
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect, export and import a journal store offline",
	}
	sf.register(cmd)

	verify := &cobra.Command{
		Use:   "verify",
		Short: "Walk the chain from the head and check every entry",
		RunE: func(c *cobra.Command, _ []string) error {
			st, closeFn, err := sf.open()
			if err != nil {
				return err
			}
			defer closeFn()
			j, err := journal.Open(st, sf.ref)
			if err != nil {
				return err
			}
			n, err := j.Verify()
			if err != nil {
				return err
			}
			head, _ := j.Head()
			if !head.Defined() {
				fmt.Fprintln(c.OutOrStdout(), "OK: empty journal")
				return nil
			}
			fmt.Fprintf(c.OutOrStdout(), "OK: %d entries, head %s\n", n, head)
			return nil
		},
	}

	var exportOut string
	export := &cobra.Command{
		Use:   "export",
		Short: "Write the journal as a deterministic tar bundle",
		RunE: func(c *cobra.Command, _ []string) error {
			st, closeFn, err := sf.open()
			if err != nil {
				return err
			}
			defer closeFn()
			j, err := journal.Open(st, sf.ref)
			if err != nil {
				return err
			}
			f, err := os.Create(exportOut)
			if err != nil {
				return err
			}
			if err := j.Export(f); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			_, seq := j.Head()
			fmt.Fprintf(c.OutOrStdout(), "Exported %d entries: %s\n", seq, exportOut)
			return nil
		},
	}
	export.Flags().StringVar(&exportOut, "out", "", "bundle path")
	_ = export.MarkFlagRequired("out")

	var importIn string
	imp := &cobra.Command{
		Use:   "import",
		Short: "Load a bundle into an empty ref",
		RunE: func(c *cobra.Command, _ []string) error {
			st, closeFn, err := sf.open()
			if err != nil {
				return err
			}
			defer closeFn()
			f, err := os.Open(importIn)
			if err != nil {
				return err
			}
			defer f.Close()
			j, err := journal.Import(f, st, sf.ref)
			if err != nil {
				return err
			}
			head, seq := j.Head()
			fmt.Fprintf(c.OutOrStdout(), "Imported %d entries, head %s\n", seq, head)
			return nil
		},
	}
	imp.Flags().StringVar(&importIn, "in", "", "bundle path")
	_ = imp.MarkFlagRequired("in")

	logCmd := &cobra.Command{
		Use:   "log",
		Short: "Print every entry as JSON, oldest first",
		RunE: func(c *cobra.Command, _ []string) error {
			st, closeFn, err := sf.open()
			if err != nil {
				return err
			}
			defer closeFn()
			j, err := journal.Open(st, sf.ref)
			if err != nil {
				return err
			}
			out := c.OutOrStdout()
			return j.Walk(func(r journal.Record) error {
				return writeJSON(out, struct {
					Block string        `json:"block"`
					Entry journal.Entry `json:"entry"`
				}{r.CID.String(), r.Entry})
			})
		},
	}

	cmd.AddCommand(verify, export, imp, logCmd)
	return cmd
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Daemon configuration helpers"}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write an example libregd.toml",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			path := "libregd.toml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteTemplate(path, force); err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)
	return cmd
}
