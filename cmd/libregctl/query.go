package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"xdao.co/libreg/config"
	"xdao.co/libreg/msglib"
	"xdao.co/libreg/rpc"
)

func newLibraryCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "library", Short: "Library identity helpers"}
	var address string
	id := &cobra.Command{
		Use:   "id",
		Short: "Print the library id derived from a deployment address",
		RunE: func(c *cobra.Command, _ []string) error {
			lib, err := config.LibraryID(address)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.OutOrStdout(), lib.String())
			return nil
		},
	}
	id.Flags().StringVar(&address, "address", "", "deployment address")
	_ = id.MarkFlagRequired("address")
	cmd.AddCommand(id)
	return cmd
}

func newDescribeCmd(g *globals) *cobra.Command {
	var p pathFlags
	cmd := &cobra.Command{
		Use:   "describe",
		Short: "Show the effective send and receive selection of a path",
		RunE: func(c *cobra.Command, _ []string) error {
			return withClient(g, func(ctx context.Context, cl *rpc.Client) error {
				v, err := cl.Describe(ctx, msglib.AppID(p.app), msglib.EID(p.eid))
				if err != nil {
					return describeError(err)
				}
				return writeJSON(c.OutOrStdout(), v)
			})
		},
	}
	p.register(cmd)
	return cmd
}

func newAcceptCmd(g *globals) *cobra.Command {
	var (
		p   pathFlags
		lib libraryFlags
		at  uint64
	)
	cmd := &cobra.Command{
		Use:   "accept",
		Short: "Report whether a library may deliver on a path",
		Long: `accept prints "true" or "false". With --at the answer is computed at that
checkpoint, which may not be earlier than the endpoint's current one.`,
		RunE: func(c *cobra.Command, _ []string) error {
			candidate, err := lib.resolve()
			if err != nil {
				return err
			}
			return withClient(g, func(ctx context.Context, cl *rpc.Client) error {
				var ok bool
				if c.Flags().Changed("at") {
					ok, err = cl.AcceptAt(ctx, msglib.AppID(p.app), msglib.EID(p.eid), candidate, at)
				} else {
					ok, err = cl.Accept(ctx, msglib.AppID(p.app), msglib.EID(p.eid), candidate)
				}
				if err != nil {
					return describeError(err)
				}
				fmt.Fprintln(c.OutOrStdout(), ok)
				return nil
			})
		},
	}
	p.register(cmd)
	lib.register(cmd, "library", "candidate library")
	cmd.Flags().Uint64Var(&at, "at", 0, "checkpoint to evaluate at")
	return cmd
}

func newLibrariesCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "libraries",
		Short: "List registered libraries",
		RunE: func(c *cobra.Command, _ []string) error {
			return withClient(g, func(ctx context.Context, cl *rpc.Client) error {
				entries, err := cl.Libraries(ctx)
				if err != nil {
					return describeError(err)
				}
				return writeJSON(c.OutOrStdout(), entries)
			})
		},
	}
}

func newHeadCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "head",
		Short: "Show the journal head and current checkpoint",
		RunE: func(c *cobra.Command, _ []string) error {
			return withClient(g, func(ctx context.Context, cl *rpc.Client) error {
				h, err := cl.Head(ctx)
				if err != nil {
					return describeError(err)
				}
				return writeJSON(c.OutOrStdout(), h)
			})
		},
	}
}

func newWatchCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream committed changes as JSON lines until interrupted",
		RunE: func(c *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt)
			defer stop()
			cl, err := g.client()
			if err != nil {
				return err
			}
			defer cl.Close()
			out := c.OutOrStdout()
			err = cl.Watch(ctx, func(ev rpc.WatchEvent) error {
				return writeJSON(out, ev)
			})
			return describeError(err)
		},
	}
}
