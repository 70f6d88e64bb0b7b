package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"xdao.co/libreg/config"
	"xdao.co/libreg/msglib"
	"xdao.co/libreg/ownership"
	"xdao.co/libreg/rpc"
)

// commandFlags are the flags every signed command shares.
type commandFlags struct {
	signerFlags
	nonce uint64
	out   string
}

func (f *commandFlags) register(cmd *cobra.Command) {
	f.signerFlags.register(cmd)
	cmd.Flags().Uint64Var(&f.nonce, "nonce", 0, "command nonce (last consumed nonce of the scope + 1)")
	cmd.Flags().StringVar(&f.out, "out", "", "write the signed envelope to this file instead of submitting it")
	_ = cmd.MarkFlagRequired("nonce")
}

// run signs cmd and either writes it to --out or submits it.
func (f *commandFlags) run(c *cobra.Command, g *globals, cmd ownership.Command) error {
	cmd.Nonce = f.nonce
	if err := cmd.Validate(); err != nil {
		return err
	}
	s, err := f.signer()
	if err != nil {
		return err
	}
	signed, err := ownership.Sign(cmd, s, f.hash)
	if err != nil {
		return err
	}
	if f.out != "" {
		b, err := ownership.MarshalSigned(signed)
		if err != nil {
			return err
		}
		if err := os.WriteFile(f.out, b, 0o600); err != nil {
			return err
		}
		fmt.Fprintf(c.OutOrStdout(), "Signed %s for %s (nonce %d): %s\n", cmd.Op, cmd.Scope(), cmd.Nonce, f.out)
		return nil
	}
	return submit(c, g, signed)
}

func submit(c *cobra.Command, g *globals, signed ownership.Signed) error {
	return withClient(g, func(ctx context.Context, cl *rpc.Client) error {
		res, err := cl.Execute(ctx, signed)
		if err != nil {
			return describeError(err)
		}
		return writeJSON(c.OutOrStdout(), res)
	})
}

// describeError prefixes structured errors with their rule id.
func describeError(err error) error {
	if rule := msglib.RuleID(err); rule != "" {
		return fmt.Errorf("%s %s: %w", msglib.KindOf(err), rule, err)
	}
	return err
}

// libraryFlags accept a library by id or by deployment address.
type libraryFlags struct {
	id      string
	address string
}

func (f *libraryFlags) register(cmd *cobra.Command, name, usage string) {
	cmd.Flags().StringVar(&f.id, name, "", usage+" (library id)")
	cmd.Flags().StringVar(&f.address, name+"-address", "", usage+" (deployment address, id is derived)")
}

func (f *libraryFlags) resolve() (msglib.LibraryID, error) {
	switch {
	case f.id != "" && f.address != "":
		return msglib.LibraryID{}, fmt.Errorf("give a library id or an address, not both")
	case f.id != "":
		return msglib.ParseLibraryID(f.id)
	case f.address != "":
		return config.LibraryID(f.address)
	default:
		return msglib.LibraryID{}, fmt.Errorf("a library is required")
	}
}

type pathFlags struct {
	app string
	eid uint32
}

func (f *pathFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.app, "app", "", "application id")
	cmd.Flags().Uint32Var(&f.eid, "eid", 0, "remote endpoint id")
	_ = cmd.MarkFlagRequired("app")
	_ = cmd.MarkFlagRequired("eid")
}

func (f *pathFlags) command(op msglib.Op) ownership.Command {
	return ownership.Command{Op: op, App: msglib.AppID(f.app), EID: msglib.EID(f.eid)}
}

func newSendCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{Use: "send", Short: "Change the send library of a path"}

	var (
		setFlags commandFlags
		setPath  pathFlags
		setLib   libraryFlags
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Select a send library",
		RunE: func(c *cobra.Command, _ []string) error {
			lib, err := setLib.resolve()
			if err != nil {
				return err
			}
			cmd := setPath.command(msglib.OpSetSend)
			cmd.Library = lib
			return setFlags.run(c, g, cmd)
		},
	}
	setFlags.register(set)
	setPath.register(set)
	setLib.register(set, "library", "send library")

	var (
		clearFlags commandFlags
		clearPath  pathFlags
	)
	clear := &cobra.Command{
		Use:   "clear",
		Short: "Return the path to the default send library",
		RunE: func(c *cobra.Command, _ []string) error {
			return clearFlags.run(c, g, clearPath.command(msglib.OpClearSend))
		},
	}
	clearFlags.register(clear)
	clearPath.register(clear)

	cmd.AddCommand(set, clear)
	return cmd
}

func newReceiveCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{Use: "receive", Short: "Change the receive library of a path"}

	var (
		setFlags  commandFlags
		setPath   pathFlags
		setLib    libraryFlags
		setExpiry uint64
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Select a receive library, optionally keeping the current one until --expiry",
		RunE: func(c *cobra.Command, _ []string) error {
			lib, err := setLib.resolve()
			if err != nil {
				return err
			}
			cmd := setPath.command(msglib.OpSetReceive)
			cmd.Library = lib
			cmd.Expiry = setExpiry
			return setFlags.run(c, g, cmd)
		},
	}
	setFlags.register(set)
	setPath.register(set)
	setLib.register(set, "library", "receive library")
	set.Flags().Uint64Var(&setExpiry, "expiry", 0, "checkpoint until which the current library stays acceptable (0: none)")

	var (
		tmoFlags  commandFlags
		tmoPath   pathFlags
		tmoLib    libraryFlags
		tmoExpiry uint64
	)
	timeout := &cobra.Command{
		Use:   "timeout",
		Short: "Open, move or cancel (--expiry 0) the grace window of a path",
		RunE: func(c *cobra.Command, _ []string) error {
			lib, err := tmoLib.resolve()
			if err != nil {
				return err
			}
			cmd := tmoPath.command(msglib.OpSetReceiveTimeout)
			cmd.Library = lib
			cmd.Expiry = tmoExpiry
			return tmoFlags.run(c, g, cmd)
		},
	}
	tmoFlags.register(timeout)
	tmoPath.register(timeout)
	tmoLib.register(timeout, "previous", "library kept during the grace window")
	timeout.Flags().Uint64Var(&tmoExpiry, "expiry", 0, "window end checkpoint (0 cancels)")

	var (
		clearFlags commandFlags
		clearPath  pathFlags
	)
	clear := &cobra.Command{
		Use:   "clear",
		Short: "Return the path to the default receive library",
		RunE: func(c *cobra.Command, _ []string) error {
			return clearFlags.run(c, g, clearPath.command(msglib.OpClearReceive))
		},
	}
	clearFlags.register(clear)
	clearPath.register(clear)

	cmd.AddCommand(set, timeout, clear)
	return cmd
}

func newAdminCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{Use: "admin", Short: "Administrator commands (signed by the endpoint admin key)"}

	var (
		regFlags commandFlags
		regLib   libraryFlags
		regCap   string
	)
	register := &cobra.Command{
		Use:   "register",
		Short: "Register a library",
		RunE: func(c *cobra.Command, _ []string) error {
			lib, err := regLib.resolve()
			if err != nil {
				return err
			}
			capability, err := msglib.ParseCapability(regCap)
			if err != nil {
				return err
			}
			return regFlags.run(c, g, ownership.Command{Op: msglib.OpRegister, Library: lib, Capability: capability})
		},
	}
	regFlags.register(register)
	regLib.register(register, "library", "library to register")
	register.Flags().StringVar(&regCap, "capability", "", "send, receive or send-and-receive")
	_ = register.MarkFlagRequired("capability")

	var (
		bindFlags commandFlags
		bindApp   string
		bindOwner string
	)
	bind := &cobra.Command{
		Use:   "bind",
		Short: "Bind an application to its owner key",
		RunE: func(c *cobra.Command, _ []string) error {
			return bindFlags.run(c, g, ownership.Command{Op: msglib.OpBind, App: msglib.AppID(bindApp), Owner: bindOwner})
		},
	}
	bindFlags.register(bind)
	bind.Flags().StringVar(&bindApp, "app", "", "application id")
	bind.Flags().StringVar(&bindOwner, "owner", "", "owner key (<alg>:<base64>)")
	_ = bind.MarkFlagRequired("app")
	_ = bind.MarkFlagRequired("owner")

	var (
		advFlags commandFlags
		advTo    uint64
	)
	advance := &cobra.Command{
		Use:   "advance",
		Short: "Advance the endpoint checkpoint",
		RunE: func(c *cobra.Command, _ []string) error {
			return advFlags.run(c, g, ownership.Command{Op: msglib.OpAdvance, Checkpoint: advTo})
		},
	}
	advFlags.register(advance)
	advance.Flags().Uint64Var(&advTo, "checkpoint", 0, "new checkpoint")
	_ = advance.MarkFlagRequired("checkpoint")

	cmd.AddCommand(register, bind, advance)
	return cmd
}

func newSubmitCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <envelope>",
		Short: "Submit a signed envelope written with --out",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			b, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			signed, err := ownership.UnmarshalSigned(b)
			if err != nil {
				return err
			}
			return submit(c, g, signed)
		},
	}
}
