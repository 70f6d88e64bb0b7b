package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"xdao.co/libreg/internal/logging"
	"xdao.co/libreg/rpc"

	_ "xdao.co/libreg/storage/localfs"
	_ "xdao.co/libreg/storage/memory"
)

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	addr    string
	timeout time.Duration

	// dial replaces rpc.Dial in tests.
	dial func(addr string) (*rpc.Client, error)
}

func (g *globals) client() (*rpc.Client, error) {
	if g.dial != nil {
		return g.dial(g.addr)
	}
	c, err := rpc.Dial(g.addr, rpc.DialOptions{Timeout: g.timeout})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", g.addr, err)
	}
	c.Timeout = g.timeout
	return c, nil
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(&globals{})
}

func newRootCmdWith(g *globals) *cobra.Command {
	root := &cobra.Command{
		Use:   "libregctl",
		Short: "Operate a libregd message-library control plane",
		Long: `libregctl manages owner keys, signs control commands and queries a
libregd endpoint.

Examples:
  libregctl keys init --name acme
  libregctl keys derive --from acme --role oapp-1
  libregctl receive set --app oapp-1 --eid 30101 --library <id> --expiry 1200 --nonce 3 --key-name acme --role oapp-1
  libregctl accept --app oapp-1 --eid 30101 --library <id>
  libregctl journal verify --backend localfs --opt dir=./libreg-data`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			logging.ConfigureRuntime()
		},
	}
	root.PersistentFlags().StringVar(&g.addr, "addr", "127.0.0.1:7780", "libregd gRPC address")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", 10*time.Second, "per-call timeout")

	root.AddCommand(
		newKeysCmd(),
		newLibraryCmd(),
		newSendCmd(g),
		newReceiveCmd(g),
		newAdminCmd(g),
		newSubmitCmd(g),
		newDescribeCmd(g),
		newAcceptCmd(g),
		newLibrariesCmd(g),
		newHeadCmd(g),
		newWatchCmd(g),
		newJournalCmd(),
		newConfigCmd(),
	)
	return root
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func withClient(g *globals, fn func(ctx context.Context, c *rpc.Client) error) error {
	c, err := g.client()
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(context.Background(), c)
}
