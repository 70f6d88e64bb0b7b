package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"xdao.co/libreg/config"
	"xdao.co/libreg/endpoint"
	"xdao.co/libreg/httpapi"
	"xdao.co/libreg/internal/logging"
	"xdao.co/libreg/internal/metrics"
	"xdao.co/libreg/rpc"
	"xdao.co/libreg/storage/casregistry"

	_ "xdao.co/libreg/storage/localfs"
	_ "xdao.co/libreg/storage/memory"
)

var (
	cfgFile      string
	listBackends bool

	rootCmd = &cobra.Command{
		Use:   "libregd",
		Short: "Message-library selection control plane daemon",
		Long: `libregd serves one endpoint's library directory and per-path send and
receive selections.

Changes arrive as owner-signed commands over gRPC; a read-only JSON API and
Prometheus metrics are served over HTTP. Every change is journaled to the
configured content-addressed store and replayed on restart.`,
		SilenceUsage: true,
		RunE:         runDaemon,
	}
)

func init() {
	rootCmd.Flags().StringVarP(&cfgFile, "config", "c", "", "config file (TOML); built-in defaults when empty")
	rootCmd.Flags().BoolVar(&listBackends, "list-backends", false, "list supported journal backends and exit")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	if cfgFile == "" {
		cfg := config.DefaultConfig()
		return cfg, cfg.Validate()
	}
	return config.Load(cfgFile)
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	if listBackends {
		out := cmd.OutOrStdout()
		for _, b := range casregistry.List(casregistry.UsageDaemon) {
			if b.Description == "" {
				_, _ = fmt.Fprintf(out, "%s\n", b.Name)
				continue
			}
			_, _ = fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
		}
		return nil
	}

	logging.ConfigureRuntime()
	log := logging.New("libregd")
	metrics.Register()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, closeStore, err := cfg.OpenStore(casregistry.UsageDaemon)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Error().Err(err).Msg("close journal store")
		}
	}()

	ep, err := endpoint.Open(endpoint.Options{
		Store:    store,
		Ref:      cfg.Journal.Ref,
		Clock:    cfg.Clock(),
		AdminKey: cfg.AdminKey,
	})
	if err != nil {
		return err
	}
	libs, err := cfg.DirectoryEntries()
	if err != nil {
		return err
	}
	defs, err := cfg.DefaultsTable()
	if err != nil {
		return err
	}
	if err := seed(ep, log, libs, cfg.Bindings(), defs); err != nil {
		return fmt.Errorf("apply config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serve(ctx, cfg, ep)
}

func serve(ctx context.Context, cfg config.Config, ep *endpoint.Endpoint) error {
	log := logging.New("libregd")

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}
	grpcSrv := rpc.NewGRPCServer(ep)

	var httpSrv *http.Server
	if cfg.HTTPAddr != "" {
		httpSrv = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           httpapi.New(ep, cfg.CorsOrigins).Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", lis.Addr().String()).Str("backend", cfg.Journal.Backend).Msg("grpc listening")
		return grpcSrv.Serve(lis)
	})
	if httpSrv != nil {
		g.Go(func() error {
			log.Info().Str("addr", httpSrv.Addr).Msg("http listening")
			if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		grpcSrv.GracefulStop()
		if httpSrv != nil {
			sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpSrv.Shutdown(sctx)
		}
		return nil
	})
	return g.Wait()
}
