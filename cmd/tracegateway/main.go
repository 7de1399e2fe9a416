package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erigontech/erigon-lib/log/v3"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/urfave/cli/v2"

	"github.com/erigontech/tracegateway/internal/dispatcher"
	"github.com/erigontech/tracegateway/internal/remotekv"
	"github.com/erigontech/tracegateway/internal/statecache"
)

var (
	privateAPIAddrFlag = &cli.StringFlag{
		Name:  "private.api.addr",
		Usage: "remote KV store network address, for example: 127.0.0.1:9090",
		Value: "127.0.0.1:9090",
	}
	httpAddrFlag = &cli.StringFlag{
		Name:  "http.addr",
		Usage: "HTTP-RPC server listening interface",
		Value: "localhost",
	}
	httpPortFlag = &cli.IntFlag{
		Name:  "http.port",
		Usage: "HTTP-RPC server listening port",
		Value: 8545,
	}
	httpCorsDomainFlag = &cli.StringSliceFlag{
		Name:  "http.corsdomain",
		Usage: "comma separated list of domains from which to accept cross origin requests (browser enforced)",
	}
	blockCacheSizeFlag = &cli.IntFlag{
		Name:  "trace.blockcache.size",
		Usage: "number of blocks to keep in the shared block cache",
		Value: statecache.DefaultBlockCacheSize,
	}
	verbosityFlag = &cli.StringFlag{
		Name:  "log.verbosity",
		Usage: "log level (crit,error,warn,info,debug,trace)",
		Value: "info",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "tracegateway"
	app.Usage = "JSON-RPC gateway serving trace_* methods over a remote KV store"
	app.Flags = []cli.Flag{
		privateAPIAddrFlag,
		httpAddrFlag,
		httpPortFlag,
		httpCorsDomainFlag,
		blockCacheSizeFlag,
		verbosityFlag,
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cliCtx *cli.Context) error {
	setupLogger(cliCtx.String(verbosityFlag.Name))
	logger := log.Root()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := remotekv.Dial(ctx, cliCtx.String(privateAPIAddrFlag.Name), logger)
	if err != nil {
		return fmt.Errorf("dialing remote KV store: %w", err)
	}
	defer db.Close()
	if err := db.EnsureVersionCompatibility(ctx); err != nil {
		return err
	}

	blockCache, err := statecache.NewBlockCache(cliCtx.Int(blockCacheSizeFlag.Name))
	if err != nil {
		return fmt.Errorf("building block cache: %w", err)
	}

	api := dispatcher.NewTraceAPI(db, blockCache, logger)

	rpcServer := gethrpc.NewServer()
	defer rpcServer.Stop()
	if err := rpcServer.RegisterName("trace", api); err != nil {
		return fmt.Errorf("registering trace namespace: %w", err)
	}

	router := chi.NewRouter()
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: cliCtx.StringSlice(httpCorsDomainFlag.Name),
		AllowedMethods: []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}))
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Handle("/", rpcServer)

	addr := fmt.Sprintf("%s:%d", cliCtx.String(httpAddrFlag.Name), cliCtx.Int(httpPortFlag.Name))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP-RPC server", "addr", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP-RPC server: %w", err)
		}
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down HTTP-RPC server: %w", err)
		}
	}
	return nil
}

func setupLogger(verbosity string) {
	lvl, err := log.LvlFromString(verbosity)
	if err != nil {
		lvl = log.LvlInfo
	}
	log.Root().SetHandler(log.LvlFilterHandler(lvl, log.StderrHandler))
}
