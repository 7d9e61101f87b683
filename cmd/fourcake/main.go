package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/BotKhongNgu/fourcake-buy-sell/internal/allowance"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/bscutil"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/chain"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/config"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/events"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/feed"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/gateway"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/metrics"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/order"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/scheduler"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/secret"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/store"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/venue"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/wallet"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	var (
		modeFlag   string
		startFrom  int64
		serve      bool
		refresh    bool
		httpAddr   string
		tokenFlag  string
		eventsFile string
	)
	flag.StringVar(&modeFlag, "mode", cfg.Trading.RunMode, "Run mode: sequential|concurrent")
	flag.Int64Var(&startFrom, "start-from", 0, "Sequential mode: begin the round robin at this account id")
	flag.BoolVar(&serve, "serve", false, "Do not start automatically; wait for websocket commands until interrupted")
	flag.BoolVar(&refresh, "refresh-balances", false, "Refresh stored BNB/token balances before starting")
	flag.StringVar(&httpAddr, "http", cfg.App.HTTPAddr, "Listen address for /metrics and /ws (empty disables)")
	flag.StringVar(&tokenFlag, "token", "", "Token address (default: BOT_TOKEN_ADDRESS or the stored setting)")
	flag.StringVar(&eventsFile, "events", cfg.App.EventsFile, "Append events as JSONL to this file")
	flag.Parse()

	mode, err := scheduler.ParseMode(modeFlag)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	if err := bscutil.ValidateRPCURL(cfg.Chain.RPCURL); err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	box, err := secret.New(cfg.App.EncryptionKey)
	if err != nil {
		log.Fatalf("[fatal] ENCRYPTION_KEY: %v", err)
	}

	st, err := store.Open(cfg.App.StorePath)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Printf("[warn] store close: %v", err)
		}
	}()

	token, tokenSrc := resolveToken(tokenFlag, cfg.Trading.TokenAddress, st)
	if token == (common.Address{}) && !serve {
		log.Fatalf("[fatal] token address required: pass -token, set BOT_TOKEN_ADDRESS, or store the %q setting", store.SettingTokenAddress)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	net := cfg.Network()
	log.Printf("[cfg] network=%s chain_id=%d mode=%s timeout=%s slippage=%s%%", net.Name, net.ChainID, mode, cfg.RPCTimeout(), cfg.SlippagePct())
	if token != (common.Address{}) {
		log.Printf("[cfg] token=%s (%s)", token.Hex(), tokenSrc)
	}

	client, err := chain.DialWithBackoff(ctx, cfg.Chain.RPCURL, net.ChainID, log.Printf)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	defer client.Close()

	gw := gateway.New(cfg.RPCTimeout())

	emitter := events.NewEmitter(events.LogSink{}, st.LogSink(), metrics.Sink{})
	if eventLog := events.NewJSONLSink(eventsFile); eventLog != nil {
		log.Printf("[cfg] events: %s (JSONL)", eventsFile)
		emitter.Add(eventLog)
		defer func() {
			if err := eventLog.Close(); err != nil {
				log.Printf("[warn] events close: %v", err)
			}
		}()
	}

	router, err := venue.NewRouter(client, gw, net)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	allow, err := allowance.NewManager(client, client, gw)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	pipeline := order.NewPipeline(client, client, router, allow, gw, emitter)
	placer := order.NewPlacer(client, pipeline, gw, emitter)

	sched := scheduler.New(st, placer, wallet.Opener(box), emitter, cfg.SchedulerSettings(token))
	runner := scheduler.NewRunner(sched)

	ctrl := &control{
		ctx:         ctx,
		store:       st,
		runner:      runner,
		defaultMode: mode,
		balances:    client,
		gw:          gw,
		token:       token,
		sink:        emitter,
	}
	hub := feed.NewHub(ctrl)
	emitter.Add(hub)

	var srv *http.Server
	if strings.TrimSpace(httpAddr) != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/ws", hub)
		srv = &http.Server{Addr: httpAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Printf("[cfg] serving /metrics and /ws on %s", httpAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("[warn] http server: %v", err)
			}
		}()
	}

	if refresh {
		if err := ctrl.RefreshBalances(ctx); err != nil {
			log.Printf("[warn] balance refresh: %v", err)
		}
	}

	if !serve {
		if err := runner.Start(ctx, mode, startFrom); err != nil {
			log.Fatalf("[fatal] %v", err)
		}
		runner.Wait()
	} else {
		log.Printf("Waiting for commands… (Ctrl-C to exit)")
		<-ctx.Done()
	}

	log.Printf("Shutting down…")
	runner.Stop()
	runner.Wait()
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}

func resolveToken(flagValue, envValue string, st *store.Store) (common.Address, string) {
	if v := strings.TrimSpace(flagValue); common.IsHexAddress(v) {
		return common.HexToAddress(v), "-token"
	}
	if v := strings.TrimSpace(envValue); common.IsHexAddress(v) {
		return common.HexToAddress(v), "BOT_TOKEN_ADDRESS"
	}
	if v, ok := st.Setting(context.Background(), store.SettingTokenAddress); ok && common.IsHexAddress(v) {
		return common.HexToAddress(v), "store"
	}
	return common.Address{}, ""
}
