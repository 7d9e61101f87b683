package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"

	"github.com/BotKhongNgu/fourcake-buy-sell/internal/account"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/bscutil"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/config"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/secret"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/store"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/wallet"
)

func main() {
	log.SetFlags(0)

	if len(os.Args) < 2 {
		printHelp()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	st, err := store.Open(cfg.App.StorePath)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	defer st.Close()

	if err := runCommand(context.Background(), cfg, st, os.Args[1], os.Args[2:]); err != nil {
		st.Close()
		log.Fatalf("[fatal] %s: %v", os.Args[1], err)
	}
}

func runCommand(ctx context.Context, cfg *config.Config, st *store.Store, cmd string, args []string) error {
	switch cmd {
	case "add":
		return addAccount(ctx, cfg, st, args)
	case "list", "ls":
		return listAccounts(ctx, st)
	case "remove", "rm":
		id, err := accountID(args)
		if err != nil {
			return err
		}
		return st.Delete(ctx, id)
	case "activate", "deactivate":
		id, err := accountID(args)
		if err != nil {
			return err
		}
		_, err = st.Update(ctx, id, account.ActivePatch(cmd == "activate"))
		return err
	case "set":
		return setAccount(ctx, st, args)
	case "bulk-percent":
		return bulkPercent(ctx, st, args)
	case "bulk-amount":
		return bulkAmount(ctx, st, args)
	case "reset":
		accts, err := st.Accounts(ctx)
		if err != nil {
			return err
		}
		return st.UpdateMany(ctx, account.PlanReset(accts))
	case "set-token":
		if len(args) != 1 || !common.IsHexAddress(args[0]) {
			return fmt.Errorf("usage: set-token <address>")
		}
		return st.SetSetting(ctx, store.SettingTokenAddress, common.HexToAddress(args[0]).Hex())
	case "logs":
		for _, e := range st.Logs(ctx, 200) {
			fmt.Printf("%s %s\n", e.CreatedAt.Format("2006-01-02 15:04:05"), e.Message)
		}
		return nil
	case "help":
		printHelp()
		return nil
	default:
		printHelp()
		return fmt.Errorf("unknown command")
	}
}

// addAccount reads the key material from stdin so it stays out of shell
// history.
func addAccount(ctx context.Context, cfg *config.Config, st *store.Store, args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	name := fs.String("name", "", "Account name")
	kind := fs.String("kind", string(wallet.KindPrivateKey), "Key material kind: privateKey|recovery")
	side := fs.String("type", string(account.Buy), "Order side: buy|sell")
	amount := fs.String("amount", "0.01", "Amount per order (BNB for buy, tokens for sell, or percent)")
	unit := fs.String("unit", string(account.UnitValue), "Amount unit: value|percent")
	cycle := fs.Int("cycle", 0, "Cycle cap (0 runs until stopped)")
	_ = fs.Parse(args)

	box, err := secret.New(cfg.App.EncryptionKey)
	if err != nil {
		return fmt.Errorf("ENCRYPTION_KEY: %w", err)
	}
	s, err := account.ParseSide(*side)
	if err != nil {
		return err
	}
	if _, err := bscutil.ParseAmount(*amount); err != nil {
		return err
	}
	u := account.Unit(strings.ToLower(*unit))
	if u != account.UnitValue && u != account.UnitPercent {
		return fmt.Errorf("invalid unit %q", *unit)
	}

	fmt.Fprint(os.Stderr, "key material: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && strings.TrimSpace(line) == "" {
		return fmt.Errorf("read key material: %w", err)
	}
	addr, sealed, err := wallet.Import(box, strings.TrimSpace(line), wallet.KeyKind(*kind))
	if err != nil {
		return err
	}
	if strings.TrimSpace(*name) == "" {
		*name = addr.Hex()[:10]
	}

	a, err := st.Create(ctx, account.Account{
		Name:         *name,
		Address:      addr.Hex(),
		EncryptedKey: sealed,
		Type:         s,
		AmountIn:     *amount,
		Unit:         u,
		IsActive:     true,
		Cycle:        *cycle,
	})
	if err != nil {
		return err
	}
	fmt.Printf("added #%d %s %s\n", a.ID, a.Name, a.Address)
	return nil
}

func listAccounts(ctx context.Context, st *store.Store) error {
	accts, err := st.Accounts(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tADDRESS\tACTIVE\tTYPE\tAMOUNT\tCYCLE\tSTATUS\tBNB\tTOKENS")
	for _, a := range accts {
		amount := a.AmountIn
		if a.Unit == account.UnitPercent {
			amount += "%"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%s\t%s\t%d/%d\t%s\t%s\t%s\n",
			a.ID, a.Name, a.Address, a.IsActive, a.Type, amount, a.CurrentCycle, a.Cycle, a.Status, a.BNBBalance, a.TokenBalance)
	}
	return w.Flush()
}

func setAccount(ctx context.Context, st *store.Store, args []string) error {
	fs := flag.NewFlagSet("set", flag.ExitOnError)
	id := fs.Int64("id", 0, "Account id")
	name := fs.String("name", "", "Account name")
	side := fs.String("type", "", "Order side: buy|sell")
	amount := fs.String("amount", "", "Amount per order")
	unit := fs.String("unit", "", "Amount unit: value|percent")
	token := fs.String("token", "", "Per-account token address")
	slippage := fs.String("slippage", "", "Per-account slippage percent")
	cycle := fs.Int("cycle", -1, "Cycle cap (0 runs until stopped)")
	order := fs.Int("order", -1, "Sort order")
	waitFrom := fs.Int("wait-from", -1, "Minimum seconds between cycles")
	waitTo := fs.Int("wait-to", -1, "Maximum seconds between cycles")
	_ = fs.Parse(args)

	if *id <= 0 {
		return fmt.Errorf("-id is required")
	}
	var p account.Patch
	if *name != "" {
		p.Name = name
	}
	if *side != "" {
		s, err := account.ParseSide(*side)
		if err != nil {
			return err
		}
		p.Type = &s
	}
	if *amount != "" {
		if _, err := bscutil.ParseAmount(*amount); err != nil {
			return err
		}
		p.AmountIn = amount
	}
	if *unit != "" {
		u := account.Unit(strings.ToLower(*unit))
		if u != account.UnitValue && u != account.UnitPercent {
			return fmt.Errorf("invalid unit %q", *unit)
		}
		p.Unit = &u
	}
	if *token != "" {
		if !common.IsHexAddress(*token) {
			return fmt.Errorf("invalid token %q", *token)
		}
		p.TokenAddress = token
	}
	if *slippage != "" {
		if _, err := bscutil.ParseAmount(*slippage); err != nil {
			return fmt.Errorf("slippage: %w", err)
		}
		p.Slippage = slippage
	}
	if *cycle >= 0 {
		p.Cycle = cycle
	}
	if *order >= 0 {
		p.SortOrder = order
	}
	if *waitFrom >= 0 {
		p.WaitFrom = waitFrom
	}
	if *waitTo >= 0 {
		p.WaitTo = waitTo
	}

	a, err := st.Update(ctx, *id, p)
	if err != nil {
		return err
	}
	fmt.Printf("updated #%d %s\n", a.ID, a.Name)
	return nil
}

func bulkPercent(ctx context.Context, st *store.Store, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: bulk-percent <buy|sell> <25|50|75|100>")
	}
	side, err := account.ParseSide(args[0])
	if err != nil {
		return err
	}
	pct, err := strconv.Atoi(args[1])
	if err != nil || pct <= 0 || pct > 100 {
		return fmt.Errorf("invalid percent %q", args[1])
	}
	accts, err := st.Accounts(ctx)
	if err != nil {
		return err
	}
	return st.UpdateMany(ctx, account.PlanBulkPercent(accts, side, pct))
}

func bulkAmount(ctx context.Context, st *store.Store, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: bulk-amount <buy|sell> <amount>")
	}
	side, err := account.ParseSide(args[0])
	if err != nil {
		return err
	}
	amount, err := bscutil.ParseAmount(args[1])
	if err != nil {
		return err
	}
	if !amount.IsPositive() {
		return fmt.Errorf("amount must be > 0")
	}
	accts, err := st.Accounts(ctx)
	if err != nil {
		return err
	}
	return st.UpdateMany(ctx, account.PlanBulkAmount(accts, side, amount))
}

func accountID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("account id required")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid account id %q", args[0])
	}
	return id, nil
}

func printHelp() {
	fmt.Println(`Usage: accounts <command> [args]

Commands:
  add [-name N] [-kind privateKey|recovery] [-type buy|sell] [-amount A] [-unit value|percent] [-cycle C]
                            Import an account; key material is read from stdin
  list                      Show stored accounts
  remove <id>               Delete an account
  activate <id>             Include an account in runs
  deactivate <id>           Exclude an account from runs
  set -id <id> [flags]      Edit an account (see: accounts set -h)
  bulk-percent <side> <pct> Every account trades pct% of its balance
  bulk-amount <side> <amt>  Every account trades a fixed amount
  reset                     Set every account pending with no cycles used
  set-token <address>       Store the default token address
  logs                      Show the stored activity log`)
}
