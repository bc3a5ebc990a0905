// Command shopctl is a CLI client for the storefront: session, cart, and
// checkout against the remote API (or a local stubapi).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/Hafees-J/rk-onlineshopping-fe/internal/cart"
	"github.com/Hafees-J/rk-onlineshopping-fe/internal/checkout"
	"github.com/Hafees-J/rk-onlineshopping-fe/internal/credstore"
	"github.com/Hafees-J/rk-onlineshopping-fe/internal/delivery"
	"github.com/Hafees-J/rk-onlineshopping-fe/internal/errs"
	"github.com/Hafees-J/rk-onlineshopping-fe/internal/model"
	"github.com/Hafees-J/rk-onlineshopping-fe/internal/session"
)

// ---- utils ----

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fail(err error) {
	switch {
	case errors.Is(err, errs.ErrSessionExpired):
		fmt.Fprintln(os.Stderr, "session expired: please login again")
	case errors.Is(err, errs.ErrUnavailable):
		fmt.Fprintf(os.Stderr, "service unavailable: %v\n", err)
	default:
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(1)
}

func usage() {
	fmt.Fprintf(os.Stderr, `shopctl
Usage:
  shopctl -base-url URL [-config-dir dir] [-v] <cmd> [args]

Commands:
  version
  login      -u <username> -p <password>       (saves credential)
  logout
  whoami
  cart                                         (list cart lines)
  add        -item <id> -qty <n> [-reset]
  set-qty    -line <id> -qty <n>
  rm         -line <id>
  addresses
  quote      -address <id>
  checkout   -address <id>                     (omit -address to use the default)
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands over a shared session/cart/checkout stack.
func main() {
	baseURL := flag.String("base-url", "http://localhost:8000", "storefront API base URL")
	cfgDir := flag.String("config-dir", credstore.DefaultDir(), "credential directory")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)

	logger := zap.NewNop()
	if *verbose {
		logger, _ = zap.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()

	store := credstore.NewFile(*cfgDir)
	mgr, err := session.NewManager(session.Config{BaseURL: *baseURL}, store, logger)
	if err != nil {
		fail(err)
	}
	basket := cart.New(mgr, logger)
	pricing := delivery.New(mgr, logger)
	flow := checkout.New(mgr, basket, pricing, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cmd {

	case "version":
		fmt.Printf("shopctl %s (%s)\n", version, buildDate)

	case "login":
		fs := flag.NewFlagSet("login", flag.ExitOnError)
		u := fs.String("u", "", "username")
		p := fs.String("p", "", "password")
		_ = fs.Parse(flag.Args()[1:])
		if *u == "" || *p == "" {
			fmt.Fprintln(os.Stderr, "need -u and -p")
			os.Exit(1)
		}
		cred, err := mgr.Login(ctx, *u, *p)
		if err != nil {
			fail(err)
		}
		fmt.Printf("ok: %s (%s)\n", cred.Subject, cred.Role)

	case "logout":
		mgr.Logout()
		fmt.Println("ok")

	case "whoami":
		cred := mgr.Current()
		if cred == nil {
			fmt.Println("anonymous")
			break
		}
		printJSON(map[string]any{
			"subject":    cred.Subject,
			"role":       cred.Role,
			"shop_id":    cred.ShopID,
			"expires_at": cred.ExpiresAt.UTC().Format(time.RFC3339),
		})

	case "cart":
		snap, err := basket.Refresh(ctx)
		if err != nil {
			fail(err)
		}
		printJSON(snap.Lines)
		fmt.Printf("total: %.2f\n", snap.Total())

	case "add":
		fs := flag.NewFlagSet("add", flag.ExitOnError)
		item := fs.String("item", "", "item id")
		qty := fs.Int("qty", 1, "quantity")
		reset := fs.Bool("reset", false, "empty the cart if it belongs to another shop")
		_ = fs.Parse(flag.Args()[1:])
		if *item == "" {
			fmt.Fprintln(os.Stderr, "need -item")
			os.Exit(1)
		}
		res, err := basket.Add(ctx, *item, *qty)
		if err != nil {
			fail(err)
		}
		if res.Conflict != nil {
			if !*reset {
				fmt.Fprintf(os.Stderr, "conflict: %s\nre-run with -reset to empty the cart first\n", res.Conflict.Reason)
				os.Exit(2)
			}
			res, err = basket.ResolveConflict(ctx, res.Conflict.Pending, true)
			if err != nil {
				fail(err)
			}
		}
		printJSON(res.Accepted.Lines)

	case "set-qty":
		fs := flag.NewFlagSet("set-qty", flag.ExitOnError)
		line := fs.String("line", "", "cart line id")
		qty := fs.Int("qty", 0, "new quantity (>= 1)")
		_ = fs.Parse(flag.Args()[1:])
		if *line == "" {
			fmt.Fprintln(os.Stderr, "need -line")
			os.Exit(1)
		}
		snap, err := basket.UpdateQuantity(ctx, *line, *qty)
		if err != nil {
			fail(err)
		}
		printJSON(snap.Lines)

	case "rm":
		fs := flag.NewFlagSet("rm", flag.ExitOnError)
		line := fs.String("line", "", "cart line id")
		_ = fs.Parse(flag.Args()[1:])
		if *line == "" {
			fmt.Fprintln(os.Stderr, "need -line")
			os.Exit(1)
		}
		if err := basket.Remove(ctx, *line); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "addresses":
		addrs, err := flow.Addresses(ctx)
		if err != nil {
			fail(err)
		}
		printJSON(addrs)

	case "quote":
		fs := flag.NewFlagSet("quote", flag.ExitOnError)
		addrID := fs.String("address", "", "address id")
		_ = fs.Parse(flag.Args()[1:])
		addr, err := pickAddress(ctx, flow, *addrID)
		if err != nil {
			fail(err)
		}
		snap, err := basket.Refresh(ctx)
		if err != nil {
			fail(err)
		}
		q, err := pricing.Quote(ctx, addr, snap)
		if err != nil {
			fail(err)
		}
		printJSON(map[string]any{
			"distance":  q.Distance,
			"duration":  q.Duration,
			"charge":    q.Charge,
			"available": q.Available,
			"message":   q.Message,
		})

	case "checkout":
		fs := flag.NewFlagSet("checkout", flag.ExitOnError)
		addrID := fs.String("address", "", "address id (default address when omitted)")
		_ = fs.Parse(flag.Args()[1:])

		if *addrID == "" {
			if err := flow.Start(ctx); err != nil {
				fail(err)
			}
		} else {
			addr, err := pickAddress(ctx, flow, *addrID)
			if err != nil {
				fail(err)
			}
			if err := flow.SelectAddress(ctx, addr); err != nil {
				fail(err)
			}
		}
		if q, ok := flow.Quote(); ok && !q.Available {
			fmt.Fprintf(os.Stderr, "cannot checkout: %s\n", q.Message)
			os.Exit(1)
		}
		if flow.State() != checkout.ReadyToPlace {
			fmt.Fprintln(os.Stderr, "cannot checkout: no deliverable address selected")
			os.Exit(1)
		}
		order, err := flow.PlaceOrder(ctx)
		if err != nil {
			fail(err)
		}
		fmt.Printf("order placed: %s (total %.2f, delivery %.2f)\n",
			order.ID, order.Total, order.DeliveryCharge)

	default:
		usage()
	}
}

// pickAddress resolves an address id against the account's address book,
// falling back to the default address when id is empty.
func pickAddress(ctx context.Context, flow *checkout.Orchestrator, id string) (model.Address, error) {
	addrs, err := flow.Addresses(ctx)
	if err != nil {
		return model.Address{}, err
	}
	for _, a := range addrs {
		if id == "" && a.Default {
			return a, nil
		}
		if a.ID == id {
			return a, nil
		}
	}
	if id == "" {
		return model.Address{}, errors.New("no default address; pass -address")
	}
	return model.Address{}, fmt.Errorf("unknown address %q", id)
}
