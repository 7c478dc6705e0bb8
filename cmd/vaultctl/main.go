package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"fracvault/config"
	vaultsdk "fracvault/sdk/vault"
)

const (
	defaultEndpoint = "http://127.0.0.1:8090"
	endpointEnv     = "VAULTD_URL"
	adminTokenEnv   = "VAULTD_ADMIN_TOKEN"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	if err := run(os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(command string, args []string) error {
	switch command {
	case "init-config":
		return runInitConfig(args)
	case "status":
		return runStatus(args)
	case "holdings":
		return runHoldings(args)
	case "deposit":
		return runDeposit(args)
	case "reclaim":
		return runReclaim(args)
	case "finalize", "cancel", "expire", "close":
		return runTransition(command, args)
	case "disburse":
		return runDisburse(args)
	case "pause", "resume":
		return runPause(command == "pause", args)
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

type commonFlags struct {
	endpoint *string
	idemKey  *string
}

func newFlags(name string) (*flag.FlagSet, commonFlags) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	endpoint := os.Getenv(endpointEnv)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return fs, commonFlags{
		endpoint: fs.String("endpoint", endpoint, "vaultd base URL"),
		idemKey:  fs.String("idempotency-key", "", "Idempotency-Key header for mutating calls"),
	}
}

func (c commonFlags) client() (*vaultsdk.Client, error) {
	return vaultsdk.New(*c.endpoint, vaultsdk.WithAdminToken(os.Getenv(adminTokenEnv)))
}

func (c commonFlags) opts() []vaultsdk.RequestOption {
	if strings.TrimSpace(*c.idemKey) == "" {
		return nil
	}
	return []vaultsdk.RequestOption{vaultsdk.WithIdempotencyKey(*c.idemKey)}
}

func callContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runInitConfig(args []string) error {
	fs := flag.NewFlagSet("init-config", flag.ExitOnError)
	path := fs.String("out", "./vaultd.toml", "Output path for the generated config")
	escrow := fs.Int64("escrow-period", 7*24*3600, "Escrow period in seconds")
	expiry := fs.Int64("reclaim-expiry", 14*24*3600, "Reclaim expiry window in seconds")
	feed := fs.String("oracle-feed", "./oracle.yaml", "Static oracle feed file")
	force := fs.Bool("force", false, "Overwrite an existing config file")
	fs.Parse(args)

	if !*force {
		if _, err := os.Stat(*path); err == nil {
			return fmt.Errorf("config file %s already exists (use --force to overwrite)", *path)
		} else if !os.IsNotExist(err) {
			return err
		}
	}
	cfg := &config.Config{
		ListenAddress: ":8090",
		DataDir:       "./vault-data",
		DBBackend:     config.BackendLevelDB,
		Environment:   "local",
		Vault: config.Vault{
			EscrowPeriodSeconds:  *escrow,
			ReclaimExpirySeconds: *expiry,
		},
		Oracle:    config.Oracle{FeedPath: *feed, MaxAgeSeconds: 900},
		Logging:   config.Logging{Level: "info"},
		RateLimit: config.RateLimit{RequestsPerMinute: 120, Burst: 20},
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return err
	}
	if err := config.Save(*path, cfg); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", *path)
	return nil
}

func runStatus(args []string) error {
	fs, cf := newFlags("status")
	id := fs.String("vault", "", "Vault identifier")
	fs.Parse(args)
	client, err := cf.client()
	if err != nil {
		return err
	}
	ctx, cancel := callContext()
	defer cancel()
	v, err := client.Vault(ctx, *id)
	if err != nil {
		return err
	}
	return printJSON(v)
}

func runHoldings(args []string) error {
	fs, cf := newFlags("holdings")
	id := fs.String("vault", "", "Vault identifier")
	account := fs.String("account", "", "Account identifier")
	fs.Parse(args)
	client, err := cf.client()
	if err != nil {
		return err
	}
	ctx, cancel := callContext()
	defer cancel()
	h, err := client.Holdings(ctx, *id, *account)
	if err != nil {
		return err
	}
	return printJSON(h)
}

func runDeposit(args []string) error {
	fs, cf := newFlags("deposit")
	account := fs.String("account", "", "Account identifier")
	amount := fs.String("amount", "", "Quote amount in micro-units")
	fs.Parse(args)
	client, err := cf.client()
	if err != nil {
		return err
	}
	ctx, cancel := callContext()
	defer cancel()
	balance, err := client.DepositQuote(ctx, *account, *amount, cf.opts()...)
	if err != nil {
		return err
	}
	fmt.Printf("Balance: %s\n", balance)
	return nil
}

func runReclaim(args []string) error {
	fs, cf := newFlags("reclaim")
	id := fs.String("vault", "", "Vault identifier")
	initiator := fs.String("initiator", "", "Initiator account")
	amount := fs.String("amount", "", "Fractions presented")
	pool := fs.String("pool", "", "Fraction pool identifier")
	fs.Parse(args)
	client, err := cf.client()
	if err != nil {
		return err
	}
	ctx, cancel := callContext()
	defer cancel()
	v, err := client.InitiateReclaim(ctx, *id, *initiator, *amount, *pool, cf.opts()...)
	if err != nil {
		return err
	}
	return printJSON(v)
}

func runTransition(command string, args []string) error {
	fs, cf := newFlags(command)
	id := fs.String("vault", "", "Vault identifier")
	caller := fs.String("caller", "", "Reclaim initiator (finalize and cancel)")
	pool := fs.String("pool", "", "Fraction pool identifier (finalize)")
	fs.Parse(args)
	client, err := cf.client()
	if err != nil {
		return err
	}
	ctx, cancel := callContext()
	defer cancel()
	var v *vaultsdk.Vault
	switch command {
	case "finalize":
		v, err = client.FinalizeReclaim(ctx, *id, *caller, *pool, cf.opts()...)
	case "cancel":
		v, err = client.CancelReclaim(ctx, *id, *caller, cf.opts()...)
	case "expire":
		v, err = client.ExpireReclaim(ctx, *id, cf.opts()...)
	default:
		v, err = client.Close(ctx, *id, cf.opts()...)
	}
	if err != nil {
		return err
	}
	return printJSON(v)
}

func runDisburse(args []string) error {
	fs, cf := newFlags("disburse")
	id := fs.String("vault", "", "Vault identifier")
	rawClaims := fs.String("claims", "", "Comma separated holder=amount pairs")
	fs.Parse(args)
	claims, err := parseClaims(*rawClaims)
	if err != nil {
		return err
	}
	client, err := cf.client()
	if err != nil {
		return err
	}
	ctx, cancel := callContext()
	defer cancel()
	out, err := client.Disburse(ctx, *id, claims, cf.opts()...)
	if err != nil {
		return err
	}
	return printJSON(out)
}

func parseClaims(raw string) ([]vaultsdk.Claim, error) {
	var claims []vaultsdk.Claim
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		holder, amount, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(holder) == "" || strings.TrimSpace(amount) == "" {
			return nil, fmt.Errorf("invalid claim %q, expected holder=amount", pair)
		}
		claims = append(claims, vaultsdk.Claim{Holder: strings.TrimSpace(holder), Amount: strings.TrimSpace(amount)})
	}
	if len(claims) == 0 {
		return nil, fmt.Errorf("at least one claim required")
	}
	return claims, nil
}

func runPause(paused bool, args []string) error {
	name := "resume"
	if paused {
		name = "pause"
	}
	fs, cf := newFlags(name)
	fs.Parse(args)
	client, err := cf.client()
	if err != nil {
		return err
	}
	ctx, cancel := callContext()
	defer cancel()
	state, err := client.SetPaused(ctx, paused)
	if err != nil {
		return err
	}
	fmt.Printf("Vault module paused: %v\n", state)
	return nil
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: vaultctl <command> [flags]

Commands:
  init-config   write a starter vaultd.toml
  status        show a vault
  holdings      show an account's balances for a vault
  deposit       credit quote asset to an account
  reclaim       initiate a reclaim
  finalize      finalize a reclaim after the escrow period
  cancel        cancel a reclaim
  expire        expire a stale reclaim
  disburse      redeem fractions for compensation
  close         close a fully disbursed vault
  pause|resume  toggle the vault module (requires %s)
`, adminTokenEnv)
}
