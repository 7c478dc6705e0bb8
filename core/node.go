package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"fracvault/core/events"
	vaultstate "fracvault/core/state"
	"fracvault/native/bank"
	"fracvault/native/common"
	"fracvault/native/custody"
	"fracvault/native/fractions"
	"fracvault/native/oracle"
	"fracvault/native/vault"
	"fracvault/observability"
)

// ErrOracleUnavailable wraps failures fetching a market snapshot.
var ErrOracleUnavailable = errors.New("core: market oracle unavailable")

const defaultCommitRetries = 5

// Node is the central controller, wiring state, collaborators and telemetry
// around the vault engine. Every operation runs in its own state transaction
// under a per-vault lock; events leave the node only after the commit lands.
type Node struct {
	state   *vaultstate.Manager
	params  vault.Params
	oracle  oracle.Oracle
	emitter events.Emitter
	pauses  *common.PauseSet
	logger  *slog.Logger
	metrics *observability.VaultMetrics
	tracer  trace.Tracer
	clock   func() time.Time
	locks   *keyedMutex
	retries int
}

// Option customises a Node.
type Option func(*Node)

// WithOracle sets the market-data source consulted on reclaim initiation.
func WithOracle(o oracle.Oracle) Option { return func(n *Node) { n.oracle = o } }

// WithEmitter sets the downstream event sink.
func WithEmitter(e events.Emitter) Option { return func(n *Node) { n.emitter = e } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(n *Node) { n.logger = l } }

// WithMetrics sets the metrics registry.
func WithMetrics(m *observability.VaultMetrics) Option { return func(n *Node) { n.metrics = m } }

// WithClock overrides the wall clock. Intended for tests.
func WithClock(clock func() time.Time) Option { return func(n *Node) { n.clock = clock } }

// WithPauses shares an operator-controlled pause set.
func WithPauses(p *common.PauseSet) Option { return func(n *Node) { n.pauses = p } }

// NewNode validates params and assembles a node over the supplied state.
func NewNode(mgr *vaultstate.Manager, params vault.Params, opts ...Option) (*Node, error) {
	if mgr == nil {
		return nil, fmt.Errorf("core: state manager required")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	n := &Node{
		state:   mgr,
		params:  params,
		emitter: events.NoopEmitter{},
		pauses:  common.NewPauseSet(),
		logger:  slog.Default(),
		tracer:  otel.Tracer("fracvault/core"),
		clock:   time.Now,
		locks:   newKeyedMutex(),
		retries: defaultCommitRetries,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	if n.emitter == nil {
		n.emitter = events.NoopEmitter{}
	}
	return n, nil
}

// Params returns the deployment parameters.
func (n *Node) Params() vault.Params { return n.params }

// SetPaused pauses or resumes the vault module.
func (n *Node) SetPaused(paused bool) { n.pauses.Set(vault.ModuleName, paused) }

// Paused reports whether the vault module is paused.
func (n *Node) Paused() bool { return n.pauses.IsPaused(vault.ModuleName) }

type txnScope struct {
	txn       *vaultstate.Txn
	engine    *vault.Engine
	fractions *fractions.Ledger
	custody   *custody.Registry
	fund      *bank.Fund
	buffer    *events.Buffer
	now       int64
}

func (n *Node) newScope() *txnScope {
	txn := n.state.Begin()
	scope := &txnScope{
		txn:       txn,
		fractions: fractions.NewLedger(txn),
		custody:   custody.NewRegistry(txn),
		fund:      bank.NewFund(txn),
		buffer:    &events.Buffer{},
		now:       n.clock().Unix(),
	}
	engine := vault.NewEngine(n.params)
	engine.SetState(txn)
	engine.SetFractions(scope.fractions)
	engine.SetCustody(scope.custody)
	engine.SetFund(scope.fund)
	engine.SetPauses(n.pauses)
	engine.SetEmitter(scope.buffer)
	scope.engine = engine
	return scope
}

// run executes fn inside a fresh transaction, committing on success and
// retrying when a concurrent commit invalidated what fn read.
func (n *Node) run(ctx context.Context, op string, key [32]byte, fn func(*txnScope) error) (err error) {
	ctx, span := n.tracer.Start(ctx, "vault."+op, trace.WithAttributes(
		attribute.String("vault.key", common.FormatID(key)),
	))
	started := time.Now()
	defer func() {
		n.metrics.Observe(op, err, time.Since(started))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			n.logger.Warn("vault operation rejected", "operation", op, "key", common.FormatID(key), "error", err)
		} else {
			n.logger.Info("vault operation committed", "operation", op, "key", common.FormatID(key))
		}
		span.End()
	}()

	unlock := n.locks.Lock(key)
	defer unlock()

	for attempt := 0; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		scope := n.newScope()
		if err := fn(scope); err != nil {
			scope.txn.Discard()
			scope.buffer.Discard()
			return err
		}
		commitErr := scope.txn.Commit()
		if errors.Is(commitErr, vaultstate.ErrTxnConflict) && attempt < n.retries {
			n.metrics.RecordConflict()
			span.AddEvent("commit conflict", trace.WithAttributes(attribute.Int("attempt", attempt+1)))
			scope.buffer.Discard()
			continue
		}
		if commitErr != nil {
			scope.buffer.Discard()
			return fmt.Errorf("core: commit %s: %w", op, commitErr)
		}
		scope.buffer.Flush(n.emitter)
		return nil
	}
}

func (n *Node) view(fn func(*txnScope) error) error {
	scope := n.newScope()
	defer scope.txn.Discard()
	return fn(scope)
}

// Fractionalize creates a vault for asset and mints its fractions to creator.
func (n *Node) Fractionalize(ctx context.Context, req vault.FractionalizeRequest) (*vault.Vault, error) {
	var out *vault.Vault
	err := n.run(ctx, "fractionalize", vault.DeriveID(req.AssetID), func(s *txnScope) error {
		v, err := s.engine.Fractionalize(req, s.now)
		out = v
		return err
	})
	return out, err
}

// InitiateReclaim fetches the fraction pool's market snapshot and starts a
// reclaim for initiator presenting amount fractions.
func (n *Node) InitiateReclaim(ctx context.Context, id, initiator [32]byte, amount uint64, pool [32]byte) (*vault.Vault, error) {
	if n.oracle == nil {
		return nil, fmt.Errorf("%w: not configured", ErrOracleUnavailable)
	}
	snap, err := n.oracle.Snapshot(ctx, pool)
	if err != nil {
		n.metrics.Observe("initiate", err, 0)
		return nil, fmt.Errorf("%w: %w", ErrOracleUnavailable, err)
	}
	var out *vault.Vault
	err = n.run(ctx, "initiate", id, func(s *txnScope) error {
		v, err := s.engine.InitiateReclaim(id, initiator, amount, snap.Pool(), snap.TWAPPrice, s.now)
		out = v
		return err
	})
	return out, err
}

// FinalizeReclaim completes the reclaim for caller once the escrow period has
// elapsed.
func (n *Node) FinalizeReclaim(ctx context.Context, id, caller, pool [32]byte) (*vault.Vault, error) {
	var out *vault.Vault
	err := n.run(ctx, "finalize", id, func(s *txnScope) error {
		v, err := s.engine.FinalizeReclaim(id, caller, pool, s.now)
		out = v
		return err
	})
	return out, err
}

// CancelReclaim abandons the in-progress reclaim on behalf of its initiator.
func (n *Node) CancelReclaim(ctx context.Context, id, caller [32]byte) (*vault.Vault, error) {
	var out *vault.Vault
	err := n.run(ctx, "cancel", id, func(s *txnScope) error {
		v, err := s.engine.CancelReclaim(id, caller, s.now)
		out = v
		return err
	})
	return out, err
}

// ExpireReclaim unwinds a reclaim whose expiry window has passed.
func (n *Node) ExpireReclaim(ctx context.Context, id [32]byte) (*vault.Vault, error) {
	var out *vault.Vault
	err := n.run(ctx, "expire", id, func(s *txnScope) error {
		v, err := s.engine.ExpireReclaim(id, s.now)
		out = v
		return err
	})
	return out, err
}

// Claim is one holder's redemption within a disbursement batch.
type Claim struct {
	Holder [32]byte
	Amount uint64
}

// Disburse pays holder for amount redeemed fractions.
func (n *Node) Disburse(ctx context.Context, id, holder [32]byte, amount uint64) (uint64, error) {
	paid, err := n.DisburseBatch(ctx, id, []Claim{{Holder: holder, Amount: amount}})
	if err != nil {
		return 0, err
	}
	return paid[0], nil
}

// DisburseBatch applies every claim in one transaction; either all are paid or
// none are.
func (n *Node) DisburseBatch(ctx context.Context, id [32]byte, claims []Claim) ([]uint64, error) {
	if len(claims) == 0 {
		return nil, vault.ErrInvalidAmount
	}
	var paid []uint64
	err := n.run(ctx, "disburse", id, func(s *txnScope) error {
		paid = make([]uint64, 0, len(claims))
		for i, c := range claims {
			amount, err := s.engine.Disburse(id, c.Holder, c.Amount)
			if err != nil {
				if len(claims) > 1 {
					return fmt.Errorf("claim %d: %w", i, err)
				}
				return err
			}
			paid = append(paid, amount)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	var total uint64
	for _, p := range paid {
		total += p
	}
	n.metrics.RecordPaid(total)
	return paid, nil
}

// Close retires a fully disbursed vault.
func (n *Node) Close(ctx context.Context, id [32]byte) (*vault.Vault, error) {
	var out *vault.Vault
	err := n.run(ctx, "close", id, func(s *txnScope) error {
		v, err := s.engine.Close(id, s.now)
		out = v
		return err
	})
	return out, err
}

// DepositQuote credits account with quote asset usable as reclaim
// compensation.
func (n *Node) DepositQuote(ctx context.Context, account [32]byte, amount uint64) (uint64, error) {
	var balance uint64
	err := n.run(ctx, "deposit", account, func(s *txnScope) error {
		if err := s.fund.Credit(account, amount); err != nil {
			return err
		}
		bal, err := s.fund.Balance(account)
		if err != nil {
			return err
		}
		balance = bal
		s.buffer.Emit(events.QuoteDeposited{Account: account, Amount: amount, Balance: bal})
		return nil
	})
	return balance, err
}

// TransferFractions moves free fraction balance of a vault between holders.
func (n *Node) TransferFractions(ctx context.Context, id, from, to [32]byte, amount uint64) error {
	return n.run(ctx, "transfer", id, func(s *txnScope) error {
		v, err := s.engine.Vault(id)
		if err != nil {
			return err
		}
		return s.fractions.Transfer(v.FractionMint, from, to, amount)
	})
}

// Vault returns the current record for id.
func (n *Node) Vault(id [32]byte) (*vault.Vault, error) {
	var out *vault.Vault
	err := n.view(func(s *txnScope) error {
		v, err := s.engine.Vault(id)
		out = v
		return err
	})
	return out, err
}

// Holdings summarises balances relevant to a vault participant.
type Holdings struct {
	Fractions   uint64
	Quote       uint64
	FundHeld    uint64
	MintSupply  uint64
	MintEscrow  uint64
	AssetHolder [32]byte
}

// Holdings reports account's fraction and quote balances alongside the
// vault's fund and custody state.
func (n *Node) Holdings(id, account [32]byte) (Holdings, error) {
	var h Holdings
	err := n.view(func(s *txnScope) error {
		v, err := s.engine.Vault(id)
		if err != nil {
			return err
		}
		if h.Fractions, err = s.fractions.BalanceOf(v.FractionMint, account); err != nil {
			return err
		}
		if h.Quote, err = s.fund.Balance(account); err != nil {
			return err
		}
		if h.FundHeld, err = s.fund.Escrowed(id); err != nil {
			return err
		}
		mint, err := s.fractions.MintState(v.FractionMint)
		if err != nil {
			return err
		}
		h.MintSupply, h.MintEscrow = mint.Supply, mint.Escrowed
		if rec, ok, err := s.custody.Holder(v.AssetID); err != nil {
			return err
		} else if ok {
			h.AssetHolder = rec.Holder
		} else if rel, ok, err := s.custody.Released(v.AssetID); err != nil {
			return err
		} else if ok {
			h.AssetHolder = rel.Recipient
		}
		return nil
	})
	return h, err
}
