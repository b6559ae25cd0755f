package sign

import (
	"bartershops/internal/core"
	"bartershops/internal/trading/shop"
	"bartershops/internal/trading/trade"
	"bartershops/pkg/concurrency"
	apperrors "bartershops/pkg/errors"
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Action is the kind of click on a shop sign
type Action int

const (
	ActionRightClick Action = iota
	ActionLeftClick
	ActionBreak
)

func (a Action) String() string {
	switch a {
	case ActionRightClick:
		return "right_click"
	case ActionLeftClick:
		return "left_click"
	case ActionBreak:
		return "break"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// ClickEvent is one player interaction with a shop sign
type ClickEvent struct {
	PlayerID     string
	ShopID       string
	Action       Action
	Sneaking     bool
	Quantity     int
	PaymentIndex int
}

// OutcomeKind summarizes what a click did
type OutcomeKind int

const (
	OutcomeIgnored OutcomeKind = iota
	OutcomeModeChanged
	OutcomePanelChanged
	OutcomeInfoToggled
	OutcomeShopDeleted
	OutcomeDebounced
	OutcomeRejected
	OutcomeTradeOffered
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeModeChanged:
		return "mode_changed"
	case OutcomePanelChanged:
		return "panel_changed"
	case OutcomeInfoToggled:
		return "info_toggled"
	case OutcomeShopDeleted:
		return "shop_deleted"
	case OutcomeDebounced:
		return "debounced"
	case OutcomeRejected:
		return "rejected"
	case OutcomeTradeOffered:
		return "trade_offered"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is the result of HandleClick
type Outcome struct {
	Kind    OutcomeKind
	Mode    shop.Mode
	Panel   int
	Info    bool
	Session trade.Session
	Reason  trade.Reason
	Err     error
}

// ConfirmationUI shows the buyer a trade to accept or decline. The answer
// comes back through Dispatcher.HandleConfirmation.
type ConfirmationUI interface {
	Present(ctx context.Context, session trade.Session) error
}

// ModeController is the owner side of a shop
type ModeController interface {
	Shop(shopID string) (shop.Record, error)
	OwnerRightClick(playerID, shopID string) (shop.Mode, error)
	OwnerLeftClick(playerID, shopID string) (shop.Mode, error)
	ConfirmDelete(playerID, shopID string) error
	RevertExpired() int
}

// TradeService is the customer side of a shop. The *Async calls run balance
// lookups off the owner loop and call done back on it.
type TradeService interface {
	InitiateAsync(ctx context.Context, req trade.InitiateRequest, done func(trade.InitiateResult)) error
	Confirm(sessionID string) error
	ExecuteAsync(ctx context.Context, sessionID string, done func(trade.ExecutionResult)) error
	Session(sessionID string) (trade.Session, error)
	Cancel(sessionID string) bool
	CancelForPlayer(buyerID string) bool
	InvalidateShop(shopID string) int
}

// Dispatcher routes shop clicks. HandleClick, HandleConfirmation and
// OnPlayerQuit must run on the owner loop. Economy lookups for a trade go to
// the worker pool and the answer comes back through done.
type Dispatcher struct {
	modes    ModeController
	trades   TradeService
	sessions *SessionManager
	ui       ConfirmationUI
	owner    *concurrency.OwnerLoop
	logger   core.ILogger

	revertInterval time.Duration
	degradedLog    rate.Sometimes
}

// NewDispatcher creates a dispatcher. ui may be nil, in which case offered
// trades wait for HandleConfirmation without being presented.
func NewDispatcher(
	modes ModeController,
	trades TradeService,
	sessions *SessionManager,
	ui ConfirmationUI,
	owner *concurrency.OwnerLoop,
	logger core.ILogger,
) *Dispatcher {
	return &Dispatcher{
		modes:          modes,
		trades:         trades,
		sessions:       sessions,
		ui:             ui,
		owner:          owner,
		logger:         logger.WithField("component", "sign_dispatcher"),
		revertInterval: time.Second,
		degradedLog:    rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
}

// HandleClick routes a click to the owner or customer path. done runs on the
// owner loop exactly once, later if the trade waits on a balance lookup.
func (d *Dispatcher) HandleClick(ctx context.Context, ev ClickEvent, done func(Outcome)) {
	s, err := d.modes.Shop(ev.ShopID)
	if err != nil {
		done(Outcome{Kind: OutcomeRejected, Reason: trade.ReasonShopNotFound, Err: err})
		return
	}
	if s.IsOwner(ev.PlayerID) {
		done(d.ownerClick(ev, s))
		return
	}
	d.customerClick(ctx, ev, s, done)
}

func (d *Dispatcher) ownerClick(ev ClickEvent, s shop.Record) Outcome {
	switch ev.Action {
	case ActionRightClick:
		if ev.Sneaking {
			return Outcome{Kind: OutcomePanelChanged, Mode: s.Mode(), Panel: d.sessions.CyclePanel(ev.PlayerID, s.Location())}
		}
		mode, err := d.modes.OwnerRightClick(ev.PlayerID, ev.ShopID)
		if err != nil {
			return Outcome{Kind: OutcomeRejected, Mode: mode, Err: err}
		}
		return Outcome{Kind: OutcomeModeChanged, Mode: mode}

	case ActionLeftClick:
		mode, err := d.modes.OwnerLeftClick(ev.PlayerID, ev.ShopID)
		if err != nil {
			return Outcome{Kind: OutcomeRejected, Mode: mode, Err: err}
		}
		if mode == s.Mode() {
			return Outcome{Kind: OutcomeIgnored, Mode: mode}
		}
		return Outcome{Kind: OutcomeModeChanged, Mode: mode}

	case ActionBreak:
		if err := d.modes.ConfirmDelete(ev.PlayerID, ev.ShopID); err != nil {
			if errors.Is(err, apperrors.ErrDeleteWindowElapsed) {
				d.logger.Info("Delete confirmation arrived too late", "shop_id", ev.ShopID, "player_id", ev.PlayerID)
			}
			mode := s.Mode()
			if cur, serr := d.modes.Shop(ev.ShopID); serr == nil {
				mode = cur.Mode()
			}
			return Outcome{Kind: OutcomeRejected, Mode: mode, Err: err}
		}
		cancelled := d.trades.InvalidateShop(ev.ShopID)
		d.sessions.CleanupLocation(s.Location())
		d.logger.Info("Shop removed by owner", "shop_id", ev.ShopID, "cancelled_sessions", cancelled)
		return Outcome{Kind: OutcomeShopDeleted}

	default:
		d.logger.Warn("Unknown click action", "action", ev.Action.String(), "shop_id", ev.ShopID)
		return Outcome{Kind: OutcomeIgnored, Mode: s.Mode()}
	}
}

func (d *Dispatcher) customerClick(ctx context.Context, ev ClickEvent, s shop.Record, done func(Outcome)) {
	switch ev.Action {
	case ActionBreak:
		// Customers cannot break shop signs.
		done(Outcome{Kind: OutcomeRejected, Mode: s.Mode(), Err: apperrors.ErrNotOwner})
		return
	case ActionRightClick:
		if ev.Sneaking {
			done(Outcome{Kind: OutcomeInfoToggled, Mode: s.Mode(), Info: d.sessions.ToggleCustomerInfo(ev.PlayerID, s.Location())})
			return
		}
	case ActionLeftClick:
	default:
		done(Outcome{Kind: OutcomeIgnored, Mode: s.Mode()})
		return
	}

	if !d.sessions.TryBeginPurchase(ev.PlayerID, s.Location()) {
		done(Outcome{Kind: OutcomeDebounced, Mode: s.Mode()})
		return
	}

	quantity := ev.Quantity
	if quantity == 0 {
		quantity = 1
	}
	err := d.trades.InitiateAsync(ctx, trade.InitiateRequest{
		BuyerID:      ev.PlayerID,
		ShopID:       ev.ShopID,
		Quantity:     quantity,
		PaymentIndex: ev.PaymentIndex,
		Source:       core.SourceGUIConfirmation,
	}, func(res trade.InitiateResult) {
		done(d.offer(ctx, ev, s, res))
	})
	if err != nil {
		d.logger.Warn("Trade initiate could not be scheduled", "shop_id", ev.ShopID, "player_id", ev.PlayerID, "error", err)
		done(Outcome{Kind: OutcomeRejected, Mode: s.Mode(), Reason: scheduleReason(err), Err: err})
	}
}

// offer presents an initiated trade to the buyer
func (d *Dispatcher) offer(ctx context.Context, ev ClickEvent, s shop.Record, res trade.InitiateResult) Outcome {
	if !res.OK() {
		if res.Reason == trade.ReasonDegraded {
			d.degradedLog.Do(func() {
				d.logger.Warn("Trades refused while degraded", "shop_id", ev.ShopID)
			})
		}
		return Outcome{Kind: OutcomeRejected, Mode: s.Mode(), Reason: res.Reason, Err: res.Err}
	}

	sess := res.Session
	if sess.State == trade.StateInitiated {
		if err := d.trades.Confirm(sess.ID); err != nil {
			return Outcome{Kind: OutcomeRejected, Mode: s.Mode(), Reason: trade.ReasonInvalidState, Err: err}
		}
		sess.State = trade.StateAwaitingConfirm
	}

	if d.ui != nil {
		if err := d.ui.Present(ctx, sess); err != nil {
			d.trades.Cancel(sess.ID)
			d.logger.Warn("Confirmation UI failed, trade cancelled", "session_id", sess.ID, "error", err)
			return Outcome{Kind: OutcomeRejected, Mode: s.Mode(), Reason: trade.ReasonCancelled, Err: err}
		}
	}
	return Outcome{Kind: OutcomeTradeOffered, Mode: s.Mode(), Session: sess}
}

// HandleConfirmation is the buyer's answer from the confirmation UI. done
// runs on the owner loop exactly once.
func (d *Dispatcher) HandleConfirmation(ctx context.Context, playerID, sessionID string, accepted bool, done func(trade.ExecutionResult)) {
	sess, err := d.trades.Session(sessionID)
	if err == nil && sess.BuyerID != playerID {
		done(trade.ExecutionResult{SessionID: sessionID, State: sess.State, Reason: trade.ReasonInvalidState, Err: apperrors.ErrNotOwner})
		return
	}
	if !accepted {
		d.trades.Cancel(sessionID)
		done(trade.ExecutionResult{SessionID: sessionID, State: trade.StateCancelled, Reason: trade.ReasonCancelled, Err: apperrors.ErrSessionCancelled})
		return
	}
	if err := d.trades.ExecuteAsync(ctx, sessionID, done); err != nil {
		d.logger.Warn("Trade execute could not be scheduled", "session_id", sessionID, "error", err)
		done(trade.ExecutionResult{SessionID: sessionID, State: sess.State, Reason: scheduleReason(err), Err: err})
	}
}

// scheduleReason maps a failure to queue trade work
func scheduleReason(err error) trade.Reason {
	if errors.Is(err, apperrors.ErrOwnerLoopStopped) {
		return trade.ReasonShutdown
	}
	return trade.ReasonEconomyUnavailable
}

// OnPlayerQuit drops the player's sign sessions and any open trade
func (d *Dispatcher) OnPlayerQuit(playerID string) {
	n := d.sessions.CleanupPlayer(playerID)
	cancelled := d.trades.CancelForPlayer(playerID)
	d.logger.Debug("Player state purged", "player_id", playerID, "sign_sessions", n, "trade_cancelled", cancelled)
}

// Run reverts lapsed delete windows on the owner loop until ctx is done
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.revertInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			err := d.owner.Post(func() {
				if n := d.modes.RevertExpired(); n > 0 {
					d.logger.Debug("Reverted lapsed delete windows", "count", n)
				}
			})
			if err != nil {
				return nil
			}
		}
	}
}
