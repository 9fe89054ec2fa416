package cmd

import (
	"context"
	"fmt"
	"strconv"

	"betmirror/application"
	"betmirror/config"
	"betmirror/domain/entities"

	log "github.com/sirupsen/logrus"
)

// Act performs one server-signed action on a bet with the key from
// SIGNER_PRIVATE_KEY. args are the bet number, the action and, for
// select_winner, "maker" or "taker".
func Act(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: betmirror act <bet-number> <action> [maker|taker]")
	}

	betNumber, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid bet number %q: %w", args[0], err)
	}
	action := entities.Action(args[1])
	if !action.IsValid() || action == entities.ActionCreate {
		return fmt.Errorf("unknown action %q", args[1])
	}

	req := application.TransitionRequest{BetNumber: betNumber, Action: action}
	if action == entities.ActionSelectWinner {
		if len(args) < 3 {
			return fmt.Errorf("select_winner needs maker or taker")
		}
		var makerWins bool
		switch args[2] {
		case "maker":
			makerWins = true
		case "taker":
		default:
			return fmt.Errorf("winner must be maker or taker, got %q", args[2])
		}
		req.Args.MakerWins = &makerWins
	}

	cfg := config.Get()
	ConfigureLogging(cfg)
	if cfg.SignerPrivateKey == "" {
		return fmt.Errorf("SIGNER_PRIVATE_KEY is required to act")
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	// Without a bus nothing else will see this commit, so notify inline
	if a.natsClient == nil {
		if err := a.startNotifications(); err != nil {
			return fmt.Errorf("failed to start notifications: %w", err)
		}
	}

	result, err := a.transitions.Execute(ctx, req)
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"betNumber": betNumber,
		"action":    action,
		"status":    result.Bet.Status,
		"txHash":    result.Bet.TransactionHash,
		"replayed":  result.Replayed,
	}).Info("Action committed")
	return nil
}

// Reconcile reads a bet from the contract and brings the mirror up to date
func Reconcile(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: betmirror reconcile <bet-number>")
	}
	betNumber, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid bet number %q: %w", args[0], err)
	}

	cfg := config.Get()
	ConfigureLogging(cfg)

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	bet, err := a.reconciler.Reconcile(ctx, betNumber)
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"betNumber": betNumber,
		"status":    bet.Status,
	}).Info("Bet reconciled")
	return nil
}
