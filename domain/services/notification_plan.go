package services

import (
	"betmirror/domain/entities"
	"betmirror/domain/lifecycle"
)

// PlanNotifications returns the notification type and the recipients for a
// committed transition. Recipients are a function of the transition kind;
// claim and unknown actions notify nobody.
func PlanNotifications(bet *entities.Bet, tr entities.Transition) (entities.NotificationType, []entities.Identity) {
	switch tr.Action {
	case entities.ActionCreate:
		return entities.NotificationBetOffer, takers(bet)

	case entities.ActionAccept:
		if !bet.HasAssignedArbiter() {
			return "", nil
		}
		return entities.NotificationArbiterInvitation, arbiters(bet)

	case entities.ActionReject:
		return entities.NotificationBetRejected, maker(bet)

	case entities.ActionCancel:
		return entities.NotificationBetCancelled, takers(bet)

	case entities.ActionNoArbiterCancel:
		roles := lifecycle.ResolveRoles(bet, tr.Actor)
		switch {
		case roles.Maker && !roles.Taker:
			return entities.NotificationBetCancelled, takers(bet)
		case roles.Taker && !roles.Maker:
			return entities.NotificationBetCancelled, maker(bet)
		default:
			// Observed on chain without a known caller
			return entities.NotificationBetCancelled, append(maker(bet), takers(bet)...)
		}

	case entities.ActionEdit:
		return entities.NotificationBetEdited, takers(bet)

	case entities.ActionArbiterAccept:
		return entities.NotificationArbiterAccepted, append(maker(bet), takers(bet)...)

	case entities.ActionArbiterReject:
		return entities.NotificationArbiterDeclined, append(maker(bet), takers(bet)...)

	case entities.ActionForfeit:
		// The forfeiting party loses, so the winner is the one to tell
		switch tr.To {
		case entities.BetStatusTakerWins:
			return entities.NotificationBetForfeited, takers(bet)
		case entities.BetStatusMakerWins:
			return entities.NotificationBetForfeited, maker(bet)
		default:
			return "", nil
		}

	case entities.ActionSelectWinner:
		return entities.NotificationWinnerSelected, append(maker(bet), takers(bet)...)

	default:
		return "", nil
	}
}

func maker(bet *entities.Bet) []entities.Identity {
	if entities.IsZeroAddress(bet.MakerAddress) && bet.MakerFID == nil {
		return nil
	}
	return []entities.Identity{{Address: bet.MakerAddress, FID: bet.MakerFID}}
}

func takers(bet *entities.Bet) []entities.Identity {
	return party(bet.TakerAddress, bet.TakerFID)
}

func arbiters(bet *entities.Bet) []entities.Identity {
	return party(bet.ArbiterAddress, bet.ArbiterFID)
}

// party expands a role to one identity per address, or a single identity
// when the social id is already known
func party(addresses []string, fid *int64) []entities.Identity {
	if fid != nil {
		return []entities.Identity{{FID: fid}}
	}
	var out []entities.Identity
	for _, addr := range addresses {
		if !entities.IsZeroAddress(addr) {
			out = append(out, entities.Identity{Address: addr})
		}
	}
	return out
}
