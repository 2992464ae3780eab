package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/ventihq/clubchat-server/internal/store"
)

// MembershipOracle decides whether a user may join a room. It is a pure
// read over club state and is queried once per connection attempt;
// membership facts are never cached across reconnects.
type MembershipOracle struct {
	clubs store.ClubStore
	log   *zerolog.Logger
}

// NewMembershipOracle builds an oracle over the given club store.
func NewMembershipOracle(clubs store.ClubStore, logger *zerolog.Logger) *MembershipOracle {
	return &MembershipOracle{clubs: clubs, log: logger}
}

// Authorize reports whether user (nil for anonymous) may join room.
//
// Open rooms admit any direct connection; the transport layer rejects
// anonymous users before consulting the oracle. Club rooms admit
// superusers whenever the club exists, and everyone else only when the
// club is active and the user holds a membership record.
func (o *MembershipOracle) Authorize(ctx context.Context, user *store.User, room Room) (bool, error) {
	if !room.IsClub {
		return true, nil
	}
	if user == nil {
		return false, nil
	}

	club, err := o.clubs.GetClubByID(ctx, room.ClubID)
	if errors.Is(err, store.ErrNotFound) {
		o.log.Debug().Int64("club_id", room.ClubID).Int64("user_id", user.ID).Msg("authorize: club not found")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load club: %w", err)
	}

	if user.IsSuperuser {
		return true, nil
	}
	if club.Status != store.ClubStatusActive {
		o.log.Debug().Int64("club_id", room.ClubID).Int64("user_id", user.ID).Str("status", string(club.Status)).Msg("authorize: club not active")
		return false, nil
	}

	ok, err := o.clubs.IsMember(ctx, room.ClubID, user.ID)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return ok, nil
}
