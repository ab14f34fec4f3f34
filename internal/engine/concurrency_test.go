package engine_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"slotswap/internal/domain"
	"slotswap/internal/engine"
)

func TestConcurrentProposalsOnSameSlot(t *testing.T) {
	env := newTestEnv(t)
	owner := env.party(t, "Owner")
	target := env.slot(t, owner, "prime", domain.SlotOffered)

	const bidders = 8
	mine := make([]domain.Slot, bidders)
	for i := range mine {
		p := env.party(t, fmt.Sprintf("bidder-%d", i))
		mine[i] = env.slot(t, p, "bid", domain.SlotLocked)
	}

	var won, lost atomic.Int32
	var g errgroup.Group
	for i := range mine {
		s := mine[i]
		g.Go(func() error {
			_, err := env.Engine.Propose(env.Ctx, s.OwnerID, s.ID, target.ID)
			switch {
			case err == nil:
				won.Add(1)
			case errors.Is(err, domain.ErrSlotNotTradeable):
				lost.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, int32(1), won.Load())
	require.Equal(t, int32(bidders-1), lost.Load())
	require.Equal(t, 1, env.count(t, "proposals"))
	env.assertReservationInvariant(t)
}

func TestConcurrentResponsesOnSameProposal(t *testing.T) {
	env := newTestEnv(t)
	a, b, s1, s2, p := seedScenario(t, env)

	results := make([]error, 2)
	decisions := []bool{true, false}
	g, ctx := errgroup.WithContext(env.Ctx)
	for i := range decisions {
		g.Go(func() error {
			_, results[i] = env.Engine.Respond(ctx, a.ID, p.Proposal.ID, decisions[i])
			return nil
		})
	}
	require.NoError(t, g.Wait())

	winner := -1
	for i, err := range results {
		if err == nil {
			require.Equal(t, -1, winner, "two responses succeeded")
			winner = i
			continue
		}
		require.ErrorIs(t, err, domain.ErrAlreadyActioned)
	}
	require.NotEqual(t, -1, winner)

	if decisions[winner] {
		require.Equal(t, "accepted", env.proposalStatus(t, p.Proposal.ID))
		require.Equal(t, slotState{b.ID, "locked"}, env.slotState(t, s1.ID))
		require.Equal(t, slotState{a.ID, "locked"}, env.slotState(t, s2.ID))
	} else {
		require.Equal(t, "rejected", env.proposalStatus(t, p.Proposal.ID))
		require.Equal(t, slotState{a.ID, "offered"}, env.slotState(t, s1.ID))
		require.Equal(t, slotState{b.ID, "offered"}, env.slotState(t, s2.ID))
	}
	env.assertReservationInvariant(t)
}

// flakyStore fails the first n transactions with a transient error.
type flakyStore struct {
	engine.Store
	fail  int32
	calls atomic.Int32
}

func (s *flakyStore) InTx(ctx context.Context, fn func(ctx context.Context, tx engine.Tx) error) error {
	if s.calls.Add(1) <= s.fail {
		return fmt.Errorf("%w: serialization failure", domain.ErrTransient)
	}
	return s.Store.InTx(ctx, fn)
}

func TestTransientFailuresAreRetried(t *testing.T) {
	env := newTestEnv(t)
	a, _, _, _, p := seedScenario(t, env)

	flaky := &flakyStore{Store: env.Engine.Store, fail: 2}
	eng := env.Engine
	eng.Store = flaky
	res, err := eng.Respond(env.Ctx, a.ID, p.Proposal.ID, true)
	require.NoError(t, err)
	require.Equal(t, domain.ProposalAccepted, res.Proposal.Status)
	require.Equal(t, int32(3), flaky.calls.Load())
}

func TestTransientFailuresSurfaceAfterMaxAttempts(t *testing.T) {
	env := newTestEnv(t)
	a, _, _, _, p := seedScenario(t, env)

	flaky := &flakyStore{Store: env.Engine.Store, fail: 10}
	eng := env.Engine
	eng.Store = flaky
	_, err := eng.Respond(env.Ctx, a.ID, p.Proposal.ID, true)
	require.ErrorIs(t, err, domain.ErrTransient)
	require.Equal(t, int32(3), flaky.calls.Load())
	require.Equal(t, "pending", env.proposalStatus(t, p.Proposal.ID))
}

func TestBusinessErrorsAreNotRetried(t *testing.T) {
	env := newTestEnv(t)
	_, _, _, _, p := seedScenario(t, env)

	flaky := &flakyStore{Store: env.Engine.Store}
	eng := env.Engine
	eng.Store = flaky
	_, err := eng.Respond(env.Ctx, "stranger", p.Proposal.ID, true)
	require.ErrorIs(t, err, domain.ErrNotAuthorized)
	require.Equal(t, int32(1), flaky.calls.Load())
}

func TestRetryStopsOnCancelledContext(t *testing.T) {
	env := newTestEnv(t)
	a, _, _, _, p := seedScenario(t, env)

	flaky := &flakyStore{Store: env.Engine.Store, fail: 10}
	eng := env.Engine
	eng.Store = flaky
	eng.Backoff = 1 << 40
	ctx, cancel := context.WithCancel(env.Ctx)
	cancel()
	_, err := eng.Respond(ctx, a.ID, p.Proposal.ID, true)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, int32(1), flaky.calls.Load())
}
