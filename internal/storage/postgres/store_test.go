package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"slotswap/internal/domain"
	"slotswap/internal/engine"
	"slotswap/internal/storage/postgres"
	"slotswap/internal/testutil"
)

func newEngine(t *testing.T) engine.Engine {
	t.Helper()
	pool := testutil.NewTestPool(t)
	return engine.New(postgres.NewStore(pool), engine.Options{MaxAttempts: 10, RetryBackoff: 5 * time.Millisecond})
}

func slot(t *testing.T, eng engine.Engine, owner string, status domain.SlotStatus) domain.Slot {
	t.Helper()
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	s, err := eng.CreateSlot(context.Background(), engine.SlotCreateOptions{
		OwnerID: owner, Title: "slot", Start: start, End: start.Add(time.Hour), Status: status,
	})
	require.NoError(t, err)
	return s
}

func TestProposeAcceptRoundTrip(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()
	a, err := eng.RegisterParty(ctx, "Ada")
	require.NoError(t, err)
	b, err := eng.RegisterParty(ctx, "Bo")
	require.NoError(t, err)
	s1 := slot(t, eng, a.ID, domain.SlotOffered)
	s2 := slot(t, eng, b.ID, domain.SlotLocked)

	p, err := eng.Propose(ctx, b.ID, s2.ID, s1.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ProposalPending, p.Proposal.Status)
	require.Equal(t, "Ada", p.TargetName)
	require.True(t, p.TheirSlot.Start.Equal(s1.Start))

	market, err := eng.ListMarketplace(ctx, b.ID)
	require.NoError(t, err)
	require.Empty(t, market)

	res, err := eng.Respond(ctx, a.ID, p.Proposal.ID, true)
	require.NoError(t, err)
	require.Equal(t, domain.ProposalAccepted, res.Proposal.Status)

	mine, err := eng.ListMySlots(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, s2.ID, mine[0].ID)
	require.Equal(t, domain.SlotLocked, mine[0].Status)

	_, err = eng.Respond(ctx, a.ID, p.Proposal.ID, false)
	require.ErrorIs(t, err, domain.ErrAlreadyActioned)

	incoming, err := eng.ListIncoming(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, incoming, 1)
}

func TestConcurrentProposalsSerialize(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()
	owner, err := eng.RegisterParty(ctx, "Owner")
	require.NoError(t, err)
	target := slot(t, eng, owner.ID, domain.SlotOffered)

	const bidders = 6
	bids := make([]domain.Slot, bidders)
	for i := range bids {
		p, err := eng.RegisterParty(ctx, fmt.Sprintf("bidder-%d", i))
		require.NoError(t, err)
		bids[i] = slot(t, eng, p.ID, domain.SlotLocked)
	}

	var won, lost atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range bids {
		g.Go(func() error {
			_, err := eng.Propose(gctx, s.OwnerID, s.ID, target.ID)
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
}

func TestConcurrentResponsesSerialize(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()
	a, err := eng.RegisterParty(ctx, "Ada")
	require.NoError(t, err)
	b, err := eng.RegisterParty(ctx, "Bo")
	require.NoError(t, err)
	p, err := eng.Propose(ctx, b.ID, slot(t, eng, b.ID, domain.SlotLocked).ID, slot(t, eng, a.ID, domain.SlotOffered).ID)
	require.NoError(t, err)

	var ok, actioned atomic.Int32
	var g errgroup.Group
	for _, accept := range []bool{true, false, true, false} {
		g.Go(func() error {
			_, err := eng.Respond(ctx, a.ID, p.Proposal.ID, accept)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, domain.ErrAlreadyActioned):
				actioned.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, int32(1), ok.Load())
	require.Equal(t, int32(3), actioned.Load())
}

func TestInTxPanicReleasesConnection(t *testing.T) {
	pool := testutil.NewTestPool(t)
	store := postgres.NewStore(pool)
	ctx := context.Background()
	acquired := pool.Stat().AcquiredConns()

	func() {
		defer func() { require.NotNil(t, recover()) }()
		_ = store.InTx(ctx, func(ctx context.Context, tx engine.Tx) error {
			require.NoError(t, tx.InsertParty(ctx, domain.Party{ID: "ghost", DisplayName: "Ghost", CreatedAt: time.Now().UTC()}))
			panic("boom")
		})
	}()

	require.Equal(t, acquired, pool.Stat().AcquiredConns())
	err := store.InTx(ctx, func(ctx context.Context, tx engine.Tx) error {
		_, err := tx.GetParty(ctx, "ghost")
		return err
	})
	require.ErrorIs(t, err, domain.ErrPartyNotFound)
}

func TestListingsBreakTimestampTiesByInsertionOrder(t *testing.T) {
	eng := newEngine(t)
	frozen := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	eng.Now = func() time.Time { return frozen }
	ctx := context.Background()
	a, err := eng.RegisterParty(ctx, "Ada")
	require.NoError(t, err)
	b, err := eng.RegisterParty(ctx, "Bo")
	require.NoError(t, err)

	var want []string
	for i := 0; i < 5; i++ {
		target := slot(t, eng, a.ID, domain.SlotOffered)
		mine := slot(t, eng, b.ID, domain.SlotLocked)
		p, err := eng.Propose(ctx, b.ID, mine.ID, target.ID)
		require.NoError(t, err)
		want = append([]string{p.ID}, want...)
	}

	outgoing, err := eng.ListOutgoing(ctx, b.ID)
	require.NoError(t, err)
	got := make([]string, 0, len(outgoing))
	for _, d := range outgoing {
		got = append(got, d.ID)
	}
	require.Equal(t, want, got)
}
