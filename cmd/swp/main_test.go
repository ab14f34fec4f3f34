package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"slotswap/internal/domain"
)

var setupOnce sync.Once

type cli struct {
	workspace string
	config    string
}

func newCLI(t *testing.T) cli {
	t.Helper()
	setupOnce.Do(setupRoot)
	ws := t.TempDir()
	return cli{workspace: ws, config: filepath.Join(ws, "missing.yml")}
}

// run executes the root command as party and returns what it printed.
func (c cli) run(t *testing.T, party string, args ...string) ([]byte, error) {
	t.Helper()
	var buf bytes.Buffer
	stdout = &buf
	defer func() { stdout = os.Stdout }()
	full := append([]string{}, args...)
	full = append(full, "--config", c.config, "--workspace", c.workspace, "--party", party, "--json")
	rootCmd.SetArgs(full)
	err := rootCmd.ExecuteContext(context.Background())
	return buf.Bytes(), err
}

func (c cli) decode(t *testing.T, party string, v any, args ...string) {
	t.Helper()
	out, err := c.run(t, party, args...)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(out, v), string(out))
}

func TestCLISwapFlow(t *testing.T) {
	c := newCLI(t)

	var ada, ben domain.Party
	c.decode(t, "", &ada, "party", "create", "--name", "Ada")
	c.decode(t, "", &ben, "party", "create", "--name", "Ben")
	require.Equal(t, "Ada", ada.DisplayName)

	var created []domain.Slot
	c.decode(t, ada.ID, &created, "slot", "create", "--title", "standup",
		"--start", "2024-03-01T09:00:00Z", "--end", "2024-03-01T10:00:00Z", "--status", "offered")
	require.Len(t, created, 1)
	mine := created[0]
	require.Equal(t, domain.SlotOffered, mine.Status)

	c.decode(t, ben.ID, &created, "slot", "create", "--title", "review",
		"--start", "2024-03-02T09:00:00Z", "--end", "2024-03-02T10:00:00Z", "--status", "offered")
	theirs := created[0]

	var market []domain.MarketplaceSlot
	c.decode(t, ada.ID, &market, "market")
	require.Len(t, market, 1)
	require.Equal(t, theirs.ID, market[0].ID)
	require.Equal(t, "Ben", market[0].OwnerName)

	var proposals []domain.ProposalDetails
	c.decode(t, ada.ID, &proposals, "swap", "propose", "--mine", mine.ID, "--theirs", theirs.ID)
	require.Len(t, proposals, 1)
	require.Equal(t, domain.ProposalPending, proposals[0].Status)

	var incoming []domain.ProposalDetails
	c.decode(t, ben.ID, &incoming, "swap", "incoming")
	require.Len(t, incoming, 1)
	require.Equal(t, proposals[0].ID, incoming[0].ID)

	var slots []domain.Slot
	c.decode(t, ada.ID, &slots, "slot", "list")
	require.Len(t, slots, 1)
	require.Equal(t, domain.SlotReserved, slots[0].Status)
}

func TestCLIRequiresParty(t *testing.T) {
	c := newCLI(t)
	_, err := c.run(t, "", "slot", "list")
	require.ErrorContains(t, err, "--party")
}
