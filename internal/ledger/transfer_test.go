package ledger

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-ledger/internal/domain"
)

func TestTransfer_Example(t *testing.T) {
	l, _ := newTestLedger(t)

	require.NoError(t, l.CreateToken(alice, "Gold", "GLD", "img", 1000))
	require.NoError(t, l.Transfer(alice, "GLD", alice, bob, 300))

	assert.Equal(t, uint64(700), l.BalanceOf("GLD", alice))
	assert.Equal(t, uint64(300), l.BalanceOf("GLD", bob))
	assert.Len(t, l.Transactions("GLD", alice), 2)
	assert.Contains(t, l.TokenList(), domain.TokenInfo{
		Name:        "Gold",
		Symbol:      "GLD",
		ImageURL:    "img",
		Owner:       alice,
		TotalSupply: 1000,
		CreatedAt:   l.TokenList()[0].CreatedAt,
	})
}

func TestTransfer_FanOutHistory(t *testing.T) {
	l, clk := newTestLedger(t)
	require.NoError(t, l.CreateToken(alice, "Gold", "GLD", "img", 1000))

	clk.Advance(5)
	require.NoError(t, l.Transfer(alice, "GLD", alice, bob, 250))

	aliceHistory := l.Transactions("GLD", alice)
	bobHistory := l.Transactions("GLD", bob)
	require.Len(t, aliceHistory, 2)
	require.Len(t, bobHistory, 1)

	assert.Equal(t, aliceHistory[1], bobHistory[0])
	tx := bobHistory[0]
	require.NotNil(t, tx.From)
	assert.Equal(t, alice, *tx.From)
	assert.Equal(t, bob, tx.To)
	assert.Equal(t, uint64(250), tx.Amount)
	assert.Equal(t, clk.Now(), tx.Timestamp)
}

func TestTransfer_SelfTransferAppendsTwice(t *testing.T) {
	l, _ := newTestLedger(t)
	require.NoError(t, l.CreateToken(alice, "Gold", "GLD", "img", 1000))

	require.NoError(t, l.Transfer(alice, "GLD", alice, alice, 400))

	assert.Equal(t, uint64(1000), l.BalanceOf("GLD", alice))
	history := l.Transactions("GLD", alice)
	require.Len(t, history, 3)
	assert.Equal(t, history[1], history[2])
	assert.Equal(t, alice, *history[1].From)
	assert.Equal(t, alice, history[1].To)
}

func TestTransfer_InsufficientFunds(t *testing.T) {
	l, _ := newTestLedger(t)
	require.NoError(t, l.CreateToken(alice, "Gold", "GLD", "img", 1000))
	require.NoError(t, l.Transfer(alice, "GLD", alice, bob, 300))

	err := l.Transfer(bob, "GLD", bob, carol, 301)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	assert.Equal(t, uint64(300), l.BalanceOf("GLD", bob))
	assert.Equal(t, uint64(0), l.BalanceOf("GLD", carol))
	assert.Len(t, l.Transactions("GLD", bob), 1)
	assert.Empty(t, l.Transactions("GLD", carol))
	assert.NotContains(t, l.Holders("GLD"), carol)
}

func TestTransfer_FromUnknownHolder(t *testing.T) {
	l, _ := newTestLedger(t)
	require.NoError(t, l.CreateToken(alice, "Gold", "GLD", "img", 1000))

	assert.ErrorIs(t, l.Transfer(carol, "GLD", carol, bob, 1), ErrInsufficientFunds)
	// A zero amount from a holder with no balance succeeds.
	require.NoError(t, l.Transfer(carol, "GLD", carol, bob, 0))
	assert.Len(t, l.Transactions("GLD", carol), 1)
	assert.Len(t, l.Transactions("GLD", bob), 1)
}

func TestTransfer_UnknownSymbol(t *testing.T) {
	l, _ := newTestLedger(t)
	require.NoError(t, l.CreateToken(alice, "Gold", "GLD", "img", 1000))

	assert.ErrorIs(t, l.Transfer(alice, "NOPE", alice, bob, 1), ErrTokenNotFound)
	assert.Equal(t, uint64(1000), l.BalanceOf("GLD", alice))
}

func TestTransfer_Unauthorized(t *testing.T) {
	l, _ := newTestLedger(t)
	require.NoError(t, l.CreateToken(alice, "Gold", "GLD", "img", 1000))

	err := l.Transfer(bob, "GLD", alice, bob, 10)
	assert.ErrorIs(t, err, ErrUnauthorized)

	assert.Equal(t, uint64(1000), l.BalanceOf("GLD", alice))
	assert.Equal(t, uint64(0), l.BalanceOf("GLD", bob))
	assert.Len(t, l.Transactions("GLD", alice), 1)
}

func TestTransfer_CheckOrder(t *testing.T) {
	l, _ := newTestLedger(t)
	require.NoError(t, l.CreateToken(alice, "Gold", "GLD", "img", 10))

	// Unknown symbol is reported before authorization.
	assert.ErrorIs(t, l.Transfer(bob, "NOPE", alice, bob, 1), ErrTokenNotFound)
	// Authorization is reported before insufficiency.
	assert.ErrorIs(t, l.Transfer(bob, "GLD", alice, bob, 11), ErrUnauthorized)
}

func TestTransfer_Conservation(t *testing.T) {
	l, _ := newTestLedger(t)
	const supply = 1_000_000
	require.NoError(t, l.CreateToken(alice, "Gold", "GLD", "img", supply))

	holders := []domain.Principal{alice, bob, carol, "dave", "erin"}
	rng := rand.New(rand.NewSource(42))

	succeeded := 0
	for i := 0; i < 2000; i++ {
		from := holders[rng.Intn(len(holders))]
		to := holders[rng.Intn(len(holders))]
		amount := uint64(rng.Intn(50_000))
		if err := l.Transfer(from, "GLD", from, to, amount); err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, ErrInsufficientFunds)
		}

		var sum uint64
		for _, b := range l.Holders("GLD") {
			sum += b
		}
		require.Equal(t, uint64(supply), sum, "conservation broken after step %d", i)
	}

	assert.Positive(t, succeeded)
	assert.Equal(t, uint64(supply), l.TotalSupply("GLD"))
}

func TestTransfer_ConcurrentCallersNeverOverdraw(t *testing.T) {
	l, _ := newTestLedger(t)
	require.NoError(t, l.CreateToken(alice, "Gold", "GLD", "img", 100))

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Transfer(alice, "GLD", alice, bob, 3); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 33, succeeded)
	assert.Equal(t, uint64(1), l.BalanceOf("GLD", alice))
	assert.Equal(t, uint64(99), l.BalanceOf("GLD", bob))
}
