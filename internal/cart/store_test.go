package cart

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func shirt(qty int) Line {
	return Line{ProductID: 1, Name: "Shirt", Price: 150000, Color: strPtr("Red"), Size: strPtr("M"), Quantity: qty}
}

func assertInvariants(t *testing.T, st State) {
	t.Helper()
	seen := make(map[Key]bool, len(st.Lines))
	var sum int64
	for _, l := range st.Lines {
		assert.False(t, seen[l.Key()], "duplicate key %s", l.Key())
		seen[l.Key()] = true
		assert.GreaterOrEqual(t, l.Quantity, 1)
		assert.GreaterOrEqual(t, l.Price, int64(0))
		sum += l.Price * int64(l.Quantity)
	}
	assert.Equal(t, sum, st.Total())
}

func TestLine_Key(t *testing.T) {
	t.Run("ServerLineIDWins", func(t *testing.T) {
		l := shirt(1)
		l.ServerLineID = "77"
		assert.Equal(t, Key("line:77"), l.Key())
		assert.Equal(t, VariantKey(1, "Red", "M"), l.VariantKey())
	})

	t.Run("NilAndEmptyAreTheSameVariant", func(t *testing.T) {
		a := Line{ProductID: 2}
		b := Line{ProductID: 2, Color: strPtr(""), Size: strPtr("")}
		assert.Equal(t, a.Key(), b.Key())
	})

	t.Run("SeparatorsDoNotCollide", func(t *testing.T) {
		a := Line{ProductID: 2, Color: strPtr("a:b"), Size: strPtr("c")}
		b := Line{ProductID: 2, Color: strPtr("a"), Size: strPtr("b:c")}
		assert.NotEqual(t, a.Key(), b.Key())
	})
}

func TestStore_AddLine(t *testing.T) {
	t.Run("MergesSameVariant", func(t *testing.T) {
		s := NewStore()
		_, err := s.AddLine(shirt(1))
		require.NoError(t, err)
		st, err := s.AddLine(shirt(2))
		require.NoError(t, err)

		require.Len(t, st.Lines, 1)
		assert.Equal(t, 3, st.Lines[0].Quantity)
		assert.Equal(t, int64(450000), s.GetTotal())
	})

	t.Run("DifferentVariantAppends", func(t *testing.T) {
		s := NewStore(shirt(1))
		blue := shirt(1)
		blue.Color = strPtr("Blue")

		st, err := s.AddLine(blue)
		require.NoError(t, err)
		assert.Len(t, st.Lines, 2)
	})

	t.Run("LocalAddMergesIntoServerRow", func(t *testing.T) {
		server := shirt(1)
		server.ServerLineID = "9"
		s := NewStore(server)

		st, err := s.AddLine(shirt(2))
		require.NoError(t, err)
		require.Len(t, st.Lines, 1)
		assert.Equal(t, "9", st.Lines[0].ServerLineID)
		assert.Equal(t, 3, st.Lines[0].Quantity)
	})

	t.Run("RejectsNonPositiveQuantity", func(t *testing.T) {
		s := NewStore()
		_, err := s.AddLine(shirt(0))
		assert.ErrorIs(t, err, ErrInvalidQuantity)
		assert.True(t, s.Snapshot().IsEmpty())
	})

	t.Run("RejectsNegativePrice", func(t *testing.T) {
		s := NewStore()
		l := shirt(1)
		l.Price = -1
		_, err := s.AddLine(l)
		assert.ErrorIs(t, err, ErrInvalidPrice)
	})
}

func TestStore_UpdateQuantity(t *testing.T) {
	t.Run("SetsQuantity", func(t *testing.T) {
		s := NewStore(shirt(1))
		st, err := s.UpdateQuantity(shirt(1).Key(), 5)
		require.NoError(t, err)
		assert.Equal(t, 5, st.Lines[0].Quantity)
	})

	t.Run("ZeroRemoves", func(t *testing.T) {
		s := NewStore(shirt(1))
		st, err := s.UpdateQuantity(shirt(1).Key(), 0)
		require.NoError(t, err)
		assert.True(t, st.IsEmpty())
	})

	t.Run("ByServerLineID", func(t *testing.T) {
		l := shirt(1)
		l.ServerLineID = "abc"
		s := NewStore(l)

		st, err := s.UpdateQuantityByServerLineID("abc", 4)
		require.NoError(t, err)
		assert.Equal(t, 4, st.Lines[0].Quantity)
	})

	t.Run("UnknownKey", func(t *testing.T) {
		s := NewStore()
		_, err := s.UpdateQuantity("variant:9::", 2)
		assert.ErrorIs(t, err, ErrLineNotFound)
	})
}

func TestStore_Remove(t *testing.T) {
	l := shirt(2)
	l.ServerLineID = "5"
	s := NewStore(l, Line{ProductID: 2, Price: 10, Quantity: 1})

	st, err := s.RemoveByServerLineID("5")
	require.NoError(t, err)
	require.Len(t, st.Lines, 1)
	assert.Equal(t, int64(2), st.Lines[0].ProductID)

	_, err = s.RemoveLine(l.Key())
	assert.ErrorIs(t, err, ErrLineNotFound)
}

func TestStore_ReplaceCart(t *testing.T) {
	x := []Line{shirt(1)}
	a := []Line{{ProductID: 2, Price: 5, Quantity: 1}, {ProductID: 3, Price: 7, Quantity: 2}}
	b := []Line{{ProductID: 4, Price: 9, Quantity: 3}}

	t.Run("OverridingNotCumulative", func(t *testing.T) {
		s1 := NewStore(x...)
		s1.ReplaceCart(a)
		s1.ReplaceCart(b)

		s2 := NewStore(x...)
		s2.ReplaceCart(b)

		assert.Equal(t, s2.Snapshot(), s1.Snapshot())
	})

	t.Run("NormalizesServerPayload", func(t *testing.T) {
		s := NewStore()
		st := s.ReplaceCart([]Line{shirt(1), shirt(2), {ProductID: 8, Price: 1, Quantity: 0}})

		require.Len(t, st.Lines, 1)
		assert.Equal(t, 3, st.Lines[0].Quantity)
		assertInvariants(t, st)
	})
}

func TestStore_RollbackLaw(t *testing.T) {
	s := NewStore(shirt(2))
	snapshot := s.Snapshot()

	_, err := s.RemoveLine(shirt(2).Key())
	require.NoError(t, err)
	assert.True(t, s.Snapshot().IsEmpty())

	// simulated backend failure
	restored := s.Rollback(snapshot)

	assert.Equal(t, snapshot, restored)
	assert.Equal(t, snapshot, s.Snapshot())
}

func TestStore_SnapshotIsAValue(t *testing.T) {
	s := NewStore(shirt(1))
	snap := s.Snapshot()

	snap.Lines[0].Quantity = 99
	*snap.Lines[0].Color = "Green"

	line, ok := s.Find(shirt(1).Key())
	require.True(t, ok)
	assert.Equal(t, 1, line.Quantity)
	assert.Equal(t, "Red", *line.Color)
}

func TestStore_RandomSequencesKeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	colors := []string{"", "Red", "Blue"}
	sizes := []string{"", "M", "L"}

	randomLine := func() Line {
		l := Line{
			ProductID: int64(rng.Intn(3) + 1),
			Price:     int64(rng.Intn(5) * 1000),
			Quantity:  rng.Intn(4),
		}
		if c := colors[rng.Intn(len(colors))]; c != "" {
			l.Color = strPtr(c)
		}
		if sz := sizes[rng.Intn(len(sizes))]; sz != "" {
			l.Size = strPtr(sz)
		}
		return l
	}

	s := NewStore()
	for i := 0; i < 2000; i++ {
		lines := s.Lines()
		var k Key
		if len(lines) > 0 {
			k = lines[rng.Intn(len(lines))].Key()
		}

		switch rng.Intn(4) {
		case 0, 1:
			_, _ = s.AddLine(randomLine())
		case 2:
			if k != "" {
				_, _ = s.UpdateQuantity(k, rng.Intn(5)-1)
			}
		case 3:
			if k != "" {
				_, _ = s.RemoveLine(k)
			}
		}

		st := s.Snapshot()
		assertInvariants(t, st)
		assert.Equal(t, st.Total(), s.GetTotal())
	}
}

func TestReduce_IsPure(t *testing.T) {
	prev := State{Lines: []Line{shirt(1)}}
	_ = Reduce(prev, UpdateQuantity{Key: shirt(1).Key(), Quantity: 7})
	_ = Reduce(prev, Clear{})

	assert.Equal(t, 1, prev.Lines[0].Quantity)
}
