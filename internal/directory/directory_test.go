package directory

import (
	"testing"
	"time"

	"github.com/npezzotti/go-chatclient/internal/types"
	"github.com/stretchr/testify/assert"
)

func rooms() []types.Room {
	return []types.Room{
		{Id: "a", Name: "alpha", JoinCode: "AAAA"},
		{Id: "b", Name: "bravo"},
	}
}

func TestReplace(t *testing.T) {
	d := New()
	d.Replace(rooms())
	assert.Equal(t, 2, d.Len())

	now := time.Now().UTC()
	d.MarkUnread("a")
	d.Touch("a", now)

	d.Replace([]types.Room{
		{Id: "a", Name: "alpha renamed", LastActivity: now.Add(-time.Minute)},
		{Id: "c", Name: "charlie", HasUnread: true},
	})

	a, ok := d.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "alpha renamed", a.Name, "expected server fields to be applied")
	assert.True(t, a.HasUnread, "expected local unread flag to survive a reload")
	assert.True(t, a.LastActivity.Equal(now), "expected later local activity to win")

	_, ok = d.Get("b")
	assert.False(t, ok, "expected rooms missing from the reload to be dropped")

	c, _ := d.Get("c")
	assert.True(t, c.HasUnread, "expected server unread flag to be kept")
}

func TestMarkReadUnread(t *testing.T) {
	d := New()
	d.Replace(rooms())

	assert.True(t, d.MarkUnread("a"))
	a, _ := d.Get("a")
	assert.True(t, a.HasUnread)

	b, _ := d.Get("b")
	assert.False(t, b.HasUnread, "expected other rooms to be untouched")

	assert.True(t, d.MarkRead("a"))
	a, _ = d.Get("a")
	assert.False(t, a.HasUnread)

	assert.False(t, d.MarkRead("missing"))
	assert.False(t, d.MarkUnread("missing"))
}

func TestTouch(t *testing.T) {
	tcases := []struct {
		name     string
		initial  time.Time
		touch    time.Time
		expected time.Time
	}{
		{
			name:     "moves forward",
			initial:  time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC),
			touch:    time.Date(2025, 1, 1, 11, 0, 0, 0, time.UTC),
			expected: time.Date(2025, 1, 1, 11, 0, 0, 0, time.UTC),
		},
		{
			name:     "ignores older timestamp",
			initial:  time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC),
			touch:    time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC),
			expected: time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			d := New()
			d.Replace([]types.Room{{Id: "a", LastActivity: tc.initial}})

			assert.True(t, d.Touch("a", tc.touch))
			a, _ := d.Get("a")
			assert.True(t, tc.expected.Equal(a.LastActivity), "expected %v, got %v", tc.expected, a.LastActivity)
		})
	}

	t.Run("zero timestamp means now", func(t *testing.T) {
		d := New()
		d.Replace([]types.Room{{Id: "a"}})
		d.Touch("a", time.Time{})
		a, _ := d.Get("a")
		assert.WithinDuration(t, time.Now(), a.LastActivity, time.Second)
	})

	t.Run("unknown room", func(t *testing.T) {
		assert.False(t, New().Touch("missing", time.Now()))
	})
}

func TestUpsert(t *testing.T) {
	d := New()
	d.Replace(rooms())
	d.MarkUnread("b")

	d.Upsert(types.Room{Id: "c", Name: "charlie"})
	assert.Equal(t, 3, d.Len())
	snap := d.Snapshot()
	assert.Equal(t, "c", snap[2].Id, "expected new room to be appended")

	d.Upsert(types.Room{Id: "b", Name: "bravo 2", MemberCount: 5})
	b, _ := d.Get("b")
	assert.Equal(t, "bravo 2", b.Name)
	assert.Equal(t, 5, b.MemberCount)
	assert.True(t, b.HasUnread, "expected local unread state to be kept on update")
	assert.Equal(t, 3, d.Len())
}

func TestFindByJoinCode(t *testing.T) {
	d := New()
	d.Replace(rooms())

	r, ok := d.FindByJoinCode("AAAA")
	assert.True(t, ok)
	assert.Equal(t, "a", r.Id)

	_, ok = d.FindByJoinCode("")
	assert.False(t, ok, "expected empty code never to match rooms without a code")

	_, ok = d.FindByJoinCode("ZZZZ")
	assert.False(t, ok)
}

func TestSnapshotIsACopy(t *testing.T) {
	d := New()
	d.Replace(rooms())

	snap := d.Snapshot()
	snap[0].Name = "mutated"

	a, _ := d.Get("a")
	assert.Equal(t, "alpha", a.Name)

	d.Reset()
	assert.Empty(t, d.Snapshot())
}
