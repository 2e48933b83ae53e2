package app

import (
	"testing"
	"time"

	"channel_sync_service/internal/channel/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToggleReaction_PairsRestoreOriginal(t *testing.T) {
	cases := []struct {
		name string
		in   domain.Reactions
		key  string
		user string
	}{
		{name: "nil map", in: nil, key: "+1", user: "u1"},
		{name: "other users keep their entry", in: domain.Reactions{"+1": {{UserID: "u2", CreatedAt: t0}}}, key: "+1", user: "u1"},
		{name: "already reacted", in: domain.Reactions{"+1": {{UserID: "u1", CreatedAt: t0}}}, key: "+1", user: "u1"},
		{name: "different key", in: domain.Reactions{"heart": {{UserID: "u1", CreatedAt: t0}}}, key: "+1", user: "u1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			orig := tc.in.Clone()
			once := ToggleReaction(tc.in, tc.key, tc.user, t0.Add(time.Second))
			twice := ToggleReaction(once, tc.key, tc.user, t0.Add(2*time.Second))

			assert.NotEqual(t, orig.Has(tc.key, tc.user), once.Has(tc.key, tc.user))
			if orig.Has(tc.key, tc.user) {
				// removed then re-added: only the timestamp moves
				assert.True(t, twice.Has(tc.key, tc.user))
				assert.Len(t, twice[tc.key], len(orig[tc.key]))
			} else {
				assert.Equal(t, orig, twice)
			}
			assert.Equal(t, orig, tc.in, "input must not be modified")
		})
	}
}

func TestToggleReaction_OneEntryPerUser(t *testing.T) {
	r := ToggleReaction(nil, "+1", "u1", t0)
	r = ToggleReaction(r, "+1", "u2", t0)
	r = ToggleReaction(r, "heart", "u1", t0)

	assert.Len(t, r["+1"], 2)
	assert.Len(t, r["heart"], 1)

	r = ToggleReaction(r, "+1", "u1", t0)
	assert.Equal(t, []domain.ReactionEntry{{UserID: "u2", CreatedAt: t0}}, r["+1"])
}

func TestReactionStore_ToggleOnStoredMessage(t *testing.T) {
	s := newStore()
	s.Upsert("c1", msgAt("A", "u1", 0))
	rs := NewReactionStore(s)

	added, ok := rs.Toggle("c1", "A", "+1", "me", t0)
	require.True(t, ok)
	assert.True(t, added)

	added, ok = rs.Toggle("c1", "A", "+1", "me", t0)
	require.True(t, ok)
	assert.False(t, added)
	r, _ := rs.Get("c1", "A")
	assert.Empty(t, r)

	_, ok = rs.Toggle("c1", "missing", "+1", "me", t0)
	assert.False(t, ok)
}

func TestPinStore_ApplyAndFlag(t *testing.T) {
	s := newStore()
	s.Upsert("c1", msgAt("A", "u1", 0))
	pins := NewPinStore(s)
	msg, _ := s.Find("c1", "A")

	assert.True(t, pins.Apply(domain.PinnedMessageEvent{ActionType: domain.ActionPin, Message: msg, ActorID: "me", At: t0}))
	assert.True(t, pins.IsPinned("c1", "A"))
	stored, _ := s.Find("c1", "A")
	assert.True(t, stored.IsPinned())

	// echo of our own pin
	assert.False(t, pins.Apply(domain.PinnedMessageEvent{ActionType: domain.ActionPin, Message: msg, At: t0}))
	assert.Len(t, pins.List("c1"), 1)

	assert.True(t, pins.Apply(domain.PinnedMessageEvent{ActionType: domain.ActionUnpin, Message: msg, At: t0}))
	assert.False(t, pins.IsPinned("c1", "A"))
	stored, _ = s.Find("c1", "A")
	assert.False(t, stored.IsPinned())
}

func TestPinStore_LoadReplaces(t *testing.T) {
	pins := NewPinStore(newStore())
	pins.Load("c1", []domain.AggregateEntry{{ChannelID: "c1", MessageID: "A"}, {ChannelID: "c1", MessageID: "B"}})
	pins.Load("c1", []domain.AggregateEntry{{ChannelID: "c1", MessageID: "B"}})

	got := pins.List("c1")
	require.Len(t, got, 1)
	assert.Equal(t, "B", got[0].MessageID)

	pins.Clear("c1")
	assert.Empty(t, pins.List("c1"))
}

func TestBookmarkStore_PagingAndFilter(t *testing.T) {
	b := NewBookmarkStore()
	offset, more := b.Cursor()
	assert.Equal(t, 0, offset)
	assert.True(t, more)

	b.MergePage(0, domain.BookmarkPage{
		Entries: []domain.AggregateEntry{{MessageID: "A"}, {MessageID: "B", Archived: true}},
		Total:   3,
		HasMore: true,
	})
	b.MergePage(2, domain.BookmarkPage{
		Entries: []domain.AggregateEntry{{MessageID: "C"}},
		Total:   3,
	})

	offset, more = b.Cursor()
	assert.Equal(t, 3, offset)
	assert.False(t, more)

	archived := true
	assert.Len(t, b.List(nil), 3)
	assert.Len(t, b.List(&archived), 1)

	assert.False(t, b.Add(domain.AggregateEntry{MessageID: "A"}))
	_, ok := b.Remove("A")
	assert.True(t, ok)
	assert.False(t, b.Has("A"))
}

func TestPresenceIndex_KnownUsersOnly(t *testing.T) {
	users := NewUserDirectory(new(MockUserFetcher))
	users.Upsert(domain.UserRecord{ID: "u1", DisplayName: "Ann"})
	p := NewPresenceIndex(users, time.Minute)

	changed, known := p.ApplyPresence(domain.PresenceEvent{ChannelID: "c1", UserID: "u1", Status: domain.StatusOnline, At: t0})
	assert.True(t, changed)
	assert.True(t, known)

	_, known = p.ApplyPresence(domain.PresenceEvent{ChannelID: "c1", UserID: "stranger", Status: domain.StatusOnline, At: t0})
	assert.False(t, known)
	_, found := users.Lookup("stranger")
	assert.False(t, found, "presence must not create user records")

	online := p.Online("c1")
	require.Len(t, online, 1)
	assert.Equal(t, "u1", online[0].ID)
	assert.Equal(t, domain.StatusOnline, online[0].Status)
}

func TestPresenceIndex_TypingAndExpiry(t *testing.T) {
	users := NewUserDirectory(new(MockUserFetcher))
	users.Upsert(domain.UserRecord{ID: "u1", DisplayName: "Ann"})
	users.Upsert(domain.UserRecord{ID: "u2", DisplayName: "Bo"})
	p := NewPresenceIndex(users, time.Minute)

	p.ApplyTyping(domain.TypingIndicatorEvent{Type: domain.StartTyping, ActiveChannelID: "c1", User: domain.UserRecord{ID: "u1"}}, t0)
	p.ApplyPresence(domain.PresenceEvent{ChannelID: "c1", UserID: "u2", Status: domain.StatusOnline, At: t0.Add(50 * time.Second)})

	assert.Len(t, p.Typing("c1"), 1)
	assert.Len(t, p.Online("c1"), 2)

	changed := p.Expire(t0.Add(90 * time.Second))
	assert.Equal(t, []string{"c1"}, changed)
	assert.Empty(t, p.Typing("c1"))
	online := p.Online("c1")
	require.Len(t, online, 1)
	assert.Equal(t, "u2", online[0].ID)

	u1, _ := users.Lookup("u1")
	assert.Equal(t, domain.StatusOffline, u1.Status)

	p.ApplyTyping(domain.TypingIndicatorEvent{Type: domain.StopTyping, ActiveChannelID: "c1", User: domain.UserRecord{ID: "u2"}}, t0)
	assert.Empty(t, p.Typing("c1"))
}

func TestPresenceIndex_OfflineRemoves(t *testing.T) {
	users := NewUserDirectory(new(MockUserFetcher))
	users.Upsert(domain.UserRecord{ID: "u1"})
	p := NewPresenceIndex(users, time.Minute)

	p.ApplyPresence(domain.PresenceEvent{ChannelID: "c1", UserID: "u1", Status: domain.StatusOnline, At: t0})
	changed, _ := p.ApplyPresence(domain.PresenceEvent{ChannelID: "c1", UserID: "u1", Status: domain.StatusOffline, At: t0})
	assert.True(t, changed)
	assert.Empty(t, p.Online("c1"))
}

func TestChannelRegistry_Lifecycle(t *testing.T) {
	r := NewChannelRegistry()
	ch := r.Register("h1", "w1")
	assert.Equal(t, "h1", ch.ID)

	heading, ok := r.HeadingFor(ch.ID)
	require.True(t, ok)
	assert.Equal(t, "h1", heading)

	r.Touch(ch.ID, t0)
	r.Touch(ch.ID, t0.Add(-time.Hour))
	got, _ := r.ChannelFor("h1")
	assert.Equal(t, t0, got.LastActivityAt)

	assert.True(t, r.Orphan("h1"))
	got, _ = r.ChannelFor("h1")
	assert.True(t, got.Orphaned)

	// heading restored
	assert.False(t, r.Register("h1", "w1").Orphaned)
	assert.False(t, r.Orphan("missing"))
}
