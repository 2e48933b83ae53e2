package app

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"channel_sync_service/internal/channel/domain"

	"github.com/cucumber/godog"
)

type behaviour struct {
	store   *MessageStore
	clock   *fakeClock
	typing  *TypingIndicator
	emitted []string
}

func (b *behaviour) anEmptyChannel() error {
	b.store = newStore()
	return nil
}

func (b *behaviour) messageArrives(id, user string, sec int) error {
	b.store.Upsert("c1", msgAt(id, user, sec))
	return nil
}

func (b *behaviour) messageIsDeleted(id string) error {
	if _, _, ok := b.store.Remove("c1", id); !ok {
		return fmt.Errorf("message %s not in store", id)
	}
	return nil
}

func (b *behaviour) theGroupingFlagsAre(want string) error {
	flags := grouping(b.store.Get("c1"))
	got := make([]string, len(flags))
	for i, f := range flags {
		got[i] = fmt.Sprint(f)
	}
	if strings.Join(got, ",") != want {
		return fmt.Errorf("expected grouping %s, got %s", want, strings.Join(got, ","))
	}
	return nil
}

func (b *behaviour) theLastMessageIs(id string) error {
	last, ok := b.store.LastMessage("c1")
	if !ok || last.ID != id {
		return fmt.Errorf("expected last message %s, got %q", id, last.ID)
	}
	return nil
}

func (b *behaviour) aTypingIndicator(ms int) error {
	b.clock = newFakeClock(t0)
	b.typing = NewTypingIndicator(b.clock, time.Duration(ms)*time.Millisecond, "c1", domain.UserRecord{ID: "me"}, func(evt domain.TypingIndicatorEvent) {
		b.emitted = append(b.emitted, string(evt.Type))
	})
	return nil
}

func (b *behaviour) theUserPressesKeys(n, gapMs int) error {
	for i := 0; i < n; i++ {
		b.typing.Keypress()
		b.clock.Advance(time.Duration(gapMs) * time.Millisecond)
	}
	return nil
}

func (b *behaviour) timePasses(ms int) error {
	b.clock.Advance(time.Duration(ms) * time.Millisecond)
	return nil
}

func (b *behaviour) theUserSends() error {
	b.typing.Send()
	return nil
}

func (b *behaviour) theEmittedEventsAre(want string) error {
	if got := strings.Join(b.emitted, ","); got != want {
		return fmt.Errorf("expected %s, got %s", want, got)
	}
	return nil
}

func (b *behaviour) noEventsWereEmitted() error {
	if len(b.emitted) != 0 {
		return fmt.Errorf("expected no events, got %v", b.emitted)
	}
	return nil
}

func InitializeSyncBehaviourScenario(ctx *godog.ScenarioContext) {
	b := &behaviour{}

	ctx.Step(`^an empty channel$`, b.anEmptyChannel)
	ctx.Step(`^message "([^"]*)" by user "([^"]*)" arrives at second (\d+)$`, b.messageArrives)
	ctx.Step(`^message "([^"]*)" is deleted$`, b.messageIsDeleted)
	ctx.Step(`^the grouping flags are "([^"]*)"$`, b.theGroupingFlagsAre)
	ctx.Step(`^the last message is "([^"]*)"$`, b.theLastMessageIs)

	ctx.Step(`^a typing indicator with a (\d+) ms debounce$`, b.aTypingIndicator)
	ctx.Step(`^the user presses a key (\d+) times (\d+) ms apart$`, b.theUserPressesKeys)
	ctx.Step(`^(\d+) ms pass$`, b.timePasses)
	ctx.Step(`^the user sends the message$`, b.theUserSends)
	ctx.Step(`^the emitted events are "([^"]*)"$`, b.theEmittedEventsAre)
	ctx.Step(`^no events were emitted$`, b.noEventsWereEmitted)
}

func TestSyncBehaviour(t *testing.T) {
	suite := godog.TestSuite{
		Name:                "channel sync behaviour",
		ScenarioInitializer: InitializeSyncBehaviourScenario,
		Options: &godog.Options{
			Format:   "progress",
			Paths:    []string{"features"},
			Strict:   true,
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("behaviour scenarios failed")
	}
}
