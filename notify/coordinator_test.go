package notify

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chat-sync/domain"
	"chat-sync/domain/event"
)

var (
	normalShell = Shell{Title: "chat", Icon: "icon.svg"}
	alertShell  = Shell{Title: "chat — new messages", Icon: "icon-alert.svg"}
)

type flipSink struct {
	mu    sync.Mutex
	flips []bool
}

func (f *flipSink) Consume(e event.DomainEvent) {
	if u, ok := e.(event.UnseenChanged); ok {
		f.mu.Lock()
		f.flips = append(f.flips, u.HasUnseen)
		f.mu.Unlock()
	}
}

func newCoordinator() (*Coordinator, *flipSink) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewCoordinator(log, "me@example.com", normalShell, alertShell)
	sink := &flipSink{}
	c.AddSink(sink)
	return c, sink
}

func added(author string, at time.Time, replayed bool) event.MessageAdded {
	return event.MessageAdded{
		Message:  domain.Message{AuthorID: author, CreatedAt: at},
		Replayed: replayed,
	}
}

func TestCoordinator_BackgroundArrivalFlipsUnseen(t *testing.T) {
	req := require.New(t)
	c, sink := newCoordinator()
	base := time.Now()

	// Given a backgrounded viewport with a watermark
	c.SetForeground(true, base)
	c.SetForeground(false, base)

	c.Consume(added("peer@example.com", base.Add(time.Second), false))

	req.True(c.HasUnseen())
	req.Equal(alertShell, c.Shell())
	req.Equal([]bool{true}, sink.flips)

	// A second unseen message does not flip again
	c.Consume(added("peer@example.com", base.Add(2*time.Second), false))
	req.Equal([]bool{true}, sink.flips)
}

func TestCoordinator_ForegroundArrivalOnlyAdvancesWatermark(t *testing.T) {
	req := require.New(t)
	c, _ := newCoordinator()
	at := time.Now()

	c.Consume(added("peer@example.com", at, false))

	req.False(c.HasUnseen())
	req.Equal(normalShell, c.Shell())
	req.Equal(at, c.LastSeen())
}

func TestCoordinator_OwnMessageNeverAlerts(t *testing.T) {
	req := require.New(t)
	c, sink := newCoordinator()
	base := time.Now()

	c.SetForeground(false, base)

	// The viewer's just-sent message arrives while backgrounded
	c.Consume(added("me@example.com", base.Add(time.Second), false))

	req.False(c.HasUnseen())
	req.Empty(sink.flips)
	// But the watermark moved, so an echo of it cannot alert later
	req.Equal(base.Add(time.Second), c.LastSeen())
}

func TestCoordinator_ReplayedHistoryNeverAlerts(t *testing.T) {
	req := require.New(t)
	c, _ := newCoordinator()
	base := time.Now()

	c.SetForeground(false, base)

	// A reconnect replays newer history; none of it is "new to the user"
	c.Consume(added("peer@example.com", base.Add(time.Minute), true))
	req.False(c.HasUnseen())
}

func TestCoordinator_StaleMessageDoesNotAlert(t *testing.T) {
	req := require.New(t)
	c, _ := newCoordinator()
	base := time.Now()

	c.SetForeground(false, base)

	c.Consume(added("peer@example.com", base.Add(-time.Minute), false))
	req.False(c.HasUnseen())
}

func TestCoordinator_ForegroundingClears(t *testing.T) {
	req := require.New(t)
	c, sink := newCoordinator()
	base := time.Now()

	c.SetForeground(false, base)
	newest := base.Add(time.Second)
	c.Consume(added("peer@example.com", newest, false))
	req.True(c.HasUnseen())

	// When the viewport returns to the foreground
	c.SetForeground(true, newest)

	req.False(c.HasUnseen())
	req.Equal(normalShell, c.Shell())
	req.Equal([]bool{true, false}, sink.flips)

	// The cleared message cannot re-alert on a later background pass
	c.SetForeground(false, newest)
	c.Consume(added("peer@example.com", newest, false))
	req.False(c.HasUnseen())
}
