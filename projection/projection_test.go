package projection

import (
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"client-portal/domain"
	"client-portal/runtime"
)

var at = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func deliverable(id string, offset time.Duration) domain.Deliverable {
	return domain.Deliverable{ID: id, ProjectID: "p1", Name: id, Kind: domain.DeliverableURL, CreatedAt: at.Add(offset)}
}

func TestProjection_Apply_And_List(t *testing.T) {
	req := require.New(t)
	p := New[domain.Deliverable](logs.GetLoggerFromLevel(slog.LevelDebug), domain.TableDeliverables)

	p.Apply(deliverable("b", time.Minute))
	p.Apply(deliverable("a", 0))
	updated := deliverable("b", time.Minute)
	updated.Name = "renamed"
	p.Apply(updated)

	rows := p.List()
	req.Len(rows, 2)
	req.Equal("a", rows[0].ID)
	req.Equal("renamed", rows[1].Name)

	p.Remove("a")
	_, ok := p.Get("a")
	req.False(ok)
	req.Equal(1, p.Len())
}

func TestProjection_Load_Until_Invalidated(t *testing.T) {
	req := require.New(t)
	p := New[domain.Deliverable](slog.Default(), domain.TableDeliverables)

	req.True(p.Load("p1", []domain.Deliverable{deliverable("a", 0), deliverable("b", time.Second)}, p.Generation()))
	req.True(p.Loaded("p1"))
	req.False(p.Loaded("p2"))
	req.Equal(2, p.Len())

	p.Invalidate()
	req.False(p.Loaded("p1"))
	req.Zero(p.Len())
}

func TestProjection_Load_Rejects_Rows_Read_Before_Invalidation(t *testing.T) {
	req := require.New(t)
	p := New[domain.Deliverable](slog.Default(), domain.TableDeliverables)

	// Given rows selected at the current generation
	gen := p.Generation()
	stale := []domain.Deliverable{deliverable("a", 0)}

	// When an insert event lands before they are loaded
	p.Consume(domain.ChangeEvent{Table: domain.TableDeliverables, EventType: domain.EventInsert, ID: "b"})

	// Then the stale rows are rejected and the scope stays unloaded
	req.False(p.Load("p1", stale, gen))
	req.False(p.Loaded("p1"))
	req.Zero(p.Len())
	_, loaded := p.ListLoaded("p1")
	req.False(loaded)

	// A fresh read at the new generation is accepted
	req.True(p.Load("p1", []domain.Deliverable{deliverable("a", 0), deliverable("b", time.Second)}, p.Generation()))
	rows, loaded := p.ListLoaded("p1")
	req.True(loaded)
	req.Len(rows, 2)
	req.Equal("a", rows[0].ID)
}

func TestProjection_Consume(t *testing.T) {
	tests := []struct {
		name        string
		evt         domain.ChangeEvent
		invalidated bool
	}{
		{"insert always conflicts", domain.ChangeEvent{Table: domain.TableDeliverables, EventType: domain.EventInsert, ID: "new"}, true},
		{"update of a projected row", domain.ChangeEvent{Table: domain.TableDeliverables, EventType: domain.EventUpdate, ID: "a"}, true},
		{"delete of a projected row", domain.ChangeEvent{Table: domain.TableDeliverables, EventType: domain.EventDelete, ID: "a"}, true},
		{"update of an unknown row", domain.ChangeEvent{Table: domain.TableDeliverables, EventType: domain.EventUpdate, ID: "zz"}, false},
		{"other relation", domain.ChangeEvent{Table: domain.TableProjects, EventType: domain.EventInsert, ID: "a"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			p := New[domain.Deliverable](slog.Default(), domain.TableDeliverables)
			p.Apply(deliverable("a", 0))

			p.Consume(tt.evt)

			req.Equal(tt.invalidated, p.Len() == 0)
		})
	}
}

func TestProjection_Attach_Follows_Change_Feed(t *testing.T) {
	req := require.New(t)
	log := slog.Default()
	registry := runtime.NewRegistry(log)
	p := New[domain.Deliverable](log, domain.TableDeliverables)
	sub := p.Attach(registry)

	// Given a projected row
	p.Apply(deliverable("a", 0))

	// When the row is deleted elsewhere
	payload, err := json.Marshal(domain.ChangeEvent{Table: domain.TableDeliverables, EventType: domain.EventDelete, ID: "a"})
	req.NoError(err)
	registry.Publish(domain.ChangeChannel(domain.TableDeliverables), string(payload))

	// Then the projection is dropped
	req.Zero(p.Len())

	// And once detached it no longer follows the feed
	sub.Unsubscribe()
	p.Apply(deliverable("b", 0))
	registry.Publish(domain.ChangeChannel(domain.TableDeliverables), string(payload))
	registry.Publish(domain.ChangeChannel(domain.TableDeliverables), "not json")
	req.Equal(1, p.Len())
}
