package enrichment

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/people-hub/peoplehub/internal/domain/enrichment"
	"github.com/people-hub/peoplehub/internal/domain/person"
	"github.com/people-hub/peoplehub/internal/infrastructure/persistence/memory"
	"github.com/people-hub/peoplehub/internal/metrics"
)

func fixedResolvers(g person.Gender, age int, country person.CountryCode) Resolvers {
	return Resolvers{
		Gender: domain.ResolverFunc[person.Gender](func(context.Context, string) (person.Gender, bool) {
			return g, g.IsKnown()
		}),
		Age: domain.ResolverFunc[int](func(context.Context, string) (int, bool) {
			return age, age >= 0
		}),
		Nationality: domain.ResolverFunc[person.CountryCode](func(context.Context, string) (person.CountryCode, bool) {
			return country, country != ""
		}),
	}
}

func seed(t *testing.T, store *memory.Store, last, first, middle string, emails ...string) *person.Person {
	t.Helper()
	p, err := person.New(last, first, middle, emails)
	require.NoError(t, err)
	require.NoError(t, store.WithinTx(context.Background(), func(ctx context.Context, tx person.Tx) error {
		return tx.Create(ctx, p)
	}))
	return p
}

func TestCoordinator_EnrichWritesExactlyThreeFields(t *testing.T) {
	store := memory.NewStore()
	p := seed(t, store, "Ivanov", "Ivan", "Ivanovich", "ivan@example.com")
	m := metrics.New(prometheus.NewRegistry())

	var seenName string
	resolvers := fixedResolvers(person.GenderMale, 42, "RU")
	resolvers.Gender = domain.ResolverFunc[person.Gender](func(_ context.Context, name string) (person.Gender, bool) {
		seenName = name
		return person.GenderMale, true
	})

	c := NewCoordinator(store, resolvers, nil, m)
	require.NoError(t, c.Enrich(context.Background(), p.ID))

	got, err := store.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ivanov Ivan Ivanovich", seenName)
	assert.Equal(t, person.GenderMale, got.Gender)
	require.NotNil(t, got.Age)
	assert.Equal(t, 42, *got.Age)
	assert.Equal(t, person.CountryCode("RU"), got.Nationality)
	assert.Equal(t, "Ivanov", got.LastName)
	assert.Equal(t, []string{"ivan@example.com"}, got.Emails)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EnrichmentRuns.WithLabelValues("enriched")))
}

func TestCoordinator_UnknownFieldsStayUnknown(t *testing.T) {
	store := memory.NewStore()
	p := seed(t, store, "Nobody", "Known", "")

	c := NewCoordinator(store, fixedResolvers(person.GenderUnknown, -1, ""), nil, nil)
	require.NoError(t, c.Enrich(context.Background(), p.ID))

	got, err := store.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, person.Enrichment{}, got.Enrichment())
}

func TestCoordinator_IsIdempotent(t *testing.T) {
	store := memory.NewStore()
	p := seed(t, store, "Smith", "John", "")
	c := NewCoordinator(store, fixedResolvers(person.GenderMale, 30, "US"), nil, nil)

	require.NoError(t, c.Enrich(context.Background(), p.ID))
	first, _ := store.GetByID(context.Background(), p.ID)
	require.NoError(t, c.Enrich(context.Background(), p.ID))
	second, _ := store.GetByID(context.Background(), p.ID)

	assert.True(t, first.Enrichment().Equal(second.Enrichment()))
}

func TestCoordinator_MissingPersonIsNoop(t *testing.T) {
	store := memory.NewStore()
	m := metrics.New(prometheus.NewRegistry())

	var calls int32
	resolvers := fixedResolvers(person.GenderMale, 1, "FR")
	resolvers.Age = domain.ResolverFunc[int](func(context.Context, string) (int, bool) {
		atomic.AddInt32(&calls, 1)
		return 1, true
	})

	c := NewCoordinator(store, resolvers, nil, m)
	require.NoError(t, c.Enrich(context.Background(), 404))
	assert.Zero(t, atomic.LoadInt32(&calls))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EnrichmentRuns.WithLabelValues("missing")))
}

func TestCoordinator_CommitFailureIsReturned(t *testing.T) {
	store := memory.NewStore()
	p := seed(t, store, "Fault", "Injected", "")
	boom := errors.New("disk full")
	store.InjectFault("SaveEnrichment", boom)
	m := metrics.New(prometheus.NewRegistry())

	c := NewCoordinator(store, fixedResolvers(person.GenderFemale, 20, "DE"), nil, m)
	err := c.Enrich(context.Background(), p.ID)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EnrichmentRuns.WithLabelValues("failed")))

	got, _ := store.GetByID(context.Background(), p.ID)
	assert.Equal(t, person.Enrichment{}, got.Enrichment())
}

func TestCoordinator_ResolvesConcurrently(t *testing.T) {
	store := memory.NewStore()
	p := seed(t, store, "Slow", "Services", "")

	const delay = 80 * time.Millisecond
	var inFlight, peak int32
	track := func() {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		time.Sleep(delay)
		atomic.AddInt32(&inFlight, -1)
	}

	c := NewCoordinator(store, Resolvers{
		Gender: domain.ResolverFunc[person.Gender](func(context.Context, string) (person.Gender, bool) {
			track()
			return person.GenderMale, true
		}),
		Age: domain.ResolverFunc[int](func(context.Context, string) (int, bool) {
			track()
			return 50, true
		}),
		Nationality: domain.ResolverFunc[person.CountryCode](func(context.Context, string) (person.CountryCode, bool) {
			track()
			return "KZ", true
		}),
	}, nil, nil)

	require.NoError(t, c.Enrich(context.Background(), p.ID))
	assert.Equal(t, int32(3), atomic.LoadInt32(&peak))
}

// Concurrent runs for many people and for the same person must all finish
// and leave every row fully enriched.
func TestCoordinator_ConcurrentRunsDoNotDeadlock(t *testing.T) {
	store := memory.NewStore()
	var ids []person.ID
	for _, name := range []string{"A", "B", "C", "D", "E"} {
		ids = append(ids, seed(t, store, name, "Person", "").ID)
	}
	c := NewCoordinator(store, fixedResolvers(person.GenderFemale, 25, "SE"), nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		for _, id := range ids {
			wg.Add(1)
			go func(id person.ID) {
				defer wg.Done()
				assert.NoError(t, c.Enrich(context.Background(), id))
			}(id)
		}
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("enrichment runs did not finish")
	}

	for _, id := range ids {
		got, err := store.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, person.GenderFemale, got.Gender)
		assert.Equal(t, person.CountryCode("SE"), got.Nationality)
	}
}

func TestCommit_PreservesConcurrentNameEdit(t *testing.T) {
	store := memory.NewStore()
	p := seed(t, store, "Old", "Name", "", "old@example.com")
	ctx := context.Background()

	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, tx person.Tx) error {
		current, err := tx.GetForUpdate(ctx, p.ID)
		if err != nil {
			return err
		}
		if err := current.Rename("New", "Name", ""); err != nil {
			return err
		}
		return tx.UpdateNames(ctx, current)
	}))

	committed, err := Commit(ctx, store, p.ID, person.Enrichment{Gender: person.GenderMale, Age: person.AgeOf(60)})
	require.NoError(t, err)
	assert.True(t, committed)

	got, _ := store.GetByID(ctx, p.ID)
	assert.Equal(t, "New", got.LastName)
	assert.Equal(t, []string{"old@example.com"}, got.Emails)
	assert.Equal(t, person.GenderMale, got.Gender)

	committed, err = Commit(ctx, store, 999, person.Enrichment{})
	require.NoError(t, err)
	assert.False(t, committed)
}
