package enrichment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "gender:ivanov ivan", CacheKey(KindGender, "Ivanov Ivan"))
	assert.Equal(t, "age:smith john", CacheKey(KindAge, "SMITH John"))
	assert.Equal(t, "nationality:", CacheKey(KindNationality, ""))
}

func TestResolverFunc(t *testing.T) {
	var r Resolver[int] = ResolverFunc[int](func(ctx context.Context, name string) (int, bool) {
		return len(name), name != ""
	})

	v, ok := r.Fetch(context.Background(), "abc")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
}
