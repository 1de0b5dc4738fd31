// Package enrichment описывает контракты конвейера обогащения:
// виды выводимых атрибутов, ключи кэша и порты кэша и клиентов.
package enrichment

//go:generate mockgen -source=enrichment.go -destination=mocks/mocks.go -package=mocks ResponseCache

import (
	"context"
	"strings"
)

// Kind вид выводимого атрибута. Используется как пространство имён ключей кэша.
type Kind string

const (
	KindGender      Kind = "gender"
	KindAge         Kind = "age"
	KindNationality Kind = "nationality"
)

// Kinds все виды в фиксированном порядке.
var Kinds = []Kind{KindGender, KindAge, KindNationality}

// String возвращает строковое представление вида.
func (k Kind) String() string {
	return string(k)
}

// CacheKey строит ключ "<kind>:" + lowercase(displayName).
func CacheKey(kind Kind, displayName string) string {
	return string(kind) + ":" + strings.ToLower(displayName)
}

// ResponseCache общий кэш сырых ответов внешних сервисов.
// Реализации должны быть безопасны для конкурентного использования,
// а Set должен быть виден последующему Get с тем же ключом у любого вызывающего.
type ResponseCache interface {
	// Get возвращает сохранённый ответ. ok = false при промахе.
	Get(ctx context.Context, key string) (payload []byte, ok bool, err error)

	// Set сохраняет ответ.
	Set(ctx context.Context, key string, payload []byte) error
}

// Resolver один клиент вывода. ok = false означает "нет данных"
// (промах после всех попыток или пустой ответ), это не ошибка.
type Resolver[T any] interface {
	Fetch(ctx context.Context, displayName string) (value T, ok bool)
}

// ResolverFunc адаптер функции к Resolver.
type ResolverFunc[T any] func(ctx context.Context, displayName string) (T, bool)

// Fetch вызывает f.
func (f ResolverFunc[T]) Fetch(ctx context.Context, displayName string) (T, bool) {
	return f(ctx, displayName)
}
