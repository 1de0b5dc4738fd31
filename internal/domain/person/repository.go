package person

//go:generate mockgen -source=repository.go -destination=mocks/mocks.go -package=mocks EnrichmentScheduler

import (
	"context"

	"github.com/people-hub/peoplehub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Контракт хранилища. Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// ListOptions параметры пагинации.
type ListOptions struct {
	Limit  int
	Offset int
}

// Normalize подставляет значения по умолчанию.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 || o.Limit > 500 {
		o.Limit = 50
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// Repository операции чтения и точка входа в транзакцию.
type Repository interface {
	// ─────────────────────────────────────────────────────────────────────────
	// Queries
	// ─────────────────────────────────────────────────────────────────────────

	// GetByID возвращает человека вместе с адресами и друзьями.
	// Возвращает ошибку вида shared.ErrNotFound, если его нет.
	GetByID(ctx context.Context, id ID) (*Person, error)

	// List возвращает страницу людей, упорядоченную по ID.
	List(ctx context.Context, opts ListOptions) ([]*Person, error)

	// SearchByLastName ищет точное совпадение фамилии без учёта регистра.
	SearchByLastName(ctx context.Context, lastName string) ([]*Person, error)

	// Friends возвращает друзей человека.
	Friends(ctx context.Context, id ID) ([]*Person, error)

	// ─────────────────────────────────────────────────────────────────────────
	// Transactions
	// ─────────────────────────────────────────────────────────────────────────

	// WithinTx выполняет fn в одной транзакции. Ошибка fn откатывает транзакцию.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx операции, доступные внутри транзакции.
type Tx interface {
	// Create вставляет человека и заполняет ID и временные метки.
	// Дубликат ФИО возвращает ошибку вида shared.ErrConflict.
	Create(ctx context.Context, p *Person) error

	// UpdateNames сохраняет только ФИО.
	UpdateNames(ctx context.Context, p *Person) error

	// GetByID читает человека без блокировки.
	GetByID(ctx context.Context, id ID) (*Person, error)

	// Lock берёт эксклюзивные блокировки строк в порядке возрастания ID
	// и возвращает найденные ID. Отсутствующие просто не попадают в результат.
	Lock(ctx context.Context, ids ...ID) ([]ID, error)

	// GetForUpdate блокирует строку и перечитывает человека под блокировкой.
	GetForUpdate(ctx context.Context, id ID) (*Person, error)

	// SaveEnrichment перезаписывает gender, age и nationality.
	SaveEnrichment(ctx context.Context, id ID, e Enrichment) error

	// EmailsTaken возвращает адреса из списка, принадлежащие кому-то кроме exclude.
	// exclude = 0 проверяет всех.
	EmailsTaken(ctx context.Context, emails []string, exclude ID) ([]string, error)

	// ReplaceEmails удаляет все адреса человека и вставляет новый набор.
	ReplaceEmails(ctx context.Context, id ID, emails []string) error

	// HasFriend проверяет ребро id → friendID.
	HasFriend(ctx context.Context, id, friendID ID) (bool, error)

	// AddFriendship вставляет оба направления.
	AddFriendship(ctx context.Context, a, b ID) error

	// RemoveFriendship удаляет оба направления.
	RemoveFriendship(ctx context.Context, a, b ID) error
}

// ══════════════════════════════════════════════════════════════════════════════
// POST-COMMIT HOOK
// ══════════════════════════════════════════════════════════════════════════════

// EnrichmentScheduler вызывается сценарием создания после фиксации транзакции.
type EnrichmentScheduler interface {
	ScheduleEnrichment(ctx context.Context, id ID) error
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// ErrNotFound ошибка для отсутствующего человека.
func ErrNotFound(op string, id ID) error {
	return shared.NotFound("person", op, "person %d not found", id)
}

// ErrDuplicateName ошибка для повторяющегося ФИО.
func ErrDuplicateName(op string) error {
	return shared.Conflict("person", op, "a person with this name already exists")
}
