package query

import (
	"context"
	"strings"

	"github.com/people-hub/peoplehub/internal/domain/person"
	"github.com/people-hub/peoplehub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PEOPLE QUERIES
// Чтение реестра: карточка человека, страница списка, поиск по фамилии
// и список друзей. Блокировок не берут.
// ══════════════════════════════════════════════════════════════════════════════

// PeopleHandler обслуживает все запросы чтения.
type PeopleHandler struct {
	repo person.Repository
}

// NewPeopleHandler создаёт PeopleHandler.
func NewPeopleHandler(repo person.Repository) *PeopleHandler {
	return &PeopleHandler{repo: repo}
}

// ─────────────────────────────────────────────────────────────────────────────
// Get
// ─────────────────────────────────────────────────────────────────────────────

// GetPerson возвращает полное представление с вложенными друзьями.
func (h *PeopleHandler) GetPerson(ctx context.Context, id person.ID) (*PersonDetailDTO, error) {
	if !id.IsValid() {
		return nil, person.ErrNotFound("GetPerson", id)
	}

	p, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var friends []*person.Person
	if len(p.Friends) > 0 {
		if friends, err = h.repo.Friends(ctx, id); err != nil {
			return nil, err
		}
	}

	dto := ToDetail(p, friends)
	return &dto, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// List
// ─────────────────────────────────────────────────────────────────────────────

// ListPeopleQuery параметры страницы.
type ListPeopleQuery struct {
	Limit  int
	Offset int
}

// ListPeopleResult страница списка.
type ListPeopleResult struct {
	People []PersonSummaryDTO
	Limit  int
	Offset int
}

// ListPeople возвращает страницу людей, упорядоченную по ID.
func (h *PeopleHandler) ListPeople(ctx context.Context, q ListPeopleQuery) (*ListPeopleResult, error) {
	opts := person.ListOptions{Limit: q.Limit, Offset: q.Offset}.Normalize()

	people, err := h.repo.List(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &ListPeopleResult{People: ToSummaries(people), Limit: opts.Limit, Offset: opts.Offset}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Search
// ─────────────────────────────────────────────────────────────────────────────

// SearchByLastName ищет точное совпадение фамилии без учёта регистра.
// Пустой запрос - ошибка валидации, пустой результат - NotFound.
func (h *PeopleHandler) SearchByLastName(ctx context.Context, lastName string) ([]PersonSummaryDTO, error) {
	lastName = strings.TrimSpace(lastName)
	if lastName == "" {
		return nil, shared.Validation("person", "Search", "the last_name parameter is required")
	}

	people, err := h.repo.SearchByLastName(ctx, lastName)
	if err != nil {
		return nil, err
	}
	if len(people) == 0 {
		return nil, shared.NotFound("person", "Search", "no person with last name %q", lastName)
	}
	return ToSummaries(people), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Friends
// ─────────────────────────────────────────────────────────────────────────────

// ListFriends возвращает краткие представления друзей.
func (h *PeopleHandler) ListFriends(ctx context.Context, id person.ID) ([]PersonSummaryDTO, error) {
	if !id.IsValid() {
		return nil, person.ErrNotFound("ListFriends", id)
	}

	friends, err := h.repo.Friends(ctx, id)
	if err != nil {
		return nil, err
	}
	return ToSummaries(friends), nil
}
