// Package query contains read operations (CQRS - Queries).
package query

import (
	"github.com/people-hub/peoplehub/internal/domain/person"
)

// ══════════════════════════════════════════════════════════════════════════════
// VIEWS
// Представления человека для API. Неизвестные выведенные атрибуты
// сериализуются как null.
// ══════════════════════════════════════════════════════════════════════════════

// PersonSummaryDTO - краткое представление для списков: друзья только по ID.
type PersonSummaryDTO struct {
	ID         int64  `json:"id"`
	FirstName  string `json:"first_name"`
	MiddleName string `json:"middle_name"`
	LastName   string `json:"last_name"`

	// ─────────────────────────────────────────────────────────────────────────
	// Обогащение
	// ─────────────────────────────────────────────────────────────────────────

	Gender      *string `json:"gender"`
	Age         *int    `json:"age"`
	Nationality *string `json:"nationality"`

	Emails  []string `json:"emails"`
	Friends []int64  `json:"friends"`
}

// PersonDetailDTO - полное представление: друзья вложены как краткие представления.
type PersonDetailDTO struct {
	ID         int64  `json:"id"`
	FirstName  string `json:"first_name"`
	MiddleName string `json:"middle_name"`
	LastName   string `json:"last_name"`

	Gender      *string `json:"gender"`
	Age         *int    `json:"age"`
	Nationality *string `json:"nationality"`

	Emails  []string           `json:"emails"`
	Friends []PersonSummaryDTO `json:"friends"`
}

// ToSummary строит краткое представление.
func ToSummary(p *person.Person) PersonSummaryDTO {
	friends := make([]int64, len(p.Friends))
	for i, id := range p.Friends {
		friends[i] = id.Int64()
	}
	return PersonSummaryDTO{
		ID:          p.ID.Int64(),
		FirstName:   p.FirstName,
		MiddleName:  p.MiddleName,
		LastName:    p.LastName,
		Gender:      optional(string(p.Gender)),
		Age:         p.Age,
		Nationality: optional(string(p.Nationality)),
		Emails:      emailsOf(p),
		Friends:     friends,
	}
}

// ToSummaries строит краткие представления для списка.
func ToSummaries(people []*person.Person) []PersonSummaryDTO {
	out := make([]PersonSummaryDTO, len(people))
	for i, p := range people {
		out[i] = ToSummary(p)
	}
	return out
}

// ToDetail строит полное представление из человека и его друзей.
func ToDetail(p *person.Person, friends []*person.Person) PersonDetailDTO {
	return PersonDetailDTO{
		ID:          p.ID.Int64(),
		FirstName:   p.FirstName,
		MiddleName:  p.MiddleName,
		LastName:    p.LastName,
		Gender:      optional(string(p.Gender)),
		Age:         p.Age,
		Nationality: optional(string(p.Nationality)),
		Emails:      emailsOf(p),
		Friends:     ToSummaries(friends),
	}
}

func emailsOf(p *person.Person) []string {
	if p.Emails == nil {
		return []string{}
	}
	return p.Emails
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
