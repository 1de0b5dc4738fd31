// Package person содержит доменную модель человека из реестра:
// имя, адреса электронной почты, друзья и выведенные атрибуты.
// Здесь нет внешних зависимостей.
package person

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/people-hub/peoplehub/internal/domain/shared"
)

// MaxNameLength ограничивает длину каждой части имени.
const MaxNameLength = 100

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// ID идентификатор человека (последовательность в БД).
type ID int64

// Int64 возвращает числовое значение.
func (id ID) Int64() int64 {
	return int64(id)
}

// IsValid проверяет, что ID положительный.
func (id ID) IsValid() bool {
	return id > 0
}

// Gender пол, выведенный по имени. Пустое значение означает "неизвестно".
type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderUnknown Gender = ""
)

// ParseGender разбирает значение из ответа внешнего сервиса.
// Всё, кроме male/female, считается неизвестным.
func ParseGender(s string) (Gender, bool) {
	switch Gender(strings.ToLower(strings.TrimSpace(s))) {
	case GenderMale:
		return GenderMale, true
	case GenderFemale:
		return GenderFemale, true
	default:
		return GenderUnknown, false
	}
}

// IsKnown возвращает true для male/female.
func (g Gender) IsKnown() bool {
	return g == GenderMale || g == GenderFemale
}

// CountryCode код страны ISO 3166-1 alpha-2. Пустая строка означает "неизвестно".
type CountryCode string

// ══════════════════════════════════════════════════════════════════════════════
// ENRICHMENT
// ══════════════════════════════════════════════════════════════════════════════

// Enrichment результат обогащения: ровно три поля, которые пишет только конвейер.
// Nil Age и пустые Gender/Nationality означают "неизвестно".
type Enrichment struct {
	Gender      Gender
	Age         *int
	Nationality CountryCode
}

// Equal сравнивает два результата по значению.
func (e Enrichment) Equal(other Enrichment) bool {
	if e.Gender != other.Gender || e.Nationality != other.Nationality {
		return false
	}
	if e.Age == nil || other.Age == nil {
		return e.Age == nil && other.Age == nil
	}
	return *e.Age == *other.Age
}

// AgeOf удобный конструктор для известного возраста.
func AgeOf(years int) *int {
	return &years
}

// ══════════════════════════════════════════════════════════════════════════════
// PERSON AGGREGATE
// ══════════════════════════════════════════════════════════════════════════════

// Person человек из реестра.
type Person struct {
	ID         ID
	LastName   string
	FirstName  string
	MiddleName string

	Gender      Gender
	Age         *int
	Nationality CountryCode

	// Emails упорядоченный список уникальных адресов.
	Emails []string

	// Friends идентификаторы друзей. Отношение симметрично.
	Friends []ID

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New создаёт нового человека с проверкой имени и нормализацией адресов.
func New(lastName, firstName, middleName string, emails []string) (*Person, error) {
	p := &Person{}
	if err := p.Rename(lastName, firstName, middleName); err != nil {
		return nil, err
	}
	p.Emails = NormalizeEmails(emails)
	return p, nil
}

// Rename заменяет все три части имени.
func (p *Person) Rename(lastName, firstName, middleName string) error {
	lastName = strings.TrimSpace(lastName)
	firstName = strings.TrimSpace(firstName)
	middleName = strings.TrimSpace(middleName)

	if lastName == "" {
		return shared.Validation("person", "Rename", "last_name is required")
	}
	if firstName == "" {
		return shared.Validation("person", "Rename", "first_name is required")
	}
	for _, f := range [...]struct{ name, value string }{
		{"last_name", lastName},
		{"first_name", firstName},
		{"middle_name", middleName},
	} {
		if utf8.RuneCountInString(f.value) > MaxNameLength {
			return shared.Validation("person", "Rename", "%s must be at most %d characters", f.name, MaxNameLength)
		}
	}

	p.LastName, p.FirstName, p.MiddleName = lastName, firstName, middleName
	return nil
}

// DisplayName собирает непустые части в порядке фамилия, имя, отчество.
func (p *Person) DisplayName() string {
	parts := make([]string, 0, 3)
	for _, part := range []string{p.LastName, p.FirstName, p.MiddleName} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, " ")
}

// Enrichment возвращает текущие выведенные атрибуты.
func (p *Person) Enrichment() Enrichment {
	return Enrichment{Gender: p.Gender, Age: p.Age, Nationality: p.Nationality}
}

// ApplyEnrichment перезаписывает ровно три поля обогащения, остальные не трогает.
func (p *Person) ApplyEnrichment(e Enrichment) {
	p.Gender = e.Gender
	p.Age = e.Age
	p.Nationality = e.Nationality
}

// HasFriend проверяет наличие друга.
func (p *Person) HasFriend(id ID) bool {
	for _, f := range p.Friends {
		if f == id {
			return true
		}
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// EMAILS
// ══════════════════════════════════════════════════════════════════════════════

// NormalizeEmails убирает пробелы, приводит домен к нижнему регистру
// и удаляет повторы, сохраняя порядок первого вхождения.
func NormalizeEmails(emails []string) []string {
	out := make([]string, 0, len(emails))
	seen := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		e = normalizeEmail(e)
		if e == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

func normalizeEmail(e string) string {
	e = strings.TrimSpace(e)
	at := strings.LastIndexByte(e, '@')
	if at < 0 {
		return e
	}
	return e[:at] + "@" + strings.ToLower(e[at+1:])
}
