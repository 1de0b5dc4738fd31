package postgres

// Constraint names referenced by the repository error mapping.
const (
	constraintPeopleName  = "people_full_name_key"
	constraintEmailsEmail = "emails_email_key"
)

// GetMigrations returns all embedded migrations in apply order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_people",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_emails",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
		{
			Version: 3,
			Name:    "create_person_friends",
			UpSQL:   migration003Up,
			DownSQL: migration003Down,
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE PEOPLE
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS people (
    id BIGSERIAL PRIMARY KEY,
    last_name VARCHAR(100) NOT NULL,
    first_name VARCHAR(100) NOT NULL,
    middle_name VARCHAR(100) NOT NULL DEFAULT '',

    -- Written only by the enrichment pipeline. NULL means unknown.
    gender VARCHAR(10),
    age INTEGER,
    nationality VARCHAR(2),

    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT people_full_name_key UNIQUE (last_name, first_name, middle_name),
    CONSTRAINT valid_gender CHECK (gender IS NULL OR gender IN ('male', 'female')),
    CONSTRAINT valid_age CHECK (age IS NULL OR age >= 0)
);

CREATE INDEX IF NOT EXISTS idx_people_last_name_lower ON people (lower(last_name));
`

const migration001Down = `
DROP TABLE IF EXISTS people;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE EMAILS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS emails (
    id BIGSERIAL PRIMARY KEY,
    person_id BIGINT NOT NULL REFERENCES people(id) ON DELETE CASCADE,
    email VARCHAR(254) NOT NULL,
    position INTEGER NOT NULL,

    CONSTRAINT emails_email_key UNIQUE (email)
);

CREATE INDEX IF NOT EXISTS idx_emails_person_id ON emails (person_id, position);
`

const migration002Down = `
DROP TABLE IF EXISTS emails;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE PERSON FRIENDS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Each friendship is stored as two directed edges.
CREATE TABLE IF NOT EXISTS person_friends (
    from_person_id BIGINT NOT NULL REFERENCES people(id) ON DELETE CASCADE,
    to_person_id BIGINT NOT NULL REFERENCES people(id) ON DELETE CASCADE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (from_person_id, to_person_id)
);

CREATE INDEX IF NOT EXISTS idx_person_friends_to ON person_friends (to_person_id);
`

const migration003Down = `
DROP TABLE IF EXISTS person_friends;
`
