package postgres

const schema = `
CREATE TABLE IF NOT EXISTS archives (
	id            BIGSERIAL PRIMARY KEY,
	discovery_url TEXT NOT NULL UNIQUE,
	url           TEXT,
	full_html     TEXT,
	status        INTEGER,
	created_at    TIMESTAMPTZ NOT NULL,
	modified_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS archives_url_idx ON archives (url);

CREATE TABLE IF NOT EXISTS newsletters (
	id            BIGSERIAL PRIMARY KEY,
	archive_id    BIGINT NOT NULL REFERENCES archives (id),
	discovery_url TEXT NOT NULL UNIQUE,
	url           TEXT,
	full_html     TEXT,
	status        INTEGER,
	created_at    TIMESTAMPTZ NOT NULL,
	modified_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS newsletters_url_idx ON newsletters (url);
CREATE INDEX IF NOT EXISTS newsletters_archive_idx ON newsletters (archive_id);

CREATE TABLE IF NOT EXISTS articles (
	id            BIGSERIAL PRIMARY KEY,
	newsletter_id BIGINT NOT NULL REFERENCES newsletters (id),
	discovery_url TEXT NOT NULL UNIQUE,
	url           TEXT,
	title         TEXT,
	full_html     TEXT,
	full_text     TEXT,
	status        INTEGER,
	created_at    TIMESTAMPTZ NOT NULL,
	modified_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS articles_url_idx ON articles (url);
CREATE INDEX IF NOT EXISTS articles_newsletter_idx ON articles (newsletter_id);
`
