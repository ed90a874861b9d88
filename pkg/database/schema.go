package database

// Schema returns the ordered migrations for the medora database
func Schema() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create accounts table",
			SQL: `
				CREATE TABLE IF NOT EXISTS accounts (
					id UUID PRIMARY KEY,
					email VARCHAR(255) NOT NULL UNIQUE,
					phone VARCHAR(32),
					name VARCHAR(255) NOT NULL DEFAULT '',
					password_hash TEXT,
					kind SMALLINT NOT NULL CHECK (kind IN (1, 2, 3)),
					is_verified BOOLEAN NOT NULL DEFAULT FALSE,
					is_provider_verified BOOLEAN NOT NULL DEFAULT FALSE,
					account_provider_id UUID REFERENCES accounts(id) ON DELETE CASCADE,
					role_id UUID,
					profile_id UUID,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_accounts_provider ON accounts(account_provider_id);
			`,
		},
		{
			Version:     2,
			Description: "Create permission catalog and roles",
			SQL: `
				CREATE TABLE IF NOT EXISTS permissions (
					key VARCHAR(128) PRIMARY KEY,
					description TEXT,
					parent VARCHAR(128) REFERENCES permissions(key) ON DELETE SET NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_permissions_parent ON permissions(parent);

				CREATE TABLE IF NOT EXISTS roles (
					id UUID PRIMARY KEY,
					key VARCHAR(64) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					provider_id UUID REFERENCES accounts(id) ON DELETE CASCADE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_roles_provider ON roles(provider_id);
				CREATE UNIQUE INDEX IF NOT EXISTS idx_roles_system_key ON roles(key) WHERE provider_id IS NULL;

				CREATE TABLE IF NOT EXISTS role_permissions (
					id BIGSERIAL PRIMARY KEY,
					role_id UUID NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					permission_key VARCHAR(128) NOT NULL REFERENCES permissions(key) ON DELETE CASCADE,
					UNIQUE (role_id, permission_key)
				);

				CREATE INDEX IF NOT EXISTS idx_role_permissions_key ON role_permissions(permission_key);

				ALTER TABLE accounts
					ADD CONSTRAINT fk_accounts_role FOREIGN KEY (role_id) REFERENCES roles(id) ON DELETE SET NULL;
			`,
		},
		{
			Version:     3,
			Description: "Create profile tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS companies (
					id UUID PRIMARY KEY,
					account_id UUID NOT NULL UNIQUE REFERENCES accounts(id) ON DELETE CASCADE,
					display_name VARCHAR(255) NOT NULL DEFAULT '',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS pharmacies (
					id UUID PRIMARY KEY,
					account_id UUID NOT NULL UNIQUE REFERENCES accounts(id) ON DELETE CASCADE,
					display_name VARCHAR(255) NOT NULL DEFAULT '',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS doctors (
					id UUID PRIMARY KEY,
					account_id UUID NOT NULL UNIQUE REFERENCES accounts(id) ON DELETE CASCADE,
					display_name VARCHAR(255) NOT NULL DEFAULT '',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     4,
			Description: "Create medicine categories and products",
			SQL: `
				CREATE TABLE IF NOT EXISTS medicine_categories (
					id UUID PRIMARY KEY,
					name VARCHAR(255) NOT NULL UNIQUE,
					parent_id UUID REFERENCES medicine_categories(id) ON DELETE SET NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS products (
					id UUID PRIMARY KEY,
					provider_id UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
					category_id UUID REFERENCES medicine_categories(id) ON DELETE SET NULL,
					name VARCHAR(255) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					price_cents BIGINT NOT NULL DEFAULT 0 CHECK (price_cents >= 0),
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_products_provider ON products(provider_id, created_at DESC);
			`,
		},
		{
			Version:     5,
			Description: "Create articles, comments and likes",
			SQL: `
				CREATE TABLE IF NOT EXISTS articles (
					id UUID PRIMARY KEY,
					provider_id UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
					author_id UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
					title VARCHAR(255) NOT NULL,
					body TEXT NOT NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_articles_provider ON articles(provider_id, created_at DESC);

				CREATE TABLE IF NOT EXISTS article_comments (
					id UUID PRIMARY KEY,
					article_id UUID NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
					author_id UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
					parent_id UUID REFERENCES article_comments(id) ON DELETE CASCADE,
					body TEXT NOT NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_article_comments_article ON article_comments(article_id, created_at);

				CREATE TABLE IF NOT EXISTS article_likes (
					article_id UUID NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
					account_id UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					PRIMARY KEY (article_id, account_id)
				);
			`,
		},
		{
			Version:     6,
			Description: "Create audit events",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_events (
					id BIGSERIAL PRIMARY KEY,
					occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					actor_id UUID,
					provider_id UUID,
					action VARCHAR(64) NOT NULL,
					resource_type VARCHAR(64) NOT NULL,
					resource_id VARCHAR(255),
					outcome VARCHAR(16) NOT NULL,
					status_code INT,
					request_id VARCHAR(64),
					metadata JSONB NOT NULL DEFAULT '{}'
				);

				CREATE INDEX IF NOT EXISTS idx_audit_events_occurred_at ON audit_events(occurred_at);
				CREATE INDEX IF NOT EXISTS idx_audit_events_provider ON audit_events(provider_id, occurred_at DESC);
			`,
		},
		{
			Version:     7,
			Description: "Make account emails unique regardless of case",
			SQL: `
				ALTER TABLE accounts DROP CONSTRAINT IF EXISTS accounts_email_key;
				CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_email_lower ON accounts (lower(email));
			`,
		},
	}
}
