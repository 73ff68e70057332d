package app

import "shft.ru/secure-bot/internal/db/postgres"

// SQL-миграции встроены в код для упрощения деплоя.
var migrations = []postgres.Migration{
	{Version: 1, Name: "bot_users", SQL: migration001Users},
	{Version: 2, Name: "loyalty_accounts", SQL: migration002Loyalty},
	{Version: 3, Name: "payments", SQL: migration003Payments},
	{Version: 4, Name: "admin", SQL: migration004Admin},
}

const migration001Users = `
CREATE TABLE IF NOT EXISTS bot_users (
    id BIGSERIAL PRIMARY KEY,
    telegram_id BIGINT UNIQUE NOT NULL,
    username VARCHAR(255),
    first_name VARCHAR(255) NOT NULL DEFAULT '',
    last_name VARCHAR(255),
    referrer_id BIGINT,
    is_banned BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_bot_users_referrer_id ON bot_users(referrer_id);
`

const migration002Loyalty = `
CREATE TABLE IF NOT EXISTS loyalty_accounts (
    user_id BIGINT PRIMARY KEY,
    points BIGINT NOT NULL DEFAULT 0 CHECK (points >= 0),
    status VARCHAR(32) NOT NULL DEFAULT 'bronze',
    total_spent BIGINT NOT NULL DEFAULT 0 CHECK (total_spent >= 0),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const migration003Payments = `
CREATE TABLE IF NOT EXISTS payments (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL,
    plan_id VARCHAR(64) NOT NULL,
    months INTEGER NOT NULL CHECK (months > 0),
    amount_rub BIGINT NOT NULL CHECK (amount_rub >= 0),
    stars BIGINT NOT NULL CHECK (stars >= 0),
    method VARCHAR(32) NOT NULL,
    status VARCHAR(32) NOT NULL,
    tier VARCHAR(32) NOT NULL,
    invoice_payload VARCHAR(128) NOT NULL,
    charge_id VARCHAR(255) NOT NULL UNIQUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_payments_user_created ON payments(user_id, created_at DESC);
`

const migration004Admin = `
CREATE TABLE IF NOT EXISTS admin_sessions (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL,
    session_token VARCHAR(255) UNIQUE,
    authenticated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    expires_at TIMESTAMPTZ NOT NULL,
    last_activity TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    is_active BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE INDEX IF NOT EXISTS idx_admin_sessions_user_id ON admin_sessions(user_id);
CREATE TABLE IF NOT EXISTS admin_login_attempts (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL,
    attempt_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    success BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_admin_login_attempts_user_time ON admin_login_attempts(user_id, attempt_time DESC);
`
