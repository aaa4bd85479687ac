package postgres

const schema = `
CREATE TABLE IF NOT EXISTS listings (
	id                  TEXT PRIMARY KEY,
	seller_id           TEXT NOT NULL,
	title               TEXT NOT NULL DEFAULT '',
	pricing_mode        TEXT NOT NULL,
	status              TEXT NOT NULL,
	price               NUMERIC(12, 2) NOT NULL,
	reserve_price       NUMERIC(12, 2),
	increment           NUMERIC(12, 2) NOT NULL DEFAULT 0,
	shipping_price      NUMERIC(12, 2) NOT NULL DEFAULT 0,
	allow_offers        BOOLEAN NOT NULL DEFAULT FALSE,
	min_offer_percent   NUMERIC(5, 2) NOT NULL DEFAULT 0,
	auction_end         TIMESTAMPTZ,
	extension_enabled   BOOLEAN NOT NULL DEFAULT FALSE,
	extension_window_ms BIGINT NOT NULL DEFAULT 0,
	max_extensions      INTEGER NOT NULL DEFAULT 0,
	extension_count     INTEGER NOT NULL DEFAULT 0,
	quantity            INTEGER NOT NULL DEFAULT 1,
	quantity_reserved   INTEGER NOT NULL DEFAULT 0,
	quantity_sold       INTEGER NOT NULL DEFAULT 0,
	created_at          TIMESTAMPTZ NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL,
	closed_at           TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_listings_due ON listings(status, auction_end);

CREATE TABLE IF NOT EXISTS bids (
	id                  TEXT PRIMARY KEY,
	listing_id          TEXT NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
	bidder_id           TEXT NOT NULL,
	amount              NUMERIC(12, 2) NOT NULL,
	proxy_ceiling       NUMERIC(12, 2),
	generated           BOOLEAN NOT NULL DEFAULT FALSE,
	triggered_extension BOOLEAN NOT NULL DEFAULT FALSE,
	seq                 BIGINT NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL,
	UNIQUE (listing_id, seq)
);

CREATE TABLE IF NOT EXISTS autobids (
	id            TEXT PRIMARY KEY,
	listing_id    TEXT NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
	bidder_id     TEXT NOT NULL,
	max_amount    NUMERIC(12, 2) NOT NULL,
	active        BOOLEAN NOT NULL DEFAULT TRUE,
	registered_at TIMESTAMPTZ NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS autobids_active_bidder_key
	ON autobids(listing_id, bidder_id) WHERE active;

CREATE TABLE IF NOT EXISTS offers (
	id              TEXT PRIMARY KEY,
	listing_id      TEXT NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
	buyer_id        TEXT NOT NULL,
	amount          NUMERIC(12, 2) NOT NULL,
	message         TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL,
	counter_amount  NUMERIC(12, 2),
	counter_message TEXT NOT NULL DEFAULT '',
	expires_at      TIMESTAMPTZ NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL,
	responded_at    TIMESTAMPTZ,
	countered_at    TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_offers_expiry ON offers(status, expires_at);

CREATE TABLE IF NOT EXISTS orders (
	id               TEXT PRIMARY KEY,
	listing_id       TEXT NOT NULL REFERENCES listings(id),
	buyer_id         TEXT NOT NULL,
	seller_id        TEXT NOT NULL,
	source           TEXT NOT NULL,
	source_id        TEXT NOT NULL,
	item_price       NUMERIC(12, 2) NOT NULL,
	shipping_price   NUMERIC(12, 2) NOT NULL,
	total            NUMERIC(12, 2) NOT NULL,
	platform_fee     NUMERIC(12, 2) NOT NULL,
	seller_payout    NUMERIC(12, 2) NOT NULL,
	status           TEXT NOT NULL,
	payment_ref      TEXT NOT NULL DEFAULT '',
	shipping_address TEXT NOT NULL DEFAULT '',
	tracking_number  TEXT NOT NULL DEFAULT '',
	tracking_carrier TEXT NOT NULL DEFAULT '',
	receipt          BYTEA,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL,
	paid_at          TIMESTAMPTZ,
	shipped_at       TIMESTAMPTZ,
	delivered_at     TIMESTAMPTZ,
	completed_at     TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS orders_listing_id_key ON orders(listing_id);
`
