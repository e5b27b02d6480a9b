package postgres

import "context"

const schemaSQL = `
CREATE EXTENSION IF NOT EXISTS btree_gist;

CREATE TABLE IF NOT EXISTS providers (
	id TEXT PRIMARY KEY,
	registered_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS schedules (
	id TEXT PRIMARY KEY,
	provider_id TEXT NOT NULL UNIQUE REFERENCES providers(id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS working_days (
	id TEXT PRIMARY KEY,
	schedule_id TEXT NOT NULL REFERENCES schedules(id) ON DELETE CASCADE,
	day_of_week SMALLINT NOT NULL CHECK (day_of_week BETWEEN 0 AND 6),
	start_minute INT NOT NULL CHECK (start_minute >= 0),
	end_minute INT NOT NULL CHECK (end_minute <= 1440),
	CHECK (start_minute < end_minute),
	UNIQUE (schedule_id, day_of_week)
);

CREATE TABLE IF NOT EXISTS time_slots (
	id TEXT PRIMARY KEY,
	schedule_id TEXT NOT NULL REFERENCES schedules(id) ON DELETE CASCADE,
	slot_date DATE NOT NULL,
	day_of_week SMALLINT NOT NULL,
	start_minute INT NOT NULL CHECK (start_minute >= 0),
	end_minute INT NOT NULL CHECK (end_minute <= 1440),
	status TEXT NOT NULL DEFAULT 'AVAILABLE' CHECK (status IN ('AVAILABLE', 'BOOKED')),
	booking_id TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	CHECK (start_minute < end_minute),
	CONSTRAINT time_slots_no_overlap EXCLUDE USING gist (
		schedule_id WITH =,
		slot_date WITH =,
		int4range(start_minute, end_minute) WITH &&
	)
);

CREATE INDEX IF NOT EXISTS idx_time_slots_schedule_date ON time_slots(schedule_id, slot_date, start_minute);
CREATE INDEX IF NOT EXISTS idx_time_slots_weekday ON time_slots(schedule_id, day_of_week) WHERE status = 'AVAILABLE';

CREATE TABLE IF NOT EXISTS bookings (
	id TEXT PRIMARY KEY,
	consumer_id TEXT NOT NULL,
	provider_id TEXT NOT NULL REFERENCES providers(id),
	service_type_id TEXT NOT NULL,
	booking_date DATE NOT NULL,
	start_minute INT NOT NULL,
	end_minute INT NOT NULL,
	time_slot_id TEXT REFERENCES time_slots(id) ON DELETE SET NULL,
	price_cents BIGINT NOT NULL DEFAULT 0,
	currency TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	accepted_at TIMESTAMPTZ,
	started_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
	cancelled_at TIMESTAMPTZ,
	cancel_reason TEXT NOT NULL DEFAULT '',
	rating SMALLINT CHECK (rating BETWEEN 1 AND 5),
	review TEXT NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_active_slot ON bookings(time_slot_id) WHERE status <> 'CANCELLED';

CREATE TABLE IF NOT EXISTS outbox_events (
	id BIGSERIAL PRIMARY KEY,
	event_id TEXT NOT NULL UNIQUE,
	aggregate_type TEXT NOT NULL,
	aggregate_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	payload JSONB NOT NULL,
	traceparent TEXT NOT NULL DEFAULT '',
	tracestate TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_outbox_unpublished ON outbox_events(id) WHERE published_at IS NULL;

CREATE TABLE IF NOT EXISTS inbox_events (
	event_id TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	received_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaSQL)
	return err
}
