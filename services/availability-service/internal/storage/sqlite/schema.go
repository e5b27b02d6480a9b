package sqlite

import "context"

// Overlap on time_slots is enforced by the service under the schedule lock; SQLite has no
// exclusion constraints.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS providers (
	id TEXT PRIMARY KEY,
	registered_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS schedules (
	id TEXT PRIMARY KEY,
	provider_id TEXT NOT NULL UNIQUE REFERENCES providers(id),
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS working_days (
	id TEXT PRIMARY KEY,
	schedule_id TEXT NOT NULL REFERENCES schedules(id) ON DELETE CASCADE,
	day_of_week INTEGER NOT NULL CHECK (day_of_week BETWEEN 0 AND 6),
	start_minute INTEGER NOT NULL CHECK (start_minute >= 0),
	end_minute INTEGER NOT NULL CHECK (end_minute <= 1440),
	CHECK (start_minute < end_minute),
	UNIQUE (schedule_id, day_of_week)
);

CREATE TABLE IF NOT EXISTS time_slots (
	id TEXT PRIMARY KEY,
	schedule_id TEXT NOT NULL REFERENCES schedules(id) ON DELETE CASCADE,
	slot_date TEXT NOT NULL,
	day_of_week INTEGER NOT NULL,
	start_minute INTEGER NOT NULL CHECK (start_minute >= 0),
	end_minute INTEGER NOT NULL CHECK (end_minute <= 1440),
	status TEXT NOT NULL DEFAULT 'AVAILABLE' CHECK (status IN ('AVAILABLE', 'BOOKED')),
	booking_id TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	CHECK (start_minute < end_minute)
);

CREATE INDEX IF NOT EXISTS idx_time_slots_schedule_date ON time_slots(schedule_id, slot_date, start_minute);

CREATE TABLE IF NOT EXISTS bookings (
	id TEXT PRIMARY KEY,
	consumer_id TEXT NOT NULL,
	provider_id TEXT NOT NULL REFERENCES providers(id),
	service_type_id TEXT NOT NULL,
	booking_date TEXT NOT NULL,
	start_minute INTEGER NOT NULL,
	end_minute INTEGER NOT NULL,
	time_slot_id TEXT REFERENCES time_slots(id) ON DELETE SET NULL,
	price_cents INTEGER NOT NULL DEFAULT 0,
	currency TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	created_at TEXT NOT NULL,
	accepted_at TEXT,
	started_at TEXT,
	completed_at TEXT,
	cancelled_at TEXT,
	cancel_reason TEXT NOT NULL DEFAULT '',
	rating INTEGER CHECK (rating BETWEEN 1 AND 5),
	review TEXT NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_active_slot ON bookings(time_slot_id) WHERE status <> 'CANCELLED';

CREATE TABLE IF NOT EXISTS outbox_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id TEXT NOT NULL UNIQUE,
	aggregate_type TEXT NOT NULL,
	aggregate_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	payload BLOB NOT NULL,
	traceparent TEXT NOT NULL DEFAULT '',
	tracestate TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	published_at TEXT
);

CREATE TABLE IF NOT EXISTS inbox_events (
	event_id TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	received_at TEXT NOT NULL
);
`

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}
