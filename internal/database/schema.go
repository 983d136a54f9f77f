package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema lists the tables owned by the seat locking service.  shows and
// seats belong to the catalog subsystem and are expected to exist already.
//
// The unique key on seat_locks(show_id, seat_id) is what serialises
// concurrent acquisitions of the same seat; the unique key on
// reservation_seats(show_id, seat_id) is the last line of defence against
// double booking.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS seat_locks (
		id          BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		show_id     BIGINT UNSIGNED NOT NULL,
		seat_id     BIGINT UNSIGNED NOT NULL,
		session_id  VARCHAR(128)    NOT NULL,
		expires_at  DATETIME(6)     NOT NULL,
		created_at  DATETIME(6)     NOT NULL,
		updated_at  DATETIME(6)     NOT NULL,
		PRIMARY KEY (id),
		UNIQUE KEY uq_seat_locks_show_seat (show_id, seat_id),
		KEY idx_seat_locks_session (session_id),
		KEY idx_seat_locks_expires (expires_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS reservations (
		id                 BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		user_id            BIGINT UNSIGNED NOT NULL,
		show_id            BIGINT UNSIGNED NOT NULL,
		session_id         VARCHAR(128)    NOT NULL,
		status             ENUM('CONFIRMED','CANCELLED') NOT NULL DEFAULT 'CONFIRMED',
		total_amount_cents INT UNSIGNED    NOT NULL DEFAULT 0,
		created_at         DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at         DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		KEY idx_reservations_show (show_id),
		KEY idx_reservations_user (user_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS reservation_seats (
		id             BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		reservation_id BIGINT UNSIGNED NOT NULL,
		show_id        BIGINT UNSIGNED NOT NULL,
		seat_id        BIGINT UNSIGNED NOT NULL,
		price_cents    INT UNSIGNED    NOT NULL DEFAULT 0,
		created_at     DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		UNIQUE KEY uq_reservation_seats_show_seat (show_id, seat_id),
		CONSTRAINT fk_reservation_seats_reservation FOREIGN KEY (reservation_id)
			REFERENCES reservations (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates the service's tables when they do not exist.  It is safe
// to run on every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
