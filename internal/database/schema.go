package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is the minimum relational shape the repositories rely on. Every
// statement is idempotent so EnsureSchema can run on each start.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		email VARCHAR(255) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		full_name VARCHAR(255) NOT NULL,
		phone VARCHAR(64) NULL,
		role ENUM('USER','INVESTOR','ADMIN') NOT NULL DEFAULT 'USER',
		is_active TINYINT(1) NOT NULL DEFAULT 1,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
		UNIQUE KEY uq_users_email (email),
		KEY idx_users_role (role)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		user_id BIGINT UNSIGNED NOT NULL,
		token_hash CHAR(64) NOT NULL,
		expires_at DATETIME(6) NOT NULL,
		revoked_at DATETIME(6) NULL,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		UNIQUE KEY uq_refresh_token_hash (token_hash),
		KEY idx_refresh_user (user_id),
		CONSTRAINT fk_refresh_user FOREIGN KEY (user_id) REFERENCES users(id)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS properties (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		location VARCHAR(255) NOT NULL,
		description TEXT NULL,
		status ENUM('AVAILABLE','INVESTED','SOLD') NOT NULL DEFAULT 'AVAILABLE',
		image_urls JSON NULL,
		record_state ENUM('ACTIVE','ARCHIVED') NOT NULL DEFAULT 'ACTIVE',
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
		KEY idx_properties_status (status, record_state)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS investments (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		user_id BIGINT UNSIGNED NOT NULL,
		property_id BIGINT UNSIGNED NOT NULL,
		initial_value DECIMAL(18,2) NOT NULL,
		current_value DECIMAL(18,2) NOT NULL,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
		KEY idx_investments_user (user_id),
		KEY idx_investments_property (property_id),
		CONSTRAINT fk_investments_user FOREIGN KEY (user_id) REFERENCES users(id),
		CONSTRAINT fk_investments_property FOREIGN KEY (property_id) REFERENCES properties(id),
		CONSTRAINT chk_investments_initial CHECK (initial_value > 0),
		CONSTRAINT chk_investments_current CHECK (current_value >= 0)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS updates (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		property_id BIGINT UNSIGNED NULL,
		title VARCHAR(255) NOT NULL,
		content TEXT NOT NULL,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
		KEY idx_updates_property (property_id),
		CONSTRAINT fk_updates_property FOREIGN KEY (property_id) REFERENCES properties(id) ON DELETE CASCADE
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS investment_applications (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		user_id BIGINT UNSIGNED NOT NULL,
		motivation TEXT NOT NULL,
		investment_amount DECIMAL(18,2) NULL,
		experience TEXT NULL,
		status ENUM('PENDING','UNDER_REVIEW','APPROVED','REJECTED') NOT NULL DEFAULT 'PENDING',
		reviewed_by BIGINT UNSIGNED NULL,
		reviewed_at DATETIME(6) NULL,
		admin_notes TEXT NULL,
		rejection_reason TEXT NULL,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
		KEY idx_applications_user (user_id, status),
		KEY idx_applications_status (status),
		CONSTRAINT fk_applications_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
		CONSTRAINT fk_applications_reviewer FOREIGN KEY (reviewed_by) REFERENCES users(id) ON DELETE SET NULL,
		CONSTRAINT chk_applications_amount CHECK (investment_amount IS NULL OR investment_amount > 0)
	) ENGINE=InnoDB`,
}

// EnsureSchema creates missing tables. It never alters existing ones.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
