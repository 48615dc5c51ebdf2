package database

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS pois (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		external_id VARCHAR(255) NULL,
		name VARCHAR(255) NOT NULL,
		slug VARCHAR(255) NOT NULL,
		category VARCHAR(64) NOT NULL DEFAULT '',
		address VARCHAR(512) NOT NULL DEFAULT '',
		city VARCHAR(128) NOT NULL DEFAULT '',
		country VARCHAR(128) NOT NULL DEFAULT '',
		latitude DOUBLE NULL,
		longitude DOUBLE NULL,
		phone VARCHAR(64) NOT NULL DEFAULT '',
		website VARCHAR(512) NOT NULL DEFAULT '',
		price_level TINYINT NULL,
		review_count BIGINT NOT NULL DEFAULT 0,
		average_rating DOUBLE NOT NULL DEFAULT 0,
		tourist_relevance DOUBLE NOT NULL DEFAULT 0,
		booking_frequency BIGINT NOT NULL DEFAULT 0,
		poi_score DOUBLE NOT NULL DEFAULT 0,
		tier TINYINT NOT NULL DEFAULT 4,
		verified TINYINT(1) NOT NULL DEFAULT 0,
		active TINYINT(1) NOT NULL DEFAULT 1,
		last_scraped_at DATETIME(6) NULL,
		next_update_at DATETIME(6) NULL,
		last_classified_at DATETIME(6) NULL,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		UNIQUE KEY uq_pois_external_id (external_id),
		KEY idx_pois_tier_next_update (tier, next_update_at),
		KEY idx_pois_slug (slug)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS poi_score_history (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		poi_id BIGINT NOT NULL,
		poi_score DOUBLE NOT NULL,
		review_count BIGINT NOT NULL,
		average_rating DOUBLE NOT NULL,
		tourist_relevance DOUBLE NOT NULL,
		booking_frequency BIGINT NOT NULL,
		old_tier TINYINT NULL,
		new_tier TINYINT NOT NULL,
		calculated_at DATETIME(6) NOT NULL,
		KEY idx_history_poi (poi_id, calculated_at),
		CONSTRAINT fk_history_poi FOREIGN KEY (poi_id) REFERENCES pois (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS poi_data_sources (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		poi_id BIGINT NOT NULL,
		source_name VARCHAR(64) NOT NULL,
		source_id VARCHAR(255) NOT NULL DEFAULT '',
		rating DOUBLE NULL,
		review_count BIGINT NULL,
		price_level TINYINT NULL,
		ranking INT NULL,
		raw_payload JSON NULL,
		last_scraped_at DATETIME(6) NOT NULL,
		scrape_status VARCHAR(16) NOT NULL,
		UNIQUE KEY uq_data_sources_poi_source (poi_id, source_name),
		CONSTRAINT fk_data_sources_poi FOREIGN KEY (poi_id) REFERENCES pois (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS discovery_runs (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		run_type VARCHAR(32) NOT NULL,
		destination VARCHAR(128) NOT NULL,
		categories JSON NOT NULL,
		sources JSON NOT NULL,
		criteria JSON NULL,
		status VARCHAR(16) NOT NULL,
		progress JSON NOT NULL,
		found INT NOT NULL DEFAULT 0,
		created INT NOT NULL DEFAULT 0,
		updated INT NOT NULL DEFAULT 0,
		skipped INT NOT NULL DEFAULT 0,
		failed INT NOT NULL DEFAULT 0,
		errors JSON NOT NULL,
		started_at DATETIME(6) NOT NULL,
		completed_at DATETIME(6) NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS provider_spend (
		month CHAR(7) PRIMARY KEY,
		amount_usd DOUBLE NOT NULL DEFAULT 0,
		updated_at DATETIME(6) NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS pois (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		external_id TEXT NULL UNIQUE,
		name TEXT NOT NULL,
		slug TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		city TEXT NOT NULL DEFAULT '',
		country TEXT NOT NULL DEFAULT '',
		latitude REAL NULL,
		longitude REAL NULL,
		phone TEXT NOT NULL DEFAULT '',
		website TEXT NOT NULL DEFAULT '',
		price_level INTEGER NULL,
		review_count INTEGER NOT NULL DEFAULT 0,
		average_rating REAL NOT NULL DEFAULT 0,
		tourist_relevance REAL NOT NULL DEFAULT 0,
		booking_frequency INTEGER NOT NULL DEFAULT 0,
		poi_score REAL NOT NULL DEFAULT 0,
		tier INTEGER NOT NULL DEFAULT 4,
		verified BOOLEAN NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT 1,
		last_scraped_at DATETIME NULL,
		next_update_at DATETIME NULL,
		last_classified_at DATETIME NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pois_tier_next_update ON pois (tier, next_update_at)`,
	`CREATE TABLE IF NOT EXISTS poi_score_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		poi_id INTEGER NOT NULL REFERENCES pois (id),
		poi_score REAL NOT NULL,
		review_count INTEGER NOT NULL,
		average_rating REAL NOT NULL,
		tourist_relevance REAL NOT NULL,
		booking_frequency INTEGER NOT NULL,
		old_tier INTEGER NULL,
		new_tier INTEGER NOT NULL,
		calculated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS poi_data_sources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		poi_id INTEGER NOT NULL REFERENCES pois (id),
		source_name TEXT NOT NULL,
		source_id TEXT NOT NULL DEFAULT '',
		rating REAL NULL,
		review_count INTEGER NULL,
		price_level INTEGER NULL,
		ranking INTEGER NULL,
		raw_payload TEXT NULL,
		last_scraped_at DATETIME NOT NULL,
		scrape_status TEXT NOT NULL,
		UNIQUE (poi_id, source_name)
	)`,
	`CREATE TABLE IF NOT EXISTS discovery_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_type TEXT NOT NULL,
		destination TEXT NOT NULL,
		categories TEXT NOT NULL,
		sources TEXT NOT NULL,
		criteria TEXT NULL,
		status TEXT NOT NULL,
		progress TEXT NOT NULL,
		found INTEGER NOT NULL DEFAULT 0,
		created INTEGER NOT NULL DEFAULT 0,
		updated INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		errors TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		completed_at DATETIME NULL
	)`,
	`CREATE TABLE IF NOT EXISTS provider_spend (
		month TEXT PRIMARY KEY,
		amount_usd REAL NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL
	)`,
}
