package pg

import (
	"database/sql"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type Config struct {
	User     string `env:"USER"`
	Host     string `env:"HOST"`
	Port     string `env:"PORT"`
	Password string `env:"PASSWORD"`
	Database string `env:"DBNAME"`
	SSLMode  string `env:"SSLMODE"`

	// zero leaves the database/sql default
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func dsn(config Config) string {
	sslMode := config.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		config.Host, config.User, config.Password, config.Database, config.Port, sslMode)
}

// newSqlConnection opens a bare lib/pq handle for goose, which does not
// go through gorm.
func newSqlConnection(config Config) (*sql.DB, error) {
	return sql.Open("postgres", dsn(config))
}

// applyPool sizes the pool behind a gorm handle. Balance updates hold a row
// lock for the whole transaction, so MaxOpenConns bounds concurrent writers.
func applyPool(db *gorm.DB, config Config) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	}
	return nil
}
