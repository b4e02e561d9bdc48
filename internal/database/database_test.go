package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"apkrelay/internal/config"
)

func TestBuildPostgresDSN(t *testing.T) {
	tests := []struct {
		name    string
		config  config.DatabaseConfig
		want    string
		wantErr string
	}{
		{
			name:   "discrete fields",
			config: config.DatabaseConfig{Host: "db", Port: "5432", User: "relay", Password: "pw", Name: "apkrelay", SSLMode: "disable"},
			want:   "postgres://relay:pw@db:5432/apkrelay?sslmode=disable",
		},
		{
			name:   "no password no sslmode",
			config: config.DatabaseConfig{Host: "db", Port: "5432", User: "relay", Name: "apkrelay"},
			want:   "postgres://relay@db:5432/apkrelay",
		},
		{
			name:   "url wins over fields",
			config: config.DatabaseConfig{URL: "postgresql://u:p@pg.internal/history", Host: "ignored"},
			want:   "postgresql://u:p@pg.internal/history",
		},
		{
			name:    "url with wrong scheme",
			config:  config.DatabaseConfig{URL: "mysql://u@h/db"},
			wantErr: "DATABASE_URL",
		},
		{
			name:    "lists every missing field",
			config:  config.DatabaseConfig{Port: "5432"},
			wantErr: "missing DB_HOST, DB_USER, DB_NAME",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildPostgresDSN(tt.config)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewPostgres(t *testing.T) {
	conf := config.DatabaseConfig{
		Host:               "db",
		Port:               "5432",
		User:               "relay",
		Password:           "pw",
		Name:               "apkrelay",
		MaxOpenConns:       10,
		MaxIdleConns:       5,
		ConnMaxLifetimeSec: 300,
	}

	tests := []struct {
		name       string
		conf       config.DatabaseConfig
		setupMocks func(t *testing.T) (*sql.DB, sqlmock.Sqlmock, error)
		wantErr    string
	}{
		{
			name: "success",
			conf: conf,
			setupMocks: func(t *testing.T) (*sql.DB, sqlmock.Sqlmock, error) {
				db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
				require.NoError(t, err)
				mock.ExpectPing()
				mock.ExpectClose()
				return db, mock, nil
			},
		},
		{
			name: "open error",
			conf: conf,
			setupMocks: func(t *testing.T) (*sql.DB, sqlmock.Sqlmock, error) {
				return nil, nil, errors.New("open error")
			},
			wantErr: "sql open: open error",
		},
		{
			name: "ping error closes the pool",
			conf: conf,
			setupMocks: func(t *testing.T) (*sql.DB, sqlmock.Sqlmock, error) {
				db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
				require.NoError(t, err)
				mock.ExpectPing().WillReturnError(errors.New("ping failed"))
				mock.ExpectClose()
				return db, mock, nil
			},
			wantErr: "db ping: ping failed",
		},
		{
			name:    "invalid config",
			conf:    config.DatabaseConfig{},
			wantErr: "invalid database config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var mock sqlmock.Sqlmock
			if tt.setupMocks != nil {
				db, m, openErr := tt.setupMocks(t)
				mock = m
				orig := sqlOpen
				sqlOpen = func(driverName, dataSourceName string) (*sql.DB, error) {
					assert.Equal(t, "postgres://relay:pw@db:5432/apkrelay", dataSourceName)
					return db, openErr
				}
				t.Cleanup(func() { sqlOpen = orig })
			}

			gotDB, err := NewPostgres(context.Background(), tt.conf, zap.NewNop())
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, gotDB)
			} else {
				require.NoError(t, err)
				assert.Equal(t, 10, gotDB.Stats().MaxOpenConnections)
				_ = gotDB.Close()
			}
			if mock != nil {
				assert.NoError(t, mock.ExpectationsWereMet())
			}
		})
	}
}

func TestRedactHost(t *testing.T) {
	assert.Equal(t, "db:5432/apkrelay", redactHost("postgres://relay:pw@db:5432/apkrelay?sslmode=disable"))
}
