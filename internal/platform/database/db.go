package database

import (
	"fmt"
	"time"

	"github.com/SlpAus/fedivote/internal/platform/config"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DriverPostgres 和 DriverSqlite 是支持的数据库驱动名
const (
	DriverSqlite   = "sqlite"
	DriverPostgres = "postgres"
)

// OpenDB 根据配置打开数据库连接
func OpenDB(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	// GORM日志通过zap输出，只记录慢查询和错误
	gormLogger := logger.New(
		zap.NewStdLog(log.Named("gorm")),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverSqlite, "":
		dialector = sqlite.Open(cfg.DSN)
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	if db.Dialector.Name() == DriverSqlite {
		// SQLite 只允许单写者，连接池收敛为一个连接以避免 SQLITE_BUSY
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	log.Info("数据库连接成功", zap.String("driver", db.Dialector.Name()))
	return db, nil
}

// SupportsRowLocks 报告当前方言是否支持 SELECT ... FOR UPDATE
func SupportsRowLocks(db *gorm.DB) bool {
	return db.Dialector.Name() == DriverPostgres
}
