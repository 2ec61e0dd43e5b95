package configs

import (
	"context"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	gormLogger "gorm.io/gorm/logger"
	"gorm.io/gorm/utils"
)

var (
	JWTSecret            string
	LedgerSecretKey      string
	WebhookSigningSecret string
)

// =======================
// ENV LOADER
// =======================
func LoadEnv() {
	if os.Getenv("RAILWAY_ENVIRONMENT") == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("⚠️ .env file not found, using system ENV")
		} else {
			log.Println("✅ .env file loaded")
		}
	} else {
		log.Println("🚀 Running in Railway, using system ENV")
	}

	JWTSecret = GetEnv("JWT_SECRET")
	LedgerSecretKey = GetEnv("STRIPE_SECRET_KEY")
	WebhookSigningSecret = GetEnv("WEBHOOK_SIGNING_SECRET")

	if JWTSecret == "" {
		log.Println("❌ JWT_SECRET is not set!")
	}
	if LedgerSecretKey == "" {
		log.Println("❌ STRIPE_SECRET_KEY is not set!")
	}
	if WebhookSigningSecret == "" {
		log.Println("❌ WEBHOOK_SIGNING_SECRET is not set!")
	}
}

func GetEnv(key string, defaultValue ...string) string {
	value, exists := os.LookupEnv(key)
	if !exists && len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return value
}

func GetEnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[WARN] %s=%q is not an integer, using %d", key, v, def)
		return def
	}
	return i
}

func GetEnvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[WARN] %s=%q is not a duration, using %s", key, v, def)
		return def
	}
	return d
}

func GetEnvBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "":
		return def
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// =======================
// APP CONFIG
// =======================

type AppConfig struct {
	Port     string
	Timezone string
	Currency string

	AutoMigrate bool

	// ledger calls
	InvoiceWorkers  int
	LedgerTimeout   time.Duration
	CustomerTimeout time.Duration

	// reconcile outbox
	ReconcileMaxAttempts int
	ReconcileBaseDelay   time.Duration
	ReconcileMaxDelay    time.Duration

	// cron specs per cadence; empty disables the job
	CronWeekly      string
	CronFortnightly string
	CronHalfTermly  string
	CronTermly      string
	CronReconcile   string
}

func Load() AppConfig {
	return AppConfig{
		Port:                 GetEnv("PORT", "3000"),
		Timezone:             GetEnv("TUTORING_TZ", "Australia/Sydney"),
		Currency:             strings.ToLower(GetEnv("LEDGER_CURRENCY", "aud")),
		AutoMigrate:          GetEnvBool("AUTO_MIGRATE", false),
		InvoiceWorkers:       GetEnvInt("INVOICE_WORKERS", 4),
		LedgerTimeout:        GetEnvDuration("LEDGER_TIMEOUT", 15*time.Second),
		CustomerTimeout:      GetEnvDuration("CUSTOMER_TIMEOUT", 60*time.Second),
		ReconcileMaxAttempts: GetEnvInt("RECONCILE_MAX_ATTEMPTS", 8),
		ReconcileBaseDelay:   GetEnvDuration("RECONCILE_BASE_DELAY", 5*time.Second),
		ReconcileMaxDelay:    GetEnvDuration("RECONCILE_MAX_DELAY", 10*time.Minute),
		CronWeekly:           GetEnv("CRON_WEEKLY", "0 6 * * MON"),
		CronFortnightly:      GetEnv("CRON_FORTNIGHTLY", ""),
		CronHalfTermly:       GetEnv("CRON_HALF_TERMLY", ""),
		CronTermly:           GetEnv("CRON_TERMLY", ""),
		CronReconcile:        GetEnv("CRON_RECONCILE", "@every 30s"),
	}
}

// Location falls back to UTC when the zone database has no entry.
func (c AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Printf("[WARN] unknown timezone %q, falling back to UTC: %v", c.Timezone, err)
		return time.UTC
	}
	return loc
}

// =======================
// GORM LOGGER CUSTOM
// =======================
type GormLogger struct {
	SlowThreshold time.Duration
	LogLevel      gormLogger.LogLevel
}

func NewGormLogger() gormLogger.Interface {
	level := gormLogger.Warn
	if GetEnvBool("DB_LOG_QUERIES", false) {
		level = gormLogger.Info
	}
	return &GormLogger{
		SlowThreshold: 200 * time.Millisecond,
		LogLevel:      level,
	}
}

func (l *GormLogger) LogMode(level gormLogger.LogLevel) gormLogger.Interface {
	nl := *l
	nl.LogLevel = level
	return &nl
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormLogger.Info {
		log.Printf("[INFO] "+msg, data...)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormLogger.Warn {
		log.Printf("[WARN] "+msg, data...)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormLogger.Error {
		log.Printf("[ERROR] "+msg, data...)
	}
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= gormLogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()
	file := utils.FileWithLineNum()

	switch {
	case err != nil && l.LogLevel >= gormLogger.Error && err.Error() != "record not found":
		log.Printf("[ERROR] %s | %v | %s | %d rows | %s", file, err, elapsed, rows, sql)
	case elapsed > l.SlowThreshold && l.LogLevel >= gormLogger.Warn:
		log.Printf("[SLOW SQL] %s | %s | %d rows | %s", file, elapsed, rows, sql)
	case l.LogLevel >= gormLogger.Info:
		log.Printf("[QUERY] %s | %s | %d rows | %s", file, elapsed, rows, sql)
	}
}
