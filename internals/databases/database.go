package database

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"tutoring_backend/internals/configs"
	billingModel "tutoring_backend/internals/features/billing/model"
	calendarModel "tutoring_backend/internals/features/calendar/model"
	tutoringModel "tutoring_backend/internals/features/tutoring/model"
)

var DB *gorm.DB

func ConnectDB() {
	log.Println("🔌 Connecting to PostgreSQL...")

	sslmode := getenv("DB_SSLMODE", "require")
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s&application_name=tutoring&options=-c statement_timeout=5000",
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_HOST"),
		os.Getenv("DB_PORT"),
		os.Getenv("DB_NAME"),
		sslmode,
	)

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true, // PgBouncer transaction pooling
	}), &gorm.Config{
		Logger:         configs.NewGormLogger(),
		TranslateError: true,
	})
	if err != nil {
		log.Fatalf("❌ DB connect failed: %v", err)
	}
	DB = db
	log.Println("✅ DB connected.")
}

func TunePool() {
	sqlDB, err := DB.DB()
	if err != nil {
		log.Printf("pool tune err: %v", err)
		return
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxIdleTime(60 * time.Second)
	sqlDB.SetConnMaxLifetime(10 * time.Minute)
}

// Models lists every table owned by the service, in dependency order.
func Models() []any {
	return []any{
		&calendarModel.YearModel{},
		&calendarModel.TermModel{},
		&calendarModel.WeekModel{},

		&billingModel.ProductModel{},
		&billingModel.PriceModel{},
		&billingModel.LocalInvoiceModel{},
		&billingModel.InvoiceLineModel{},
		&billingModel.ReconcileTaskModel{},
		&billingModel.LedgerEventModel{},
		&billingModel.BasketItemModel{},

		&tutoringModel.CustomerModel{},
		&tutoringModel.StudentModel{},
		&tutoringModel.GroupModel{},
		&tutoringModel.EnrolmentModel{},
		&tutoringModel.LessonModel{},
		&tutoringModel.AttendanceModel{},
	}
}

func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	log.Printf("[INFO] migrated %d tables", len(Models()))
	return nil
}

func Ping() error {
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
