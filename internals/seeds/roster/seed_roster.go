package roster

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/bytedance/sonic"
	"gorm.io/gorm"

	billingModel "tutoring_backend/internals/features/billing/model"
	tutModel "tutoring_backend/internals/features/tutoring/model"
	tutService "tutoring_backend/internals/features/tutoring/service"
	"tutoring_backend/internals/helpers/dbtime"
)

type ProductSeed struct {
	ProductLedgerID string `json:"product_ledger_id"`
	ProductName     string `json:"product_name"`
	PriceLedgerID   string `json:"price_ledger_id"`
	UnitAmount      int64  `json:"unit_amount"`
	Currency        string `json:"currency"`
}

type GroupSeed struct {
	Key               string  `json:"key"`
	GroupTutor        string  `json:"group_tutor"`
	GroupCourse       *string `json:"group_course"`
	GroupDayOfWeek    *int    `json:"group_day_of_week"`
	GroupTimeOfDay    *string `json:"group_time_of_day"`
	GroupLessonLength int     `json:"group_lesson_length"`
	ProductLedgerID   string  `json:"product_ledger_id"`
}

type StudentSeed struct {
	StudentName string   `json:"student_name"`
	Groups      []string `json:"groups"`
}

type CustomerSeed struct {
	CustomerLedgerID string        `json:"customer_ledger_id"`
	CustomerName     string        `json:"customer_name"`
	CustomerCadence  string        `json:"customer_cadence"`
	Students         []StudentSeed `json:"students"`
}

type File struct {
	Products  []ProductSeed  `json:"products"`
	Groups    []GroupSeed    `json:"groups"`
	Customers []CustomerSeed `json:"customers"`
}

type Report struct {
	Products   int `json:"products"`
	Groups     int `json:"groups"`
	Customers  int `json:"customers"`
	Students   int `json:"students"`
	Enrolments int `json:"enrolments"`
}

// SeedRosterFromJSON loads demo catalogue and roster data. Rows that already
// exist (by ledger id, or tutor+course for groups, or customer+name for
// students) are reused, so seeding twice changes nothing.
func SeedRosterFromJSON(ctx context.Context, db *gorm.DB, filePath string) (Report, error) {
	log.Println("[SEED] reading", filePath)
	raw, err := os.ReadFile(filePath)
	if err != nil {
		return Report{}, fmt.Errorf("read seed file: %w", err)
	}
	var f File
	if err := sonic.Unmarshal(raw, &f); err != nil {
		return Report{}, fmt.Errorf("decode seed file: %w", err)
	}
	return Seed(ctx, db, f)
}

func Seed(ctx context.Context, db *gorm.DB, f File) (Report, error) {
	var rep Report
	roster := tutService.NewRosterService(db)
	db = db.WithContext(ctx)

	products := map[string]billingModel.ProductModel{}
	for _, p := range f.Products {
		m, created, err := seedProduct(db, p)
		if err != nil {
			return rep, fmt.Errorf("product %s: %w", p.ProductLedgerID, err)
		}
		products[p.ProductLedgerID] = m
		if created {
			rep.Products++
		}
	}

	groups := map[string]tutModel.GroupModel{}
	for _, g := range f.Groups {
		m, created, err := seedGroup(ctx, db, roster, g, products)
		if err != nil {
			return rep, fmt.Errorf("group %s: %w", g.Key, err)
		}
		groups[g.Key] = m
		if created {
			rep.Groups++
		}
	}

	for _, c := range f.Customers {
		var existing int64
		if err := db.Model(&tutModel.CustomerModel{}).Where("customer_ledger_id = ?", c.CustomerLedgerID).Count(&existing).Error; err != nil {
			return rep, err
		}
		cust := &tutModel.CustomerModel{
			CustomerLedgerID: c.CustomerLedgerID,
			CustomerName:     c.CustomerName,
			CustomerIsActive: true,
			CustomerCadence:  tutModel.Cadence(c.CustomerCadence),
		}
		if err := roster.UpsertCustomer(ctx, cust); err != nil {
			return rep, fmt.Errorf("customer %s: %w", c.CustomerLedgerID, err)
		}
		if existing == 0 {
			rep.Customers++
		}

		for _, s := range c.Students {
			st, created, err := seedStudent(ctx, db, roster, cust, s)
			if err != nil {
				return rep, fmt.Errorf("student %s: %w", s.StudentName, err)
			}
			if created {
				rep.Students++
			}
			for _, key := range s.Groups {
				g, ok := groups[key]
				if !ok {
					return rep, fmt.Errorf("student %s: unknown group %q", s.StudentName, key)
				}
				res := db.Where("enrolment_group_id = ? AND enrolment_student_id = ?", g.GroupID, st.StudentID).
					Limit(1).Find(&tutModel.EnrolmentModel{})
				if res.Error != nil {
					return rep, res.Error
				}
				if res.RowsAffected > 0 {
					continue
				}
				if err := roster.Enrol(ctx, g.GroupID, st.StudentID); err != nil {
					return rep, err
				}
				rep.Enrolments++
			}
		}
	}

	log.Printf("[SEED] products=%d groups=%d customers=%d students=%d enrolments=%d",
		rep.Products, rep.Groups, rep.Customers, rep.Students, rep.Enrolments)
	return rep, nil
}

func seedProduct(db *gorm.DB, p ProductSeed) (billingModel.ProductModel, bool, error) {
	var m billingModel.ProductModel
	err := db.Where("product_ledger_id = ?", p.ProductLedgerID).First(&m).Error
	if err == nil {
		return m, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return m, false, err
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		m = billingModel.ProductModel{
			ProductLedgerID: p.ProductLedgerID,
			ProductName:     tutModel.NormalizeName(p.ProductName),
			ProductActive:   true,
		}
		if p.PriceLedgerID != "" {
			price := billingModel.PriceModel{
				PriceLedgerID:        p.PriceLedgerID,
				PriceProductLedgerID: p.ProductLedgerID,
				PriceUnitAmount:      p.UnitAmount,
				PriceCurrency:        p.Currency,
				PriceActive:          true,
			}
			if err := tx.Create(&price).Error; err != nil {
				return err
			}
			m.ProductDefaultPriceLedgerID = &p.PriceLedgerID
		}
		return tx.Create(&m).Error
	})
	return m, err == nil, err
}

func seedGroup(ctx context.Context, db *gorm.DB, roster *tutService.RosterService, g GroupSeed,
	products map[string]billingModel.ProductModel) (tutModel.GroupModel, bool, error) {
	var existing tutModel.GroupModel
	q := db.Where("group_tutor = ?", tutModel.NormalizeName(g.GroupTutor))
	if g.GroupCourse != nil {
		q = q.Where("group_course = ?", *g.GroupCourse)
	} else {
		q = q.Where("group_course IS NULL")
	}
	res := q.Limit(1).Find(&existing)
	if res.Error != nil {
		return existing, false, res.Error
	}
	if res.RowsAffected > 0 {
		return existing, false, nil
	}

	m := tutModel.GroupModel{
		GroupTutor:        tutModel.NormalizeName(g.GroupTutor),
		GroupDayOfWeek:    g.GroupDayOfWeek,
		GroupLessonLength: g.GroupLessonLength,
	}
	if g.GroupCourse != nil {
		c := tutModel.Course(*g.GroupCourse)
		m.GroupCourse = &c
	}
	if g.GroupTimeOfDay != nil {
		tod, err := dbtime.Parse(*g.GroupTimeOfDay)
		if err != nil {
			return m, false, err
		}
		m.GroupTimeOfDay = &tod
	}
	if g.ProductLedgerID != "" {
		p, ok := products[g.ProductLedgerID]
		if !ok {
			return m, false, fmt.Errorf("unknown product %q", g.ProductLedgerID)
		}
		m.GroupProductID = &p.ProductID
	}
	if err := roster.CreateGroup(ctx, &m); err != nil {
		return m, false, err
	}
	return m, true, nil
}

func seedStudent(ctx context.Context, db *gorm.DB, roster *tutService.RosterService,
	cust *tutModel.CustomerModel, s StudentSeed) (tutModel.StudentModel, bool, error) {
	var st tutModel.StudentModel
	res := db.Where("student_customer_id = ? AND student_name = ?", cust.CustomerID, tutModel.NormalizeName(s.StudentName)).
		Limit(1).Find(&st)
	if res.Error != nil {
		return st, false, res.Error
	}
	if res.RowsAffected > 0 {
		return st, false, nil
	}
	st = tutModel.StudentModel{
		StudentCustomerID: cust.CustomerID,
		StudentName:       s.StudentName,
		StudentIsActive:   true,
	}
	if err := roster.CreateStudent(ctx, &st); err != nil {
		return st, false, err
	}
	return st, true, nil
}
