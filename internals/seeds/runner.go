package seeds

import (
	"context"

	"gorm.io/gorm"

	"tutoring_backend/internals/seeds/roster"
)

const DefaultRosterFile = "internals/seeds/roster/data_roster.json"

// RunAllSeeds loads the demo catalogue and roster. Safe to run repeatedly.
func RunAllSeeds(ctx context.Context, db *gorm.DB, rosterFile string) (roster.Report, error) {
	if rosterFile == "" {
		rosterFile = DefaultRosterFile
	}
	return roster.SeedRosterFromJSON(ctx, db, rosterFile)
}
