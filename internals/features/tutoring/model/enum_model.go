package model

import "strings"

// Cadence is a customer's billing frequency.
type Cadence string

const (
	CadenceWeekly      Cadence = "weekly"
	CadenceFortnightly Cadence = "fortnightly"
	CadenceHalfTermly  Cadence = "half-termly"
	CadenceTermly      Cadence = "termly"
)

var cadenceWeeks = map[Cadence]int{
	CadenceWeekly:      1,
	CadenceFortnightly: 2,
	CadenceHalfTermly:  5,
	CadenceTermly:      10,
}

// Weeks is the billing window length; zero for unknown cadences.
func (c Cadence) Weeks() int { return cadenceWeeks[c] }

func (c Cadence) Valid() bool { _, ok := cadenceWeeks[c]; return ok }

// Cadences lists every cadence, shortest first.
func Cadences() []Cadence {
	return []Cadence{CadenceWeekly, CadenceFortnightly, CadenceHalfTermly, CadenceTermly}
}

// ParseCadence also accepts "half_termly" and "halftermly".
func ParseCadence(s string) (Cadence, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "half_termly", "halftermly":
		s = string(CadenceHalfTermly)
	}
	c := Cadence(s)
	return c, c.Valid()
}

// Course is the subject a group teaches.
type Course string

const (
	CourseJuniorMaths Course = "Junior Maths"
	CourseYear11Adv   Course = "11 Advanced"
	CourseYear11Ext1  Course = "11 Ext 1"
	CourseYear12Adv   Course = "12 Advanced"
	CourseYear12Ext1  Course = "12 Ext 1"
	CourseYear12Ext2  Course = "12 Ext 2"
)
