package booking

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

const MaxPatientAge = 150

// ValidationError maps a field to the reason it was rejected.
type ValidationError map[string]string

func (v ValidationError) Error() string {
	parts := make([]string, 0, len(v))
	for _, f := range slices.Sorted(maps.Keys(v)) {
		parts = append(parts, fmt.Sprintf("%s %s", f, v[f]))
	}
	return "invalid appointment: " + strings.Join(parts, "; ")
}

// Validate applies the booking form's checks.
func (a NewAppointment) Validate() error {
	errs := ValidationError{}

	if a.DoctorID <= 0 {
		errs["doctor_id"] = "is required"
	}
	if strings.TrimSpace(a.PatientName) == "" {
		errs["patient_name"] = "is required"
	}
	if a.PatientAge < 0 || a.PatientAge > MaxPatientAge {
		errs["patient_age"] = fmt.Sprintf("must be between 1 and %d", MaxPatientAge)
	}
	if _, err := time.Parse(time.DateOnly, a.Date); err != nil {
		errs["date"] = "must be YYYY-MM-DD"
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
