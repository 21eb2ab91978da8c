package booking_test

import (
	"testing"

	"github.com/aussiebroadwan/medibook/pkg/booking"
	"github.com/stretchr/testify/require"
)

func TestNewAppointmentValidate(t *testing.T) {
	t.Parallel()

	valid := booking.NewAppointment{DoctorID: 1, Date: "2026-11-02", PatientName: "Alice"}

	cases := map[string]struct {
		mutate func(*booking.NewAppointment)
		field  string
	}{
		"valid":         {func(*booking.NewAppointment) {}, ""},
		"age given":     {func(a *booking.NewAppointment) { a.PatientAge = booking.MaxPatientAge }, ""},
		"no doctor":     {func(a *booking.NewAppointment) { a.DoctorID = 0 }, "doctor_id"},
		"blank name":    {func(a *booking.NewAppointment) { a.PatientName = " " }, "patient_name"},
		"negative age":  {func(a *booking.NewAppointment) { a.PatientAge = -1 }, "patient_age"},
		"too old":       {func(a *booking.NewAppointment) { a.PatientAge = 151 }, "patient_age"},
		"bad date":      {func(a *booking.NewAppointment) { a.Date = "2026-13-40" }, "date"},
		"date and time": {func(a *booking.NewAppointment) { a.Date = "2026-11-02T10:00:00Z" }, "date"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			a := valid
			tc.mutate(&a)
			err := a.Validate()
			if tc.field == "" {
				require.NoError(t, err)
				return
			}
			var verr booking.ValidationError
			require.ErrorAs(t, err, &verr)
			require.Contains(t, verr, tc.field)
		})
	}
}
