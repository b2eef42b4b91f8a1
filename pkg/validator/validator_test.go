package validator

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
)

type slotPayload struct {
	UserID   string `json:"user_id" validate:"required"`
	Start    string `json:"start" validate:"required,clock"`
	Duration int    `json:"duration_minutes" validate:"gt=0,lte=1440"`
	Timezone string `json:"timezone" validate:"omitempty,timezone_name"`
}

func TestValidateStructSuccess(t *testing.T) {
	payload := slotPayload{UserID: "u1", Start: "18:30", Duration: 60, Timezone: "Europe/Berlin"}
	require.NoError(t, ValidateStruct(payload))
}

func TestValidateStructFailures(t *testing.T) {
	payload := slotPayload{Start: "25:00", Duration: 0, Timezone: "Mars/Olympus"}

	err := ValidateStruct(payload)
	require.Error(t, err)

	vErrs, ok := err.(ValidationErrors)
	require.True(t, ok, "expected ValidationErrors, got %T", err)
	require.Len(t, vErrs, 4)

	fields := make(map[string]string, len(vErrs))
	for _, v := range vErrs {
		fields[v.Field] = v.Tag
	}
	require.Equal(t, "required", fields["user_id"])
	require.Equal(t, "clock", fields["start"])
	require.Equal(t, "timezone_name", fields["timezone"])
}

func TestIsTimezone(t *testing.T) {
	for _, tz := range []string{"UTC", "America/New_York", "UTC+05:30", "GMT-8", "utc+0530"} {
		require.True(t, IsTimezone(tz), tz)
	}
	for _, tz := range []string{"", "Nowhere/City", "UTC+5:3"} {
		require.False(t, IsTimezone(tz), tz)
	}
}

func TestRegisterValidation(t *testing.T) {
	err := RegisterValidation("pod_status", func(fl validator.FieldLevel) bool {
		return fl.Field().String() == "active"
	})
	require.NoError(t, err)

	type custom struct {
		Value string `validate:"pod_status"`
	}

	require.NoError(t, ValidateStruct(custom{Value: "active"}))
	require.Error(t, ValidateStruct(custom{Value: "other"}))
}
