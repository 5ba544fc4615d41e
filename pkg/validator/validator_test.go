package validator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type dish struct {
	Name string `json:"name" validate:"required"`
}

type pairingPayload struct {
	Dishes      []dish `json:"dishes" validate:"required,min=1,dive"`
	Preferences string `json:"preferences" validate:"max=10"`
}

func TestValidateStructSuccess(t *testing.T) {
	err := ValidateStruct(pairingPayload{Dishes: []dish{{Name: "Duck"}}})
	require.NoError(t, err)
}

func TestValidateStructReportsJSONFieldPaths(t *testing.T) {
	err := ValidateStruct(pairingPayload{
		Dishes:      []dish{{Name: ""}},
		Preferences: "far too long for the limit",
	})
	require.Error(t, err)

	vErrs, ok := err.(ValidationErrors)
	require.True(t, ok, "expected ValidationErrors, got %T", err)
	require.Len(t, vErrs, 2)

	fields := map[string]string{}
	for _, v := range vErrs {
		fields[v.Field] = v.Tag
	}
	require.Equal(t, "required", fields["dishes[0].name"])
	require.Equal(t, "max", fields["preferences"])
}

func TestValidationErrorsMessage(t *testing.T) {
	require.Equal(t, "validation failed", ValidationErrors{}.Error())
	require.Equal(t,
		"dishes failed on min=1; name failed on required",
		ValidationErrors{
			{Field: "dishes", Tag: "min", Param: "1"},
			{Field: "name", Tag: "required"},
		}.Error())
}
