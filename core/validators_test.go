package core

import (
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitValidators_label(t *testing.T) {
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	InitValidators(validate, translator)

	type form struct {
		Category string `json:"category" validate:"required,label"`
	}
	tests := []struct {
		value   string
		wantErr string
	}{
		{value: "General"},
		{value: "C++"},
		{value: "C#"},
		{value: "Data-Science"},
		{value: "UI/UX Design"},
		{value: "Node.js"},
		{value: "R&D"},
		{value: "Économie"},
		{value: "machine_learning 2"},
		{value: "", wantErr: "this field is required"},
		{value: "-leading", wantErr: "only letters, digits, spaces and + # & . / _ - are allowed"},
		{value: "<script>", wantErr: "only letters, digits, spaces and + # & . / _ - are allowed"},
		{value: `"quoted"`, wantErr: "only letters, digits, spaces and + # & . / _ - are allowed"},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			err := validate.Struct(form{Category: tt.value})
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var verrs validator.ValidationErrors
			require.ErrorAs(t, err, &verrs)
			require.Len(t, verrs, 1)
			assert.Equal(t, "category", verrs[0].Field())
			assert.Equal(t, tt.wantErr, verrs[0].Translate(translator))
		})
	}
}
