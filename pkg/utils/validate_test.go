package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type sampleRequest struct {
	Name    string `json:"name" validate:"required"`
	BaseURL string `json:"base_url" validate:"required,url"`
	Retries int    `json:"retries" validate:"min=0,max=10"`
}

func TestValidate(t *testing.T) {
	_, err := Validate(sampleRequest{Name: "sicop", BaseURL: "https://api.example.cl", Retries: 3})
	assert.NoError(t, err)

	_, err = Validate(sampleRequest{BaseURL: "not a url", Retries: 11})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "field 'Name' failed rule 'required'")
	assert.Contains(t, err.Error(), "field 'BaseURL' failed rule 'url'")
	assert.Contains(t, err.Error(), "field 'Retries' failed rule 'max'")
}

func TestValidateValue(t *testing.T) {
	assert.NoError(t, ValidateValue("compras@municipio.cl", "email"))
	assert.Error(t, ValidateValue("not-an-email", "email"))
}
