package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type sample struct {
	Nickname string `validate:"required,nickname"`
	DeviceID string `validate:"omitempty,deviceid"`
}

func TestValidate(t *testing.T) {
	assert.Nil(t, Validate(sample{Nickname: "Mage Lord", DeviceID: "ios-3F2A"}))
	assert.Nil(t, Validate(sample{Nickname: "Игрок"}))

	errs := Validate(sample{Nickname: "   ", DeviceID: "has space"})
	assert.Equal(t, map[string]string{"Nickname": "nickname", "DeviceID": "deviceid"}, errs)

	errs = Validate(sample{Nickname: strings.Repeat("a", 33)})
	assert.Equal(t, "nickname", errs["Nickname"])

	errs = Validate(sample{})
	assert.Equal(t, "required", errs["Nickname"])
}
