package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskRUT(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"12345678-9", "***8-9"},
		{"  76543210-K ", "***0-K"},
		{"1-9", "***"},
		{"", "***"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MaskRUT(tt.in), tt.in)
	}
}

func TestMaskAccount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0012345678", "******5678"},
		{"0012 3456 78", "******5678"},
		{"1234", "****"},
		{"", "****"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MaskAccount(tt.in), tt.in)
	}
}

func TestMaskSensitiveText(t *testing.T) {
	got := MaskSensitiveText("Transferencia de 12345678-9 a cuenta 00123456789012 ref 998")
	assert.Equal(t, "Transferencia de ***8-9 a cuenta **********9012 ref 998", got)
	assert.Equal(t, "", MaskSensitiveText(""))
	assert.Equal(t, "pago factura 123", MaskSensitiveText("pago factura 123"))
}

func TestMaskerDisabledPassesThrough(t *testing.T) {
	off := Masker{}
	assert.Equal(t, "RUT 12345678-9", off.Text("RUT 12345678-9"))
	assert.Equal(t, "0012345678", off.Account("0012345678"))

	on := Masker{Enabled: true}
	assert.Equal(t, "RUT ***8-9", on.Text("RUT 12345678-9"))
	assert.Equal(t, "", on.Account(""))
}
