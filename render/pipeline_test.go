package render

import "testing"

func TestBytesToBytecode(t *testing.T) {
	// SPIR-V magic number, little endian
	code := bytesToBytecode([]byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00})
	if len(code) != 2 || code[0] != 0x07230203 || code[1] != 0x00010000 {
		t.Errorf("got %#x", code)
	}
}

func TestCreateShaderModuleRejectsBadSize(t *testing.T) {
	pipeline := &Pipeline{}

	for _, code := range [][]byte{nil, {0x03, 0x02, 0x23}} {
		if _, err := pipeline.createShaderModule(code, "vertex"); err == nil {
			t.Errorf("expected an error for %d bytes", len(code))
		}
	}
}
