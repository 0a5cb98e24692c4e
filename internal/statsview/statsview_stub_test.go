//go:build !statsview

package statsview

import (
	"bytes"
	"testing"
)

func TestStubStartIsSilent(t *testing.T) {
	if Enabled {
		t.Fatalf("Enabled = true without the statsview tag")
	}
	var buf bytes.Buffer
	Start("localhost:0", &buf)
	if buf.Len() != 0 {
		t.Fatalf("Start wrote %q, want nothing", buf.String())
	}
}
