package util

import "testing"

func TestRoundupRounddown(t *testing.T) {
	cases := []struct{ v, b, down, up uintptr }{
		{0, 4096, 0, 0},
		{1, 4096, 0, 4096},
		{4096, 4096, 4096, 4096},
		{4097, 4096, 4096, 8192},
	}
	for _, c := range cases {
		if got := Rounddown(c.v, c.b); got != c.down {
			t.Errorf("Rounddown(%d,%d) = %d, want %d", c.v, c.b, got, c.down)
		}
		if got := Roundup(c.v, c.b); got != c.up {
			t.Errorf("Roundup(%d,%d) = %d, want %d", c.v, c.b, got, c.up)
		}
	}
}

func TestMin(t *testing.T) {
	if Min(3, 5) != 3 {
		t.Fatal("Min(3,5) != 3")
	}
	if Min(uintptr(9), uintptr(2)) != 2 {
		t.Fatal("Min(9,2) != 2")
	}
}
