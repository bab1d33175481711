package cpurange

import (
	"fmt"
	"testing"
)

func TestParseList(t *testing.T) {
	cases := []struct {
		in   string
		want []int
	}{
		{"", []int{}},
		{"0", []int{0}},
		{"0-2", []int{0, 1, 2}},
		{"0-2,5,8-9", []int{0, 1, 2, 5, 8, 9}},
		{"5,0-2", []int{0, 1, 2, 5}},
		{"1,1,1", []int{1}},
	}

	for _, c := range cases {
		got, err := ParseList(c.in)
		if err != nil {
			t.Fatalf("ParseList(%q): %v", c.in, err)
		}

		gs := fmt.Sprintf("%v", got)
		ws := fmt.Sprintf("%v", c.want)
		if gs != ws {
			t.Fatalf("ParseList(%q) = %v, want %v", c.in, gs, ws)
		}
	}
}

func TestParseListErrors(t *testing.T) {
	bad := []string{"a", "1-", "-1", "3-1", "1,,2"}

	for _, in := range bad {
		if _, err := ParseList(in); err == nil {
			t.Fatalf("ParseList(%q): expected error", in)
		}
	}
}

func TestFormatList(t *testing.T) {
	cases := []struct {
		in   []int
		want string
	}{
		{nil, ""},
		{[]int{0}, "0"},
		{[]int{0, 1, 2}, "0-2"},
		{[]int{9, 8, 5, 2, 1, 0}, "0-2,5,8-9"},
		{[]int{1, 1, 1}, "1"},
	}

	for _, c := range cases {
		got := FormatList(c.in)
		if got != c.want {
			t.Fatalf("FormatList(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	ids, err := ParseList("0-3,7,10-12")
	if err != nil {
		t.Fatal(err)
	}

	s := FormatList(ids)
	ids2, err := ParseList(s)
	if err != nil {
		t.Fatal(err)
	}

	if fmt.Sprintf("%v", ids) != fmt.Sprintf("%v", ids2) {
		t.Fatalf("round trip mismatch: %v -> %q -> %v", ids, s, ids2)
	}
}
