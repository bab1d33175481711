// Package cpurange expands and condenses human-friendly ranges of integer
// ids, such as "0-2,5,8-9", for describing CPU ids and cell ids without
// spelling out every element. It is a standalone helper: cmd/hvctl's create
// command takes a plain comma-separated cpu list and does not use it.
//
// Adapted from the teacher's ranges package (SplitList/UnsplitRange): this
// domain has no string prefix to compress (a CPU id is just a number), so
// the prefix/trie machinery of the original is dropped and only the numeric
// range split/join survives.
package cpurange

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ParseList expands a comma-separated list of ids and id ranges ("0-2,5,8-9")
// into a deduplicated, ascending slice of ids. An empty string yields an
// empty, non-nil slice.
func ParseList(s string) ([]int, error) {
	ids := map[int]bool{}

	s = strings.TrimSpace(s)
	if s == "" {
		return []int{}, nil
	}

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, errors.New("empty element in id list")
		}

		if !strings.Contains(part, "-") {
			n, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("invalid id %q: %v", part, err)
			}
			ids[n] = true
			continue
		}

		lo, hi, err := subrange(part)
		if err != nil {
			return nil, err
		}
		for n := lo; n <= hi; n++ {
			ids[n] = true
		}
	}

	res := make([]int, 0, len(ids))
	for id := range ids {
		res = append(res, id)
	}
	sort.Ints(res)

	return res, nil
}

func subrange(s string) (int, int, error) {
	limits := strings.SplitN(s, "-", 2)
	if len(limits) != 2 {
		return 0, 0, fmt.Errorf("invalid range %q", s)
	}

	lo, err := strconv.Atoi(limits[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid range %q: %v", s, err)
	}
	hi, err := strconv.Atoi(limits[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid range %q: %v", s, err)
	}
	if lo > hi {
		return 0, 0, fmt.Errorf("invalid range %q: min > max", s)
	}

	return lo, hi, nil
}

// FormatList condenses a slice of ids into a compact range string, e.g.
// [0,1,2,5,8,9] -> "0-2,5,8-9". Duplicate ids are collapsed.
func FormatList(ids []int) string {
	if len(ids) == 0 {
		return ""
	}

	sorted := append([]int(nil), ids...)
	sort.Ints(sorted)

	var parts []string

	start := sorted[0]
	prev := sorted[0]

	flush := func(end int) {
		if start == end {
			parts = append(parts, strconv.Itoa(start))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", start, end))
		}
	}

	for _, n := range sorted[1:] {
		if n == prev {
			continue // dedup
		}
		if n == prev+1 {
			prev = n
			continue
		}
		flush(prev)
		start, prev = n, n
	}
	flush(prev)

	return strings.Join(parts, ",")
}
