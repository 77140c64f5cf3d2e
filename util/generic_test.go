// util/generic_test.go
// Copyright(c) 2025-2026 firewatch contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package util

import (
	"slices"
	"strconv"
	"testing"
	"time"
)

func TestTransientMap(t *testing.T) {
	m := NewTransientMap[string, int]()

	m.Add("a", 1, time.Hour)
	if v, ok := m.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v", v, ok)
	}

	// An entry whose time has already passed is gone on the next Get.
	m.Add("b", 2, -time.Second)
	if _, ok := m.Get("b"); ok {
		t.Error("expired entry still present")
	}
	if v, ok := m.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) after flush = %d, %v", v, ok)
	}

	m.Delete("a")
	if _, ok := m.Get("a"); ok {
		t.Error("deleted entry still present")
	}
}

func TestRingBuffer(t *testing.T) {
	r := NewRingBuffer[int](3)
	if r.Size() != 0 {
		t.Errorf("empty buffer size %d", r.Size())
	}

	r.Add(1, 2)
	if r.Size() != 2 || r.Get(0) != 1 || r.Get(1) != 2 {
		t.Errorf("buffer %d: %d %d", r.Size(), r.Get(0), r.Get(1))
	}

	// Old entries are discarded once the buffer fills.
	r.Add(3, 4, 5)
	if r.Size() != 3 {
		t.Fatalf("full buffer size %d", r.Size())
	}
	for i, want := range []int{3, 4, 5} {
		if got := r.Get(i); got != want {
			t.Errorf("Get(%d) = %d, expected %d", i, got, want)
		}
	}
}

func TestSelect(t *testing.T) {
	if Select(true, "a", "b") != "a" || Select(false, "a", "b") != "b" {
		t.Error("Select")
	}
	if Select(true, 1, 2) != 1 {
		t.Error("Select int")
	}
}

func TestSortedMapKeys(t *testing.T) {
	m := map[string]int{"c": 0, "a": 1, "b": 2}
	if got := SortedMapKeys(m); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("SortedMapKeys: %v", got)
	}
}

func TestDuplicateMap(t *testing.T) {
	m := map[string]int{"a": 1, "b": 2}
	d := DuplicateMap(m)
	if len(d) != 2 || d["a"] != 1 || d["b"] != 2 {
		t.Errorf("DuplicateMap: %v", d)
	}

	d["a"] = 10
	if m["a"] != 1 {
		t.Error("copy aliases the original")
	}
}

func TestMapSlice(t *testing.T) {
	got := MapSlice([]int{1, 2, 3}, strconv.Itoa)
	if !slices.Equal(got, []string{"1", "2", "3"}) {
		t.Errorf("MapSlice: %v", got)
	}
}

func TestFilterSlice(t *testing.T) {
	got := FilterSlice([]int{1, 2, 3, 4}, func(v int) bool { return v%2 == 0 })
	if !slices.Equal(got, []int{2, 4}) {
		t.Errorf("FilterSlice: %v", got)
	}
	if got := FilterSlice(nil, func(int) bool { return true }); got != nil {
		t.Errorf("FilterSlice(nil): %v", got)
	}
}
