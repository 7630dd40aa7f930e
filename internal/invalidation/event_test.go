package invalidation

import (
	"testing"
	"time"
)

func mustTS() time.Time { return time.Date(2025, 10, 26, 12, 30, 45, 0, time.UTC) }

func TestEvent_Validate(t *testing.T) {
	ok := Event{Version: 1, Op: "update", Dataset: "suikei", TS: mustTS()}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected: %v", err)
	}

	cases := map[string]Event{
		"version": {Version: 2, Op: "update", Dataset: "suikei", TS: mustTS()},
		"op":      {Version: 1, Op: "truncate", Dataset: "suikei", TS: mustTS()},
		"dataset": {Version: 1, Op: "reload", Dataset: "  ", TS: mustTS()},
		"ts":      {Version: 1, Op: "reload", Dataset: "suikei"},
	}
	for name, ev := range cases {
		if err := ev.Validate(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
