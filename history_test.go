package qorzendb

import "testing"

func TestParseFrequency(t *testing.T) {
	cases := map[string]int64{
		"30s": 30,
		"5m":  5 * 60,
		"2h":  2 * 3600,
		"1d":  86400,
		"1w":  604800,
	}
	for freq, wantSeconds := range cases {
		d, err := ParseFrequency(freq)
		if err != nil {
			t.Fatalf("ParseFrequency(%q) returned error: %v", freq, err)
		}
		if int64(d.Seconds()) != wantSeconds {
			t.Errorf("ParseFrequency(%q) = %v, want %ds", freq, d, wantSeconds)
		}
	}
}

func TestParseFrequency_Invalid(t *testing.T) {
	for _, freq := range []string{"", "abc", "10", "10x", "-5m"} {
		if _, err := ParseFrequency(freq); err == nil {
			t.Errorf("ParseFrequency(%q) expected an error, got nil", freq)
		}
	}
}

func TestGetSchedule_UnknownReturnsFalse(t *testing.T) {
	hm := &HistoryManager{schedule: map[string]*HistorySchedule{}}
	if _, ok := hm.GetSchedule("missing"); ok {
		t.Error("expected GetSchedule to report false for an unknown id")
	}
}

func TestGetAllSchedules(t *testing.T) {
	hm := &HistoryManager{schedule: map[string]*HistorySchedule{
		"1": {ID: "1", Name: "nightly"},
		"2": {ID: "2", Name: "hourly"},
	}}
	if got := len(hm.GetAllSchedules()); got != 2 {
		t.Errorf("GetAllSchedules() returned %d schedules, want 2", got)
	}
}
