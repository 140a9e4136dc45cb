package types

import (
	"testing"
	"time"
)

func TestTagFilter_Matches(t *testing.T) {
	filter := TagFilter{Key: "Snapshot", Values: []string{"Yes", "yes"}}

	tests := []struct {
		name string
		tags Tags
		want bool
	}{
		{
			name: "matches first value",
			tags: Tags{"Snapshot": "Yes"},
			want: true,
		},
		{
			name: "matches alternate value",
			tags: Tags{"Snapshot": "yes"},
			want: true,
		},
		{
			name: "no match - wrong value",
			tags: Tags{"Snapshot": "No"},
			want: false,
		},
		{
			name: "no match - key missing",
			tags: Tags{"Name": "data-vol"},
			want: false,
		},
		{
			name: "no match - nil tags",
			tags: nil,
			want: false,
		},
		{
			name: "no match - empty value",
			tags: Tags{"Snapshot": ""},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := filter.Matches(tt.tags); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTagFilter_Matches_NoValues(t *testing.T) {
	filter := TagFilter{Key: "Snapshot"}

	if filter.Matches(Tags{"Snapshot": "Yes"}) {
		t.Error("filter with no accepted values must not match")
	}
}

func TestSnapshot_Age(t *testing.T) {
	now := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		start time.Time
		want  time.Duration
	}{
		{
			name:  "nine days old",
			start: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			want:  9 * 24 * time.Hour,
		},
		{
			name:  "zero age",
			start: now,
			want:  0,
		},
		{
			name:  "non-utc start time normalized",
			start: time.Date(2024, 3, 9, 19, 0, 0, 0, time.FixedZone("EST", -5*3600)),
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := Snapshot{ID: "snap-1", StartTime: tt.start}
			if got := snap.Age(now); got != tt.want {
				t.Errorf("Age() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTags_Name(t *testing.T) {
	if got := (Tags{"Name": "data-vol"}).Name(); got != "data-vol" {
		t.Errorf("Name() = %q, want %q", got, "data-vol")
	}
	if got := (Tags{}).Name(); got != "" {
		t.Errorf("Name() = %q, want empty", got)
	}
}
