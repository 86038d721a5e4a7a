package mqtt

import "testing"

func TestMatch(t *testing.T) {
	cases := []struct {
		filter, topic string
		want          bool
	}{
		{"fleet/state/+", "fleet/state/bus-1", true},
		{"fleet/state/+", "fleet/state/bus-1/extra", false},
		{"fleet/#", "fleet/state/bus-1", true},
		{"fleet/#", "fleet", true},
		{"fleet/state", "fleet/state", true},
		{"fleet/state", "fleet/other", false},
		{"fleet/+/position", "fleet/7/position", true},
		{"fleet/state/+", "fleet/state", false},
	}
	for _, tc := range cases {
		if got := Match(tc.filter, tc.topic); got != tc.want {
			t.Errorf("Match(%q, %q) = %v", tc.filter, tc.topic, got)
		}
	}
}

func TestTopicHelpers(t *testing.T) {
	if got := LastSegment("a/b/veh42"); got != "veh42" {
		t.Fatalf("unexpected segment %s", got)
	}
	if got := LastSegment("veh42"); got != "veh42" {
		t.Fatalf("unexpected segment %s", got)
	}
	if got := Join("routecast/positions/", "7", "position"); got != "routecast/positions/7/position" {
		t.Fatalf("unexpected join %s", got)
	}
}
