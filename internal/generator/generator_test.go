package generator

import "testing"

func TestGenerateExcludesNetworkAndBroadcast(t *testing.T) {
	result := Generate([]string{"10.0.0.0/30"}, []Zone{{Name: "zen", DNS: "zen.example"}})
	if len(result.SkippedPrefixes) != 0 {
		t.Fatalf("unexpected skipped prefixes: %v", result.SkippedPrefixes)
	}
	var ips []string
	for _, s := range result.Seeds {
		ips = append(ips, s.IP)
	}
	want := []string{"10.0.0.1", "10.0.0.2"}
	if len(ips) != len(want) {
		t.Fatalf("ips = %v, want %v", ips, want)
	}
	for i := range want {
		if ips[i] != want[i] {
			t.Errorf("ips[%d] = %q, want %q", i, ips[i], want[i])
		}
	}
}

func TestGenerateCrossesHostsAndZones(t *testing.T) {
	zones := []Zone{
		{Name: "zen", DNS: "zen.example"},
		{Name: "cbl", DNS: "cbl.example"},
	}
	result := Generate([]string{"10.0.0.0/30"}, zones)
	if len(result.Seeds) != 2*2 {
		t.Fatalf("len(Seeds) = %d, want %d", len(result.Seeds), 4)
	}
	if result.Seeds[0].DNS != "zen.example" || result.Seeds[1].DNS != "cbl.example" {
		t.Errorf("unexpected zone ordering: %+v", result.Seeds[:2])
	}
}

func TestGenerateSkipsInvalidPrefix(t *testing.T) {
	result := Generate([]string{"not-a-cidr", "10.0.0.0/30"}, []Zone{{Name: "zen", DNS: "zen.example"}})
	if len(result.SkippedPrefixes) != 1 || result.SkippedPrefixes[0] != "not-a-cidr" {
		t.Fatalf("SkippedPrefixes = %v", result.SkippedPrefixes)
	}
	if len(result.Seeds) != 2 {
		t.Fatalf("len(Seeds) = %d, want 2", len(result.Seeds))
	}
}

func TestGenerateSlash31HasNoExclusion(t *testing.T) {
	result := Generate([]string{"10.0.0.0/31"}, []Zone{{Name: "zen", DNS: "zen.example"}})
	if len(result.Seeds) != 2 {
		t.Fatalf("len(Seeds) = %d, want 2 for a /31", len(result.Seeds))
	}
}

func TestGenerateDeterministicOrder(t *testing.T) {
	zones := []Zone{{Name: "zen", DNS: "zen.example"}}
	a := Generate([]string{"10.0.0.0/30", "10.0.1.0/30"}, zones)
	b := Generate([]string{"10.0.0.0/30", "10.0.1.0/30"}, zones)
	if len(a.Seeds) != len(b.Seeds) {
		t.Fatalf("nondeterministic seed count")
	}
	for i := range a.Seeds {
		if a.Seeds[i] != b.Seeds[i] {
			t.Fatalf("nondeterministic seed order at %d: %+v vs %+v", i, a.Seeds[i], b.Seeds[i])
		}
	}
}
