package mergedriver

import (
	"strings"
	"testing"
)

// TestGet_ExactWinsOverGlob tests pattern resolution priority.
func TestGet_ExactWinsOverGlob(t *testing.T) {
	r := NewRegistry()
	r.Register("*.json", func(in Input) (Output, error) {
		return Output{Content: "glob"}, nil
	})
	r.Register("config.json", func(in Input) (Output, error) {
		return Output{Content: "exact"}, nil
	})

	out, err := r.Get("config.json")(Input{})
	if err != nil {
		t.Fatalf("driver failed: %v", err)
	}
	if out.Content != "exact" {
		t.Errorf("exact-path driver lost to glob: got %q", out.Content)
	}
}

// TestGet_GlobsInRegistrationOrder tests the first-registered glob wins.
func TestGet_GlobsInRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	r.Register("*.txt", func(in Input) (Output, error) {
		return Output{Content: "first"}, nil
	})
	r.Register("a.*", func(in Input) (Output, error) {
		return Output{Content: "second"}, nil
	})

	out, err := r.Get("a.txt")(Input{})
	if err != nil {
		t.Fatalf("driver failed: %v", err)
	}
	if out.Content != "first" {
		t.Errorf("got %q, want first-registered glob", out.Content)
	}
}

// TestGet_NoMatch tests an unmatched path yields no driver.
func TestGet_NoMatch(t *testing.T) {
	r := NewRegistry()
	r.Register("*.json", func(in Input) (Output, error) { return Output{}, nil })
	if d := r.Get("main.go"); d != nil {
		t.Error("Get() returned a driver for an unmatched path")
	}
}

// TestUnregister tests removal of both exact and glob entries.
func TestUnregister(t *testing.T) {
	r := NewRegistry()
	r.Register("config.json", func(in Input) (Output, error) { return Output{}, nil })
	r.Register("*.yaml", func(in Input) (Output, error) { return Output{}, nil })

	r.Unregister("config.json")
	r.Unregister("*.yaml")

	if r.Get("config.json") != nil || r.Get("a.yaml") != nil {
		t.Error("Unregister() left drivers behind")
	}
}

// TestMerge_PanickingDriverFallsBack tests a panicking driver degrades to
// the default three-way merge (which conflicts here).
func TestMerge_PanickingDriverFallsBack(t *testing.T) {
	r := NewRegistry()
	r.Register("*.txt", func(in Input) (Output, error) {
		panic("driver bug")
	})

	out := r.Merge(Input{Base: "b", Left: "l", Right: "r", Path: "a.txt"})
	if !out.HasConflict {
		t.Error("fallback merge of diverged sides reported no conflict")
	}
	if !strings.Contains(out.Content, "<<<<<<< ours") {
		t.Errorf("fallback content missing markers: %q", out.Content)
	}
}

// TestDefaultMerge covers the baseline three-way decisions.
func TestDefaultMerge(t *testing.T) {
	cases := []struct {
		name              string
		base, left, right string
		want              string
		conflict          bool
	}{
		{"identical sides", "b", "x", "x", "x", false},
		{"left unchanged", "b", "b", "x", "x", false},
		{"right unchanged", "b", "x", "b", "x", false},
		{"diverged", "b", "x", "y", "", true},
	}
	for _, c := range cases {
		out := DefaultMerge(Input{Base: c.base, Left: c.left, Right: c.right})
		if out.HasConflict != c.conflict {
			t.Errorf("%s: HasConflict = %v, want %v", c.name, out.HasConflict, c.conflict)
			continue
		}
		if !c.conflict && out.Content != c.want {
			t.Errorf("%s: Content = %q, want %q", c.name, out.Content, c.want)
		}
	}
}

// TestMerge_CleanDriverResult tests a successful driver short-circuits
// the default merge.
func TestMerge_CleanDriverResult(t *testing.T) {
	r := NewRegistry()
	r.Register("*.sum", func(in Input) (Output, error) {
		return Output{Content: in.Left + in.Right}, nil
	})
	out := r.Merge(Input{Base: "b", Left: "l", Right: "r", Path: "go.sum"})
	if out.HasConflict || out.Content != "lr" {
		t.Errorf("Merge() = %+v", out)
	}
}
