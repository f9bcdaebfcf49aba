package conventional

import "testing"

func TestParse(t *testing.T) {
	cases := []struct {
		subject  string
		typ      Type
		scope    string
		breaking bool
		text     string
	}{
		{"feat: add rollback command", TypeFeat, "", false, "add rollback command"},
		{"fix(npm): retry registry polls", TypeFix, "npm", false, "retry registry polls"},
		{"feat(api)!: drop legacy endpoint", TypeFeat, "api", true, "drop legacy endpoint"},
		{"chore: bump deps", TypeChore, "", false, "bump deps"},
		{"Revert: something", TypeRevert, "", false, "something"},
	}

	for _, tc := range cases {
		c := Parse("abc1234", tc.subject)
		if !c.Conventional() {
			t.Errorf("Parse(%q) not conventional", tc.subject)
			continue
		}
		if c.Type != tc.typ || c.Scope != tc.scope || c.Breaking != tc.breaking || c.Subject != tc.text {
			t.Errorf("Parse(%q) = %+v", tc.subject, c)
		}
	}
}

func TestParseNonConventional(t *testing.T) {
	for _, subject := range []string{
		"update readme",
		"WIP",
		"weird(: thing",
		"unknown: not a real type",
	} {
		c := Parse("abc1234", subject)
		if c.Conventional() {
			t.Errorf("Parse(%q) parsed as conventional: %+v", subject, c)
		}
		if c.Raw != subject {
			t.Errorf("Parse(%q).Raw = %q", subject, c.Raw)
		}
	}
}

func TestGrouped(t *testing.T) {
	commits := []Commit{
		Parse("a", "feat: one"),
		Parse("b", "fix: two"),
		Parse("c", "feat!: breaking"),
		Parse("d", "chore: skip me"),
		Parse("e", "not conventional"),
		Parse("f", "perf: faster polls"),
	}

	groups := Grouped(commits)
	if len(groups[SectionAdded]) != 1 {
		t.Errorf("Added has %d entries, want 1", len(groups[SectionAdded]))
	}
	if len(groups[SectionFixed]) != 1 {
		t.Errorf("Fixed has %d entries, want 1", len(groups[SectionFixed]))
	}
	// breaking feat + perf both land in Changed
	if len(groups[SectionChanged]) != 2 {
		t.Errorf("Changed has %d entries, want 2", len(groups[SectionChanged]))
	}
}

func TestSuggestBump(t *testing.T) {
	patch := []Commit{Parse("a", "fix: x"), Parse("b", "chore: y")}
	if got := SuggestBump(patch); got != "patch" {
		t.Errorf("SuggestBump() = %s, want patch", got)
	}

	minor := append(patch, Parse("c", "feat: z"))
	if got := SuggestBump(minor); got != "minor" {
		t.Errorf("SuggestBump() = %s, want minor", got)
	}

	major := append(minor, Parse("d", "fix!: boom"))
	if got := SuggestBump(major); got != "major" {
		t.Errorf("SuggestBump() = %s, want major", got)
	}
}
