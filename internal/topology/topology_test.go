package topology

import "testing"

func TestShouldConnectToTruthTable(t *testing.T) {
	cases := []struct {
		us, peer Role
		anySuper bool
		want     bool
	}{
		{RoleHost, RoleHost, true, true},
		{RoleHost, RoleHost, false, true},
		{RolePeer, RoleHost, true, true},
		{RolePeer, RoleMod, false, true},
		{RoleHost, RolePeer, true, true},
		{RoleMod, RolePeer, false, true},
		{RolePeer, RolePeer, false, true},
		{RolePeer, RolePeer, true, false},
	}
	for _, c := range cases {
		got := ShouldConnectTo(c.us, c.peer, c.anySuper)
		if got != c.want {
			t.Errorf("ShouldConnectTo(%v,%v,%v) = %v, want %v", c.us, c.peer, c.anySuper, got, c.want)
		}
	}
}

func TestIsOffererOnlyLesserNickInitiates(t *testing.T) {
	if !IsOfferer("aaa", "zzz") {
		t.Fatal("aaa < zzz should initiate")
	}
	if IsOfferer("zzz", "aaa") {
		t.Fatal("zzz should not initiate against aaa")
	}
	// Exactly one side initiates.
	a := IsOfferer("aaa", "zzz")
	b := IsOfferer("zzz", "aaa")
	if a == b {
		t.Fatal("exactly one of the pair must be the offerer")
	}
}

func TestForwardTargetsExcludesSenderAndRequiresSuperpeer(t *testing.T) {
	peers := []string{"a", "b", "c"}
	got := ForwardTargets(RoleHost, "b", peers)
	want := []string{"a", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}

	if ForwardTargets(RolePeer, "b", peers) != nil {
		t.Fatal("a regular peer must never forward")
	}
}
