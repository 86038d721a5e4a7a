package authz

import "testing"

func TestNamespaceGate(t *testing.T) {
	g := NewNamespaceGate("")
	user := Principal{Subject: "parent-1", Authenticated: true}

	cases := []struct {
		name string
		p    Principal
		dest string
		want bool
	}{
		{"authenticated topic", user, "/topic/vehicle/42", true},
		{"anonymous topic", Anonymous, "/topic/vehicle/42", false},
		{"authenticated outside namespace", user, "/queue/admin", false},
		{"anonymous outside namespace", Anonymous, "/app/x", false},
		{"empty destination", user, "", false},
		{"blank destination", user, "   ", false},
		{"prefix without slash", user, "/topicx/vehicle/1", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := g.Authorize(tc.p, tc.dest)
			if d.Allowed != tc.want {
				t.Fatalf("expected allowed=%v got %v (%s)", tc.want, d.Allowed, d.Reason)
			}
			if d.Reason == "" {
				t.Fatal("expected a reason")
			}
		})
	}
}

func TestNamespaceGate_CustomNamespace(t *testing.T) {
	g := NewNamespaceGate("/live")
	if g.Namespace() != "/live/" {
		t.Fatalf("unexpected namespace %q", g.Namespace())
	}
	p := Principal{Authenticated: true}
	if !g.Authorize(p, "/live/trip/7").Allowed {
		t.Fatal("expected allow under custom namespace")
	}
	if g.Authorize(p, "/topic/trip/7").Allowed {
		t.Fatal("expected deny under default namespace")
	}
}

func TestGateFunc(t *testing.T) {
	var g Gate = GateFunc(func(Principal, string) Decision { return Decision{Allowed: true} })
	if !g.Authorize(Anonymous, "").Allowed {
		t.Fatal("expected func result")
	}
}
