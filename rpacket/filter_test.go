package rpacket

import "testing"

func TestCopyPositiveFilter(t *testing.T) {
	p := New(AccessRequest)
	p.Add(mustAVP(t, "User-Name", "homer"))
	p.Add(mustAVP(t, "NAS-Identifier", "nas1"))

	out := p.Copy([]string{"User-Name"}, nil)
	if len(out.AVPs) != 1 || out.AVPs[0].Name != "User-Name" {
		t.Fatalf("Copy positive filter = %+v", out.AVPs)
	}
	if out.Identifier != p.Identifier || out.Authenticator != p.Authenticator {
		t.Fatal("Copy did not preserve header fields")
	}
}

func TestCopyNegativeFilter(t *testing.T) {
	p := New(AccessRequest)
	p.Add(mustAVP(t, "User-Name", "homer"))
	p.Add(mustAVP(t, "NAS-Identifier", "nas1"))

	out := p.Copy(nil, []string{"User-Name"})
	if len(out.AVPs) != 1 || out.AVPs[0].Name != "NAS-Identifier" {
		t.Fatalf("Copy negative filter = %+v", out.AVPs)
	}
}

func TestCopyNoFilterKeepsEverything(t *testing.T) {
	p := New(AccessRequest)
	p.Add(mustAVP(t, "User-Name", "homer"))
	p.Add(mustAVP(t, "NAS-Identifier", "nas1"))

	out := p.Copy(nil, nil)
	if len(out.AVPs) != 2 {
		t.Fatalf("Copy with no filter = %+v", out.AVPs)
	}
}
