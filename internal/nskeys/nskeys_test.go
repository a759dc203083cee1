package nskeys

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

func TestGenerateKeySetCoversNamespaces(t *testing.T) {
	set, err := GenerateKeySet(Namespaces)
	if err != nil {
		t.Fatalf("GenerateKeySet() error = %v", err)
	}
	if len(set) != len(Namespaces) {
		t.Fatalf("key set size = %d, want %d", len(set), len(Namespaces))
	}
	for _, ns := range Namespaces {
		if len(set[ns]) != 32 {
			t.Fatalf("namespace %q key length = %d", ns, len(set[ns]))
		}
	}
}

func TestGenerateKeySetIndependentKeys(t *testing.T) {
	set, err := GenerateKeySet(Namespaces)
	if err != nil {
		t.Fatalf("GenerateKeySet() error = %v", err)
	}
	for i, a := range Namespaces {
		for _, b := range Namespaces[i+1:] {
			if bytes.Equal(set[a], set[b]) {
				t.Fatalf("namespaces %q and %q share a key", a, b)
			}
		}
	}
}

func TestGenerateKeySetUnknownNamespace(t *testing.T) {
	if _, err := GenerateKeySet([]string{"privateNotes"}); !errors.Is(err, ErrUnknownNamespace) {
		t.Fatalf("error = %v, want ErrUnknownNamespace", err)
	}
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	set, err := GenerateKeySet(Namespaces)
	if err != nil {
		t.Fatalf("GenerateKeySet() error = %v", err)
	}
	data, err := set.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	back, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(back) != len(set) {
		t.Fatalf("round trip size = %d, want %d", len(back), len(set))
	}
	for ns, key := range set {
		if !bytes.Equal(back[ns], key) {
			t.Fatalf("namespace %q key changed across round trip", ns)
		}
	}
}

func TestUnmarshalMalformed(t *testing.T) {
	cases := []string{
		"not json",
		`{"dropbox":"!!!"}`,
		`{"dropbox":"AAAA"}`, // too short
	}
	for _, data := range cases {
		if _, err := Unmarshal([]byte(data)); !errors.Is(err, ErrMalformedKeySet) {
			t.Errorf("Unmarshal(%q) error = %v, want ErrMalformedKeySet", data, err)
		}
	}
}

func TestSubset(t *testing.T) {
	set, _ := GenerateKeySet(Namespaces)
	sub, err := set.Subset(NamespaceDropbox)
	if err != nil {
		t.Fatalf("Subset() error = %v", err)
	}
	if !reflect.DeepEqual(sub.Names(), []string{NamespaceDropbox}) {
		t.Fatalf("Subset names = %v", sub.Names())
	}
	if !bytes.Equal(sub[NamespaceDropbox], set[NamespaceDropbox]) {
		t.Fatal("subset key differs from source")
	}
	if _, err := set.Subset("nope"); err == nil {
		t.Fatal("expected error for missing namespace")
	}
}
