package types

import (
	"encoding/json"
	"testing"
)

func TestPackageMetadataDecode(t *testing.T) {
	doc := `{"name":"fake_package_3","repo":"repo-to-check","otherkey":1,
		"labels":["something"],"desc":null,"public_download_numbers":false,
		"attributes":{"nested":true},"mixed":[1,"a"]}`

	var meta PackageMetadata
	if err := json.Unmarshal([]byte(doc), &meta); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if meta.Name() != "fake_package_3" || meta.Repository() != "repo-to-check" {
		t.Fatalf("unexpected identity: %v", meta.Identity())
	}

	kinds := map[string]ValueKind{
		"otherkey":                KindNumber,
		"labels":                  KindStrings,
		"desc":                    KindNull,
		"public_download_numbers": KindBool,
		"attributes":              KindRaw,
		"mixed":                   KindRaw,
	}
	for key, want := range kinds {
		v, ok := meta.Get(key)
		if !ok {
			t.Fatalf("missing key %q", key)
		}
		if v.Kind() != want {
			t.Errorf("%s: kind = %v, want %v", key, v.Kind(), want)
		}
	}

	labels, _ := meta["labels"].AsStrings()
	if len(labels) != 1 || labels[0] != "something" {
		t.Fatalf("unexpected labels: %#v", labels)
	}
}

func TestPackageMetadataPassThrough(t *testing.T) {
	doc := `{"attributes":{"nested":true},"desc":null,"labels":[],"name":"p","otherkey":1.5,"repo":"r"}`

	var meta PackageMetadata
	if err := json.Unmarshal([]byte(doc), &meta); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	out, err := json.Marshal(meta)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(out) != doc {
		t.Fatalf("pass-through changed document:\n got %s\nwant %s", out, doc)
	}
}

func TestValueAccessors(t *testing.T) {
	if s, ok := String("x").AsString(); !ok || s != "x" {
		t.Fatalf("AsString() = %q, %v", s, ok)
	}
	if _, ok := Null().AsString(); ok {
		t.Fatal("null should not be a string")
	}
	if !Null().IsNull() {
		t.Fatal("IsNull() = false")
	}
	if b, ok := Bool(true).AsBool(); !ok || !b {
		t.Fatalf("AsBool() = %v, %v", b, ok)
	}
	if n, ok := Number("3").AsNumber(); !ok || n.String() != "3" {
		t.Fatalf("AsNumber() = %v, %v", n, ok)
	}

	meta := PackageMetadata{MetadataKeyName: Null()}
	if meta.Name() != "" {
		t.Fatalf("null name should read as empty, got %q", meta.Name())
	}
	clone := meta.Clone()
	clone[MetadataKeyName] = String("changed")
	if meta.Name() != "" {
		t.Fatal("Clone() shares storage with the original")
	}
}

func TestPackageMetadataListsWithNulls(t *testing.T) {
	tests := []struct {
		doc      string
		isString bool
	}{
		{`{"labels":["a",null],"name":"p","repo":"r"}`, false},
		{`{"labels":[null],"name":"p","repo":"r"}`, false},
		{`{"labels":["a",1],"name":"p","repo":"r"}`, false},
		{`{"labels":["a","b"],"name":"p","repo":"r"}`, true},
	}
	for _, tt := range tests {
		var meta PackageMetadata
		if err := json.Unmarshal([]byte(tt.doc), &meta); err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", tt.doc, err)
		}
		if _, ok := meta["labels"].AsStrings(); ok != tt.isString {
			t.Errorf("%s: AsStrings ok = %v, want %v", tt.doc, ok, tt.isString)
		}
		out, err := json.Marshal(meta)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		if string(out) != tt.doc {
			t.Errorf("round trip changed document:\n got %s\nwant %s", out, tt.doc)
		}
	}
}
