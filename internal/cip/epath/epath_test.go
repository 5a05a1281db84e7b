package epath

import (
	"bytes"
	"testing"
)

func TestLogical8Bit(t *testing.T) {
	got := Logical(0x01, 0x01, 0x07)
	want := []byte{0x03, 0x20, 0x01, 0x24, 0x01, 0x30, 0x07}
	if !bytes.Equal(got, want) {
		t.Fatalf("Logical = % X, want % X", got, want)
	}
}

func TestLogicalWideSegments(t *testing.T) {
	got := Logical(0x0100, 0x00020000, 0x03)
	want := []byte{
		0x06,
		0x21, 0x00, 0x00, 0x01,
		0x26, 0x00, 0x00, 0x00, 0x02, 0x00,
		0x30, 0x03,
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("Logical = % X, want % X", got, want)
	}
}

func TestSymbolic(t *testing.T) {
	tests := []struct {
		tag  string
		want []byte
	}{
		{"Tag", []byte{0x03, 0x91, 0x03, 'T', 'a', 'g', 0x00}},
		{"Ab", []byte{0x02, 0x91, 0x02, 'A', 'b'}},
		{"A.Bc", []byte{0x04, 0x91, 0x01, 'A', 0x00, 0x91, 0x02, 'B', 'c'}},
		{"Arr[5]", []byte{0x03, 0x91, 0x03, 'A', 'r', 'r', 0x00, 0x28, 0x05}},
		{"M[300]", []byte{0x04, 0x91, 0x01, 'M', 0x00, 0x29, 0x00, 0x2C, 0x01}},
		{"G[1,2]", []byte{0x04, 0x91, 0x01, 'G', 0x00, 0x28, 0x01, 0x28, 0x02}},
		{"Program:Main", append([]byte{0x07, 0x91, 0x0C}, "Program:Main"...)},
	}
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			got, err := Symbolic(tt.tag)
			if err != nil {
				t.Fatalf("Symbolic: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Fatalf("Symbolic(%q) = % X, want % X", tt.tag, got, tt.want)
			}
			if int(got[0])*2 != len(got)-1 {
				t.Fatalf("word count %d does not cover %d path bytes", got[0], len(got)-1)
			}
		})
	}
}

func TestSymbolicErrors(t *testing.T) {
	long := string(bytes.Repeat([]byte{'x'}, 256))
	for _, tag := range []string{"", ".", "[3]", "Arr[", "Arr[x]", "Arr[]", long} {
		if _, err := Symbolic(tag); err == nil {
			t.Errorf("Symbolic(%q) should fail", tag)
		}
	}
}

func TestBuilderStickyError(t *testing.T) {
	b := New().Symbol("Bad[").Class(1)
	if _, err := b.Build(); err == nil {
		t.Fatal("Build should return the first error")
	}
}

func TestBuildCopies(t *testing.T) {
	b := New().Class(2)
	first, _ := b.Build()
	b.Instance(1)
	if len(first) != 2 {
		t.Fatalf("earlier Build result changed: % X", first)
	}
}
