package cache

import (
	"strings"
	"testing"
)

func TestKey(t *testing.T) {
	tests := []struct {
		name      string
		namespace string
		size      int
		offset    float64
		url       string
		want      string
	}{
		{
			name:      "fractional offset",
			namespace: "video-thumbnail",
			size:      480,
			offset:    0.1,
			url:       "http://example.com/a.mp4",
			want:      "video-thumbnail-cache-480|0.1|http://example.com/a.mp4",
		},
		{
			name:      "absolute offset",
			namespace: "ns",
			size:      120,
			offset:    10,
			url:       "http://example.com/b.webm",
			want:      "ns-cache-120|10|http://example.com/b.webm",
		},
		{
			name:      "url with separators",
			namespace: "ns",
			size:      64,
			offset:    0.25,
			url:       "http://example.com/x|y.mp4?a=1",
			want:      "ns-cache-64|0.25|http://example.com/x|y.mp4?a=1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Key(tt.namespace, tt.size, tt.offset, tt.url); got != tt.want {
				t.Errorf("Key() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKeyDeterministic(t *testing.T) {
	a := Key("ns", 480, 0.5, "http://example.com/a.mp4")
	b := Key("ns", 480, 0.5, "http://example.com/a.mp4")
	if a != b {
		t.Errorf("identical inputs produced different keys: %q vs %q", a, b)
	}
}

func TestKeyNamespaceSeparation(t *testing.T) {
	a := Key("alpha", 480, 0.5, "http://example.com/a.mp4")
	b := Key("beta", 480, 0.5, "http://example.com/a.mp4")
	if a == b {
		t.Fatalf("different namespaces collided: %q", a)
	}
	if strings.HasPrefix(b, NamespacePrefix("alpha")) {
		t.Errorf("key %q should not match prefix of namespace alpha", b)
	}
	if !strings.HasPrefix(a, NamespacePrefix("alpha")) {
		t.Errorf("key %q should match prefix of its own namespace", a)
	}
}

func TestInNamespace(t *testing.T) {
	tests := []struct {
		key       string
		namespace string
		want      bool
	}{
		{Key("a", 480, 0.5, "http://h/v.mp4"), "a", true},
		{Key("a", 480, 0.5, "http://h/a-cache-1|2|x"), "a", true},
		{Key("a-cache-b", 480, 0.5, "http://h/v.mp4"), "a", false},
		{Key("a-cache-1", 480, 0.5, "http://h/v.mp4"), "a", false},
		{Key("a-cache-b", 480, 0.5, "http://h/v.mp4"), "a-cache-b", true},
		{Key("ab", 480, 0.5, "http://h/v.mp4"), "a", false},
		{"a-cache-|0.5|u", "a", false},
		{"a-cache-480", "a", false},
		{"other", "a", false},
	}
	for _, tt := range tests {
		if got := InNamespace(tt.key, NamespacePrefix(tt.namespace)); got != tt.want {
			t.Errorf("InNamespace(%q, %q) = %v, want %v", tt.key, tt.namespace, got, tt.want)
		}
	}
}

func TestValidNamespace(t *testing.T) {
	tests := map[string]bool{
		"video-thumbnail": true,
		"a-cache-b":       true,
		"":                false,
		"a|b":             false,
		"a-cache-1|2|":    false,
	}
	for ns, want := range tests {
		if got := ValidNamespace(ns); got != want {
			t.Errorf("ValidNamespace(%q) = %v, want %v", ns, got, want)
		}
	}
}

func TestFormatOffset(t *testing.T) {
	tests := []struct {
		offset float64
		want   string
	}{
		{0.1, "0.1"},
		{0.5, "0.5"},
		{1, "1"},
		{10, "10"},
		{123.456, "123.456"},
		{1e21, "1000000000000000000000"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := FormatOffset(tt.offset); got != tt.want {
				t.Errorf("FormatOffset(%v) = %q, want %q", tt.offset, got, tt.want)
			}
		})
	}
}
