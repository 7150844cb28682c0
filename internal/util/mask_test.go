package util

import (
	"testing"
)

func TestHideAPIKey(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Long key", "sk-1234567890abcdef", "sk-1...cdef"},
		{"Medium key", "abcdef", "ab...ef"},
		{"Short key", "abc", "a...c"},
		{"Tiny key", "ab", "ab"},
		{"Empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HideAPIKey(tt.input); got != tt.expected {
				t.Errorf("HideAPIKey(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestMaskSensitiveHeaderValue(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    string
		expected string
	}{
		{"Authorization bearer", "Authorization", "Bearer sk-1234567890abcdef", "Bearer sk-1...cdef"},
		{"Api key header", "X-Api-Key", "sk-1234567890abcdef", "sk-1...cdef"},
		{"Token header", "X-Access-Token", "tok-1234567890abcdef", "tok-...cdef"},
		{"Plain header", "Content-Type", "application/json", "application/json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskSensitiveHeaderValue(tt.key, tt.value); got != tt.expected {
				t.Errorf("MaskSensitiveHeaderValue(%q, %q) = %q, want %q", tt.key, tt.value, got, tt.expected)
			}
		})
	}
}

func TestMaskSensitiveQuery(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Key param", "key=sk-1234567890abcdef", "key=sk-1...cdef"},
		{"Token param", "auth_token=tok-1234567890abcdef&foo=bar", "auth_token=tok-...cdef&foo=bar"},
		{"No sensitive params", "foo=bar&baz=qux", "foo=bar&baz=qux"},
		{"Empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskSensitiveQuery(tt.input); got != tt.expected {
				t.Errorf("MaskSensitiveQuery(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
