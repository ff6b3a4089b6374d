package middleware

import (
	"testing"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected string
	}{
		// Static routes - no normalization
		{
			name:     "root path",
			path:     "/",
			expected: "/",
		},
		{
			name:     "health endpoint",
			path:     "/health",
			expected: "/health",
		},
		{
			name:     "ready endpoint",
			path:     "/ready",
			expected: "/ready",
		},
		{
			name:     "metrics endpoint",
			path:     "/metrics",
			expected: "/metrics",
		},

		// Session patterns
		{
			name:     "session by id",
			path:     "/sessions/123",
			expected: "/sessions/{id}",
		},
		{
			name:     "session by uuid",
			path:     "/sessions/550e8400-e29b-41d4-a716-446655440000",
			expected: "/sessions/{id}",
		},
		{
			name:     "session events feed",
			path:     "/sessions/123/events",
			expected: "/sessions/{id}/events",
		},
		{
			name:     "session vision",
			path:     "/sessions/456/vision",
			expected: "/sessions/{id}/vision",
		},
		{
			name:     "session tokens collection",
			path:     "/sessions/789/tokens",
			expected: "/sessions/{id}/tokens",
		},
		{
			name:     "session messages",
			path:     "/sessions/789/messages",
			expected: "/sessions/{id}/messages",
		},
		{
			name:     "session roll",
			path:     "/sessions/789/roll",
			expected: "/sessions/{id}/roll",
		},
		{
			name:     "session fog",
			path:     "/sessions/abc123/fog",
			expected: "/sessions/{id}/fog",
		},
		{
			name:     "session map",
			path:     "/sessions/abc123/map",
			expected: "/sessions/{id}/map",
		},

		// Nested patterns
		{
			name:     "fog reveal",
			path:     "/sessions/123/fog/reveal",
			expected: "/sessions/{id}/fog/reveal",
		},
		{
			name:     "fog clear",
			path:     "/sessions/123/fog/clear",
			expected: "/sessions/{id}/fog/clear",
		},
		{
			name:     "fog auto reveal",
			path:     "/sessions/123/fog/auto-reveal",
			expected: "/sessions/{id}/fog/auto-reveal",
		},
		{
			name:     "map upload url",
			path:     "/sessions/123/map/upload-url",
			expected: "/sessions/{id}/map/upload-url",
		},
		{
			name:     "token by id",
			path:     "/sessions/123/tokens/token-456",
			expected: "/sessions/{id}/tokens/{token_id}",
		},
		{
			name:     "token by uuid",
			path:     "/sessions/123/tokens/550e8400-e29b-41d4-a716-446655440000",
			expected: "/sessions/{id}/tokens/{token_id}",
		},

		// Edge cases
		{
			name:     "sessions collection",
			path:     "/sessions",
			expected: "/sessions",
		},
		{
			name:     "unknown route",
			path:     "/unknown/path",
			expected: "/unknown/path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := normalizePath(tt.path)
			if result != tt.expected {
				t.Errorf("normalizePath(%q) = %q, want %q", tt.path, result, tt.expected)
			}
		})
	}
}

func TestNormalizePath_CardinalityControl(t *testing.T) {
	// Test that different IDs normalize to the same pattern
	paths := []string{
		"/sessions/1",
		"/sessions/2",
		"/sessions/999",
		"/sessions/550e8400-e29b-41d4-a716-446655440000",
		"/sessions/abc-def-ghi",
	}

	expected := "/sessions/{id}"
	seen := make(map[string]bool)

	for _, path := range paths {
		result := normalizePath(path)
		if result != expected {
			t.Errorf("normalizePath(%q) = %q, want %q", path, result, expected)
		}
		seen[result] = true
	}

	// Should all normalize to the same pattern (low cardinality)
	if len(seen) != 1 {
		t.Errorf("Expected all paths to normalize to single pattern, got %d patterns: %v", len(seen), seen)
	}
}
