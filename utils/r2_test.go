package utils

import (
	"context"
	"strings"
	"testing"
)

func TestBadgeIconKey(t *testing.T) {
	tests := []struct {
		code, contentType string
		prefix, ext       string
	}{
		{"TASK_MASTER", "image/png", "badges/task_master-", ".png"},
		{"  ", "image/svg+xml", "badges/badge-", ".svg"},
		{"../../etc", "image/webp", "badges/etc-", ".webp"},
	}
	for _, tt := range tests {
		key, err := BadgeIconKey(tt.code, tt.contentType)
		if err != nil {
			t.Fatalf("Unexpected error for %q: %v", tt.code, err)
		}
		if !strings.HasPrefix(key, tt.prefix) || !strings.HasSuffix(key, tt.ext) {
			t.Errorf("BadgeIconKey(%q, %q) = %q", tt.code, tt.contentType, key)
		}
	}

	if _, err := BadgeIconKey("X", "application/pdf"); err == nil {
		t.Error("Expected unsupported type to be rejected")
	}
}

func TestUploadBadgeIcon_NotConfigured(t *testing.T) {
	if R2Ready() {
		t.Skip("R2 configured in this environment")
	}
	if _, err := UploadBadgeIcon(context.Background(), nil, "X"); err == nil {
		t.Error("Expected an error without R2")
	}
}
