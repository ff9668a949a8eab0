package domain

import "testing"

func TestValidateExternalID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{name: "zoho id", id: "5725767000012345678", wantErr: false},
		{name: "short id", id: "L1", wantErr: false},
		{name: "empty", id: "", wantErr: true},
		{name: "whitespace", id: "   ", wantErr: true},
		{name: "comma", id: "L1,L2", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateExternalID(tt.id)
			if tt.wantErr && err == nil {
				t.Error("ValidateExternalID() expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ValidateExternalID() unexpected error: %v", err)
			}
		})
	}
}

func TestValidateResourceType(t *testing.T) {
	for _, rt := range []string{"lead", "batch", "system"} {
		if err := ValidateResourceType(rt); err != nil {
			t.Errorf("ValidateResourceType(%q) unexpected error: %v", rt, err)
		}
	}
	if err := ValidateResourceType("task"); err == nil {
		t.Error("ValidateResourceType(task) expected error, got nil")
	}
}

func TestValidateBackend(t *testing.T) {
	tests := []struct {
		backend string
		wantErr bool
	}{
		{"sqlite", false},
		{"postgres", false},
		{"memory", false},
		{"mysql", true},
		{"", true},
	}
	for _, tt := range tests {
		err := ValidateBackend(tt.backend)
		if tt.wantErr != (err != nil) {
			t.Errorf("ValidateBackend(%q) err = %v, wantErr %v", tt.backend, err, tt.wantErr)
		}
	}
}
