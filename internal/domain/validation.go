package domain

import (
	"fmt"
	"strings"
)

// ValidateExternalID validates a lead external id
func ValidateExternalID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("invalid external id: must not be empty")
	}
	if strings.Contains(id, ",") {
		return fmt.Errorf("invalid external id %q: must not contain commas", id)
	}
	return nil
}

// ValidateResourceType validates an event resource type
func ValidateResourceType(resourceType string) error {
	switch resourceType {
	case "lead", "batch", "system":
		return nil
	default:
		return fmt.Errorf("invalid resource type: must be one of: lead, batch, system")
	}
}

// ValidateBackend validates a storage backend name
func ValidateBackend(backend string) error {
	switch backend {
	case "sqlite", "postgres", "memory":
		return nil
	default:
		return fmt.Errorf("invalid backend %q: must be one of: sqlite, postgres, memory", backend)
	}
}
