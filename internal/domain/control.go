package domain

import (
	"fmt"
	"strings"
	"time"
)

// Framework represents a compliance framework (a catalog of controls). The
// catalog itself is curated externally; the pipeline treats it as read-only.
type Framework struct {
	ID          string
	Name        string
	Version     string
	Description string
	CreatedAt   time.Time
}

// Control represents one checklist requirement within a framework
type Control struct {
	ID          string
	FrameworkID string
	Code        string
	Title       string
	Requirement string
	Category    string
	CreatedAt   time.Time
}

// FrameworkFamily selects the evaluation instruction template. Resolution is
// an explicit lookup on the normalized framework name, never substring
// matching; unknown names fall back to the generic family.
type FrameworkFamily string

const (
	FamilyGeneric  FrameworkFamily = "generic"
	FamilySOC2     FrameworkFamily = "soc2"
	FamilyISO27001 FrameworkFamily = "iso27001"
)

var frameworkFamilies = map[string]FrameworkFamily{
	"soc 2":          FamilySOC2,
	"soc 2 type 2":   FamilySOC2,
	"soc 2 type ii":  FamilySOC2,
	"iso 27001":      FamilyISO27001,
	"iso/iec 27001":  FamilyISO27001,
	"iso-27001":      FamilyISO27001,
	"iso/iec 27001:2022": FamilyISO27001,
}

// Family resolves the framework's template family from its name
func (f *Framework) Family() FrameworkFamily {
	normalized := strings.ToLower(strings.TrimSpace(f.Name))
	if family, ok := frameworkFamilies[normalized]; ok {
		return family
	}
	return FamilyGeneric
}

// ValidateFramework validates a Framework instance
func ValidateFramework(f *Framework) error {
	if f == nil {
		return fmt.Errorf("framework cannot be nil")
	}

	if f.ID == "" {
		return fmt.Errorf("framework ID is required")
	}

	if f.Name == "" {
		return fmt.Errorf("framework Name is required")
	}

	return nil
}

// ValidateControl validates a Control instance
func ValidateControl(c *Control) error {
	if c == nil {
		return fmt.Errorf("control cannot be nil")
	}

	if c.ID == "" {
		return fmt.Errorf("control ID is required")
	}

	if c.FrameworkID == "" {
		return fmt.Errorf("control FrameworkID is required")
	}

	if c.Code == "" {
		return fmt.Errorf("control Code is required")
	}

	if c.Requirement == "" {
		return fmt.Errorf("control Requirement is required")
	}

	return nil
}
