package middleware

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Input validation and sanitization utilities

// ValidateISA checks if the ISA name is in the allowed list
func ValidateISA(isa string) error {
	allowed := map[string]bool{
		"arm":     true,
		"arm64":   true,
		"x86":     true,
		"x86_64":  true,
		"mips":    true,
		"riscv":   true,
		"avr":     true,
		"unknown": true,
	}

	if !allowed[strings.ToLower(isa)] {
		return fmt.Errorf("invalid isa: %s (allowed: arm, arm64, x86, x86_64, mips, riscv, avr, unknown)", isa)
	}
	return nil
}

// ValidateFilename rejects path traversal and empty names
func ValidateFilename(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("filename cannot be empty")
	}
	if name != filepath.Base(name) || strings.Contains(name, "..") {
		return fmt.Errorf("invalid filename: %s", name)
	}
	return nil
}

// ValidateTenant keeps tenant IDs to a safe character set
func ValidateTenant(tenant string) error {
	if tenant == "" {
		return fmt.Errorf("tenant is required")
	}
	for _, r := range tenant {
		ok := r == '-' || r == '_' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			return fmt.Errorf("invalid tenant: %s", tenant)
		}
	}
	return nil
}

// MaxUploadBytes caps firmware upload size (64 MiB)
const MaxUploadBytes = 64 << 20
