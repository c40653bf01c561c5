//go:build !windows

// internal/checks/registry_other.go
package checks

func init() {
	registryLookup = func(RegistryKey) Outcome {
		return skipped("Registry checks are only available on Windows")
	}
}
