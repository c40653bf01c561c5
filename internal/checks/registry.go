// internal/checks/registry.go
package checks

import (
	"fmt"
	"strings"
)

// registryLookup evaluates a registry_key check.
// Only Windows has a real implementation; see registry_other.go.
var registryLookup func(RegistryKey) Outcome

// hiveAliases maps accepted path prefixes to canonical hive names
var hiveAliases = map[string]string{
	"HKLM":                "HKEY_LOCAL_MACHINE",
	"HKEY_LOCAL_MACHINE":  "HKEY_LOCAL_MACHINE",
	"HKCU":                "HKEY_CURRENT_USER",
	"HKEY_CURRENT_USER":   "HKEY_CURRENT_USER",
	"HKCR":                "HKEY_CLASSES_ROOT",
	"HKEY_CLASSES_ROOT":   "HKEY_CLASSES_ROOT",
	"HKU":                 "HKEY_USERS",
	"HKEY_USERS":          "HKEY_USERS",
	"HKCC":                "HKEY_CURRENT_CONFIG",
	"HKEY_CURRENT_CONFIG": "HKEY_CURRENT_CONFIG",
}

// splitRegistryPath splits `HKLM\SOFTWARE\Foo` into its canonical hive and subkey
func splitRegistryPath(path string) (hive, subkey string, err error) {
	path = strings.ReplaceAll(path, "/", `\`)
	prefix, rest, _ := strings.Cut(path, `\`)
	hive, ok := hiveAliases[strings.ToUpper(prefix)]
	if !ok {
		return "", "", fmt.Errorf("unsupported registry hive: %s", prefix)
	}
	return hive, strings.Trim(rest, `\`), nil
}
