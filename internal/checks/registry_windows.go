//go:build windows

// internal/checks/registry_windows.go
package checks

import (
	"errors"
	"strconv"
	"strings"

	"golang.org/x/sys/windows/registry"
)

var hiveKeys = map[string]registry.Key{
	"HKEY_LOCAL_MACHINE":  registry.LOCAL_MACHINE,
	"HKEY_CURRENT_USER":   registry.CURRENT_USER,
	"HKEY_CLASSES_ROOT":   registry.CLASSES_ROOT,
	"HKEY_USERS":          registry.USERS,
	"HKEY_CURRENT_CONFIG": registry.CURRENT_CONFIG,
}

func init() {
	registryLookup = lookupRegistry
}

func lookupRegistry(c RegistryKey) Outcome {
	hive, subkey, err := splitRegistryPath(c.Path)
	if err != nil {
		return errorf("%v", err)
	}

	k, err := registry.OpenKey(hiveKeys[hive], subkey, registry.QUERY_VALUE)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return fail("Registry key not found: %s", c.Path)
		}
		return errorf("Failed to open registry key: %v", err)
	}
	defer func(k registry.Key) {
		_ = k.Close()
	}(k)

	if c.ValueName == "" {
		return pass("Registry key exists: %s", c.Path)
	}

	val, err := registryValueString(k, c.ValueName)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return fail("Registry value not found: %s", c.ValueName)
		}
		return errorf("Failed to read registry value: %v", err)
	}

	if c.Expected == nil {
		return pass("Registry value exists: %s = %s", c.ValueName, val)
	}
	if val == *c.Expected {
		return pass("Registry value %s = %s", c.ValueName, val)
	}
	return fail("Registry value %s = %s (expected %s)", c.ValueName, val, *c.Expected)
}

// registryValueString renders string, integer and multi-string values as text
func registryValueString(k registry.Key, name string) (string, error) {
	s, _, err := k.GetStringValue(name)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, registry.ErrUnexpectedType) {
		return "", err
	}

	n, _, err := k.GetIntegerValue(name)
	if err == nil {
		return strconv.FormatUint(n, 10), nil
	}
	if !errors.Is(err, registry.ErrUnexpectedType) {
		return "", err
	}

	ss, _, err := k.GetStringsValue(name)
	if err != nil {
		return "", err
	}
	return strings.Join(ss, ","), nil
}
