// internal/checks/file.go
package checks

import (
	"os"
	"strings"
)

func runFileExists(c FileExists) Outcome {
	if _, err := os.Stat(c.Path); err != nil {
		return fail("File not found: %s", c.Path)
	}
	return pass("File exists: %s", c.Path)
}

func runFileContent(c FileContent) Outcome {
	content, err := os.ReadFile(c.Path)
	if err != nil {
		return errorf("Failed to read file: %v", err)
	}

	matched := c.Pattern.Match(content)
	found, expected := "not found", "no match"
	if matched {
		found = "found"
	}
	if c.ShouldMatch {
		expected = "match"
	}

	if matched == c.ShouldMatch {
		return pass("Pattern %s in file (expected %s)", found, expected)
	}
	return fail("Pattern %s in file (expected %s)", found, expected)
}

func runConfigSetting(c ConfigSetting) Outcome {
	content, err := os.ReadFile(c.File)
	if err != nil {
		return errorf("Failed to read config file: %v", err)
	}

	m := c.line.FindSubmatch(content)
	if m == nil {
		return fail("Config setting not found: %s", c.Key)
	}

	actual := strings.TrimSpace(string(m[1]))
	if actual == c.Expected {
		return pass("Config setting %s = %s", c.Key, actual)
	}
	return fail("Config setting %s = %s (expected %s)", c.Key, actual, c.Expected)
}
