package version

import "testing"

func TestString(t *testing.T) {
	oldVersion, oldCommit, oldTime := Version, GitCommit, BuildTime
	t.Cleanup(func() { Version, GitCommit, BuildTime = oldVersion, oldCommit, oldTime })

	Version, GitCommit = "v1.2.0", "unknown"
	if got := String(); got != "v1.2.0" {
		t.Errorf("String() = %q", got)
	}

	GitCommit, BuildTime = "abc123", "2024-05-01"
	if got := String(); got != "v1.2.0 (commit abc123, built 2024-05-01)" {
		t.Errorf("String() = %q", got)
	}
}

func TestUserAgent(t *testing.T) {
	old := Version
	t.Cleanup(func() { Version = old })

	Version = "v2.0.0"
	if got := UserAgent(); got != "assetcompiler/v2.0.0" {
		t.Errorf("UserAgent() = %q", got)
	}
}
