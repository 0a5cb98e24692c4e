package buildinfo

import "testing"

func TestShort(t *testing.T) {
	defer func(v, c string) { Version, Commit = v, c }(Version, Commit)

	for _, tc := range []struct {
		version, commit, want string
	}{
		{"dev", "unknown", "dev"},
		{"v1.2.0", "0123456789ab", "v1.2.0"},
		{"dev", "0123456789ab", "0123456"},
		{"", "abc", "abc"},
	} {
		Version, Commit = tc.version, tc.commit
		if got := Short(); got != tc.want {
			t.Fatalf("Short() with %q/%q = %q, want %q", tc.version, tc.commit, got, tc.want)
		}
	}
}
