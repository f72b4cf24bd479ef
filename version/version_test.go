package version_test

import (
	"strings"
	"testing"

	"github.com/etudelab/scoresync/version"
)

func TestString(t *testing.T) {
	s := version.String()
	if !strings.HasPrefix(s, "scoresync "+version.Short+" (go") {
		t.Errorf("got %q", s)
	}
	if version.Short == "" {
		t.Error("empty short version")
	}
}
