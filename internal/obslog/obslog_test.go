package obslog

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewParsesValidLevel(t *testing.T) {
	logger := New("warn")
	if logger.GetLevel() != logrus.WarnLevel {
		t.Errorf("level = %v, want Warn", logger.GetLevel())
	}
}

func TestNewFallsBackToInfoOnInvalidLevel(t *testing.T) {
	logger := New("not-a-level")
	if logger.GetLevel() != logrus.InfoLevel {
		t.Errorf("level = %v, want Info fallback", logger.GetLevel())
	}
}

func TestTruncateForLog(t *testing.T) {
	if got := TruncateForLog("abcdefgh", 4); got != "abcd..." {
		t.Errorf("TruncateForLog = %q, want abcd...", got)
	}
	if got := TruncateForLog("abc", 4); got != "abc" {
		t.Errorf("TruncateForLog = %q, want abc (no truncation)", got)
	}
}
