package admin

import (
	"os"
	"testing"
)

func TestMain(m *testing.M) {
	// JWT signing requires a configured secret outside dev mode
	os.Setenv("GK_JWT_SECRET", "test-secret-0123456789abcdef0123456789abcdef")
	os.Exit(m.Run())
}
