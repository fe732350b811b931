package repository_test

import (
	"io"
	"os"
	"testing"

	"github.com/okian/tierlearn/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.InitWith(io.Discard, "text"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}
