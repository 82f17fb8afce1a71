package logging

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestOnce(t *testing.T) {
	assert.True(t, Once("logging-test-key"))
	assert.False(t, Once("logging-test-key"))
	assert.True(t, Once("logging-test-key-other"))
}

func TestWarnOnceEmitsSingleEntry(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(logrus.InfoLevel)
	defer SetOutput(bytes.NewBuffer(nil))

	for i := 0; i < 5; i++ {
		WarnOnce("warn-once-test", Fields{"component": "test"}, "fallback engaged")
	}
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("fallback engaged")))
}

func TestDebugIsFilteredByLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(logrus.InfoLevel)
	defer SetOutput(bytes.NewBuffer(nil))

	Debug(nil, "hidden entry")
	Info(nil, "visible entry")
	assert.NotContains(t, buf.String(), "hidden entry")
	assert.Contains(t, buf.String(), "visible entry")
}
