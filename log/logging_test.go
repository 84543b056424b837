package log

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogging(t *testing.T) {
	buf := new(bytes.Buffer)
	SetOutput(buf, false)

	err := Start()
	require.NoError(t, err)
	assert.ErrorIs(t, Start(), ErrAlreadyStarted)

	// set levels (static random)
	SetLogLevel(WarningLevel)
	SetLogLevel(InfoLevel)
	SetLogLevel(ErrorLevel)
	SetLogLevel(DebugLevel)
	SetLogLevel(CriticalLevel)
	SetLogLevel(TraceLevel)
	assert.Equal(t, TraceLevel, GetLogLevel())

	// log
	Trace("Trace")
	Debug("Debug")
	Info("Info")
	Warning("Warning")
	Error("Error")
	Critical("Critical")

	// logf
	Tracef("Trace %s", "f")
	Debugf("Debug %s", "f")
	Infof("Info %s", "f")
	Warningf("Warning %s", "f")
	Errorf("Error %s", "f")
	Criticalf("Critical %s", "f")

	// play with levels
	SetLogLevel(CriticalLevel)
	Warning("hidden warning")
	SetLogLevel(TraceLevel)

	// duplicates are collapsed
	for i := 0; i < 3; i++ {
		Info("repeated")
	}

	// adapter
	NewLogger("badger:").Warningf("value log %s\n", "gc")

	// log invalid level
	log(0xFF, "msg")

	// package levels
	SetPkgLevels(map[string]Severity{"log": ErrorLevel})
	Info("hidden by package level")
	UnSetPkgLevels()

	Shutdown()

	out := buf.String()
	for _, expected := range []string{
		"TRAC", "DEBU", "INFO", "WARN", "ERRO", "CRIT",
		"Trace f", "Critical f", "badger: value log gc",
		"repeated", "LOGGING STOPPED",
	} {
		assert.Contains(t, out, expected)
	}
	assert.NotContains(t, out, "hidden warning")
	assert.NotContains(t, out, "hidden by package level")
	assert.LessOrEqual(t, strings.Count(out, "repeated"), 3)

	assert.GreaterOrEqual(t, TotalWarningLogLines(), uint64(3))
	assert.GreaterOrEqual(t, TotalErrorLogLines(), uint64(2))
	assert.GreaterOrEqual(t, TotalCriticalLogLines(), uint64(2))
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, TraceLevel, ParseLevel("trace"))
	assert.Equal(t, WarningLevel, ParseLevel("WARNING"))
	assert.Equal(t, WarningLevel, ParseLevel("warn"))
	assert.Equal(t, CriticalLevel, ParseLevel("critical"))
	assert.Equal(t, Severity(0), ParseLevel("loud"))
}

func TestParsePkgLevels(t *testing.T) {
	t.Parallel()

	levels, err := ParsePkgLevels("database=trace,api=debug")
	require.NoError(t, err)
	assert.Equal(t, map[string]Severity{
		"database": TraceLevel,
		"api":      DebugLevel,
	}, levels)

	levels, err = ParsePkgLevels("")
	require.NoError(t, err)
	assert.Empty(t, levels)

	_, err = ParsePkgLevels("database")
	assert.ErrorIs(t, err, ErrInvalidLevel)
	_, err = ParsePkgLevels("database=loud")
	assert.ErrorIs(t, err, ErrInvalidLevel)
}
