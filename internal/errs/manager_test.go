package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyDefaultsSeverity(t *testing.T) {
	rec := Classify("canvas", "canvas://layers/1", CodeAccessDenied, errors.New("no write right"))
	assert.Equal(t, SeverityWarn, rec.Severity)

	rec = Classify("flaky", "flaky://op", CodeHandler, errors.New("boom"))
	assert.Equal(t, SeverityError, rec.Severity)
}

func TestResultErrorHidesCauseForSecurityCodes(t *testing.T) {
	rec := Classify("canvas", "canvas://layers/1", CodeAccessDenied, errors.New("caller lacks write on resource layers"))
	re := rec.ToResultError()
	assert.Equal(t, "access denied", re.Message)
	assert.Equal(t, CodeAccessDenied, re.Code)
}

func TestManagerDropsOldestWhenFull(t *testing.T) {
	m := NewManager(2)
	m.Record(Classify("s", "p1", CodeHandler, errors.New("e1")))
	m.Record(Classify("s", "p2", CodeHandler, errors.New("e2")))
	m.Record(Classify("s", "p3", CodeHandler, errors.New("e3")))

	all := m.All()
	assert.Len(t, all, 2)
	assert.Equal(t, "p2", all[0].Path)
	assert.Equal(t, "p3", all[1].Path)
}

func TestFindFiltersBySubsystemAndCode(t *testing.T) {
	m := NewManager(10)
	m.Record(Classify("a", "a://x", CodeHandler, errors.New("e")))
	m.Record(Classify("b", "b://y", CodeAccessDenied, errors.New("e")))
	m.Record(Classify("a", "a://z", CodeAccessDenied, errors.New("e")))

	res := m.Find(Query{Subsystem: "a"})
	assert.Len(t, res, 2)

	res = m.Find(Query{Code: CodeAccessDenied})
	assert.Len(t, res, 2)

	res = m.Find(Query{Subsystem: "a", Code: CodeAccessDenied})
	assert.Len(t, res, 1)
	assert.Equal(t, "a://z", res[0].Path)
}

// flaky://op fails twice then succeeds; the error manager retains two
// classified records of severity error.
func TestRetryRecordsTwoErrors(t *testing.T) {
	m := NewManager(10)
	m.Record(Classify("flaky", "flaky://op", CodeHandler, errors.New("attempt 1 failed")))
	m.Record(Classify("flaky", "flaky://op", CodeHandler, errors.New("attempt 2 failed")))

	found := m.Find(Query{Subsystem: "flaky"})
	assert.Len(t, found, 2)
	for _, r := range found {
		assert.Equal(t, SeverityError, r.Severity)
	}
}
