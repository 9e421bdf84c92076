package stateaudit

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedRunner struct {
	codes []int
	errs  []error
	ran   []string
}

func (s *scriptedRunner) Run(_ context.Context, c Command) (int, error) {
	i := len(s.ran)
	s.ran = append(s.ran, c.String())
	return s.codes[i], s.errs[i]
}

func TestAuditRunsEveryCommandInOrder(t *testing.T) {
	r := &scriptedRunner{codes: []int{0, 0, 0}, errs: make([]error, 3)}
	assert.Equal(t, 0, Audit(context.Background(), r, Commands, nil))
	assert.Equal(t, []string{"terraform workspace show", "terraform state list", "terraform providers"}, r.ran)
}

func TestAuditReturnsLastNonZero(t *testing.T) {
	r := &scriptedRunner{codes: []int{2, 0, 0}, errs: make([]error, 3)}
	assert.Equal(t, 2, Audit(context.Background(), r, Commands, nil))

	r = &scriptedRunner{codes: []int{2, 3, 0}, errs: make([]error, 3)}
	assert.Equal(t, 3, Audit(context.Background(), r, Commands, nil))
	assert.Len(t, r.ran, 3)
}

func TestAuditCountsUnstartableAsOne(t *testing.T) {
	r := &scriptedRunner{codes: []int{0, 0, 1}, errs: []error{nil, nil, errors.New("executable file not found")}}
	assert.Equal(t, 1, Audit(context.Background(), r, Commands, nil))
}

func TestExecRunner(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	var out bytes.Buffer
	r := ExecRunner{Stdout: &out, Stderr: &out}
	code, err := r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo hi; exit 4"}})
	require.NoError(t, err)
	assert.Equal(t, 4, code)
	assert.Equal(t, "hi\n", out.String())

	code, err = r.Run(context.Background(), Command{Name: "definitely-not-a-binary-ftops"})
	assert.Error(t, err)
	assert.Equal(t, 1, code)
}
