package ordered

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type step struct {
	ID  string
	Pos int
}

func keys(l *List[step]) []string {
	var out []string
	for _, s := range l.Items() {
		out = append(out, s.ID)
	}
	return out
}

func newList() *List[step] {
	return New([]step{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}, func(s step) string { return s.ID })
}

func TestMoveUpDown(t *testing.T) {
	l := newList()
	require.NoError(t, l.MoveUp("c"))
	assert.Equal(t, []string{"a", "c", "b", "d"}, keys(l))
	require.NoError(t, l.MoveUp("a"))
	assert.Equal(t, []string{"a", "c", "b", "d"}, keys(l))
	require.NoError(t, l.MoveDown("d"))
	assert.Equal(t, []string{"a", "c", "b", "d"}, keys(l))
	require.NoError(t, l.MoveDown("a"))
	assert.Equal(t, []string{"c", "a", "b", "d"}, keys(l))
	assert.Error(t, l.MoveUp("zz"))
}

func TestMoveBeforeAfter(t *testing.T) {
	l := newList()
	require.NoError(t, l.MoveBefore("d", "a"))
	assert.Equal(t, []string{"d", "a", "b", "c"}, keys(l))
	require.NoError(t, l.MoveAfter("d", "c"))
	assert.Equal(t, []string{"a", "b", "c", "d"}, keys(l))
	require.NoError(t, l.MoveAfter("a", "b"))
	assert.Equal(t, []string{"b", "a", "c", "d"}, keys(l))
	require.NoError(t, l.MoveBefore("c", "c"))
	assert.Error(t, l.MoveBefore("c", "missing"))
	assert.Equal(t, []string{"b", "a", "c", "d"}, keys(l))
}

func TestRenumberIsContiguous(t *testing.T) {
	l := New([]step{{ID: "x", Pos: 7}, {ID: "y", Pos: 3}, {ID: "z", Pos: 3}}, func(s step) string { return s.ID })
	require.NoError(t, l.MoveDown("x"))
	got := Renumber(l, func(s step, pos int) step { s.Pos = pos; return s })
	assert.Equal(t, []step{{ID: "y", Pos: 1}, {ID: "x", Pos: 2}, {ID: "z", Pos: 3}}, got)
}

func TestRemoveAppend(t *testing.T) {
	l := newList()
	require.NoError(t, l.Remove("b"))
	l.Append(step{ID: "e"})
	assert.Equal(t, []string{"a", "c", "d", "e"}, keys(l))
	assert.Equal(t, 4, l.Len())
	assert.Error(t, l.Remove("b"))
}
