package jsontree

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScalarLabels(t *testing.T) {
	cases := map[string]string{
		`null`:    "null",
		`"hi"`:    `"hi"`,
		`42`:      "42",
		`4.50`:    "4.50",
		`true`:    "true",
		`[]`:      "[]",
		`{}`:      "{}",
		`[1,2,3]`: "[3]",
		`{"a":1}`: "{...} 1 keys",
	}
	for raw, want := range cases {
		n, err := Parse([]byte(raw))
		require.NoError(t, err, raw)
		assert.Equal(t, want, n.Label(), raw)
	}
}

func TestEmptyContainersHaveNoDisclosure(t *testing.T) {
	n, err := Parse([]byte(`{"items":[],"meta":{}}`))
	require.NoError(t, err)
	lines := Lines(n)
	require.Len(t, lines, 3)
	assert.Equal(t, "items: []", lines[1].Text)
	assert.False(t, lines[1].Disclosure)
	assert.Equal(t, "meta: {}", lines[2].Text)
	assert.False(t, lines[2].Disclosure)
}

func TestEveryKeyRenderedOnceAtItsDepth(t *testing.T) {
	raw := `{"b":1,"a":{"x":[true,null,{"deep":"v"}]},"c":"s"}`
	n, err := Parse([]byte(raw))
	require.NoError(t, err)

	var got []string
	for _, l := range Lines(n) {
		got = append(got, strings.Repeat(".", l.Depth)+strings.Join(l.Path, "/"))
	}
	want := []string{
		"",
		".b",
		".a",
		"..a/x",
		"...a/x/0",
		"...a/x/1",
		"...a/x/2",
		"....a/x/2/deep",
		".c",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 4, n.Depth())
}

func TestToggleIsPerNode(t *testing.T) {
	n, err := Parse([]byte(`{"a":{"k":1},"b":{"k":2}}`))
	require.NoError(t, err)
	a := n.Find([]string{"a"})
	require.NotNil(t, a)
	assert.True(t, a.Expanded)

	a.Toggle()
	assert.False(t, a.Expanded)
	assert.True(t, n.Find([]string{"b"}).Expanded)

	lines := Lines(n)
	require.Len(t, lines, 4)
	assert.Equal(t, "▸ a: {...} 1 keys", lines[1].Text)
	assert.Equal(t, "▾ b: {...} 1 keys", lines[2].Text)

	leaf := n.Find([]string{"b", "k"})
	leaf.Toggle()
	assert.False(t, leaf.Expanded)
}

func TestExpandToDepth(t *testing.T) {
	n, err := Parse([]byte(`{"a":{"b":{"c":1}}}`))
	require.NoError(t, err)
	n.ExpandToDepth(1)
	assert.True(t, n.Expanded)
	assert.False(t, n.Find([]string{"a"}).Expanded)
	assert.Len(t, Lines(n), 2)

	n.ExpandToDepth(-1)
	assert.Len(t, Lines(n), 4)
}

func TestBuildSortsMapKeys(t *testing.T) {
	n := Build(map[string]any{"z": 1.5, "a": []any{"x"}})
	require.Len(t, n.Children, 2)
	assert.Equal(t, "a", n.Children[0].Key)
	assert.Equal(t, "z", n.Children[1].Key)
	assert.Equal(t, "1.5", n.Children[1].Label())
}

func TestBuildStructKeepsFieldOrder(t *testing.T) {
	type rec struct {
		Zeta  string `json:"zeta"`
		Alpha int    `json:"alpha"`
	}
	n := Build(rec{Zeta: "z", Alpha: 1})
	require.Len(t, n.Children, 2)
	assert.Equal(t, "zeta", n.Children[0].Key)
}

func TestRender(t *testing.T) {
	n, err := Parse([]byte(`{"ok":true,"list":[1]}`))
	require.NoError(t, err)
	out := Text(n)
	assert.Contains(t, out, "ok: true")
	assert.Contains(t, out, "list: [1]")
	assert.Contains(t, out, "0: 1")
}

func TestParseRejectsTrailingData(t *testing.T) {
	_, err := Parse([]byte(`{} {}`))
	assert.Error(t, err)
}
