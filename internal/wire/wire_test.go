package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func TestEventsShapes(t *testing.T) {
	bare := decode(t, `[{"source":"manual","type":"x","external_id":"e1","received_at":"t1"}]`)
	wrapped := decode(t, `{"events":[{"source":"manual","type":"x","externalId":"e1","receivedAt":"t1","processError":"bad"}]}`)

	a, err := Events(bare)
	require.NoError(t, err)
	b, err := Events(wrapped)
	require.NoError(t, err)
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, "e1", a[0].ExternalID)
	assert.Equal(t, "e1", b[0].ExternalID)
	assert.Equal(t, "t1", b[0].ReceivedAt)
	assert.Equal(t, "bad", b[0].ProcessError)

	empty, err := Events(decode(t, `{}`))
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = Events(decode(t, `"nope"`))
	assert.Error(t, err)
}

func TestIdempotencyKeyCasing(t *testing.T) {
	assert.Equal(t, "k1", IdempotencyKey(decode(t, `{"idempotencyKey":"k1"}`)))
	assert.Equal(t, "k2", IdempotencyKey(decode(t, `{"idempotency_key":"k2"}`)))
	assert.Empty(t, IdempotencyKey(decode(t, `[]`)))
}

func TestPlanPreviewNormalises(t *testing.T) {
	p, err := PlanPreview([]byte(`{"planId":"p1","warnings":["w1",{"message":"w2"}],"contexts":{"project":{"type":"project","key":"k","record_uri":"manual://proposal/demo"}}}`))
	require.NoError(t, err)
	assert.Equal(t, "p1", p.PlanID)
	assert.Equal(t, []string{"w1", "w2"}, p.Warnings)
	require.NotNil(t, p.Contexts)
	assert.Equal(t, "manual://proposal/demo", p.Contexts.Project.RecordURI)
	assert.NotNil(t, p.MatchedTemplatesByContext)
	assert.Empty(t, p.Matches("project", "k"))
}

func TestErrorBody(t *testing.T) {
	e, ok := ErrorBody(decode(t, `{"error":"workspace_not_empty","counts":{"projects":2}}`))
	require.True(t, ok)
	assert.Equal(t, "workspace_not_empty", e.Code)
	assert.Equal(t, map[string]int{"projects": 2}, e.Counts)
	assert.Equal(t, "workspace_not_empty", e.Text())

	e, ok = ErrorBody(decode(t, `{"error":"bad","details":{"field":"key"}}`))
	require.True(t, ok)
	assert.Equal(t, `bad: {"field":"key"}`, e.Text())

	_, ok = ErrorBody(decode(t, `{"ok":true}`))
	assert.False(t, ok)
}

func TestHealthStatus(t *testing.T) {
	h, ok := HealthStatus(decode(t, `{"migrations":{"ok":false,"appliedLatest":"0001","expectedLatest":"0002","missing":["0002_x.sql"]}}`))
	require.True(t, ok)
	assert.False(t, h.OK)
	assert.Equal(t, 1, h.MissingCount)
	assert.Equal(t, "0002", h.ExpectedLatest)

	_, ok = HealthStatus(decode(t, `{"status":"ok"}`))
	assert.False(t, ok)
}
