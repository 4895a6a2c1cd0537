package metrics

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func serve(t *testing.T, s *Server, path string) *fasthttp.RequestCtx {
	t.Helper()
	var req fasthttp.Request
	req.SetRequestURI(path)
	var ctx fasthttp.RequestCtx
	ctx.Init(&req, nil, nil)
	s.route()(&ctx)
	return &ctx
}

func TestHealthEndpoint(t *testing.T) {
	health := NewPipelineHealth()
	health.RecordEvent()
	health.RecordEvent()
	health.RecordPunishment()

	ctx := serve(t, NewServer("127.0.0.1:0", health), "/healthz")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "application/json", string(ctx.Response.Header.ContentType()))

	var body healthBody
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, uint64(2), body.Pipeline.Processed)
	assert.Equal(t, uint64(1), body.Pipeline.Punished)
	assert.NotEmpty(t, body.Pipeline.LastEvent)
}

func TestMetricsEndpoint(t *testing.T) {
	Decisions.WithLabelValues("channelCreate", "exceeded").Inc()

	ctx := serve(t, NewServer("127.0.0.1:0", NewPipelineHealth()), "/metrics")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), "antinuke_decisions_total")
}

func TestUnknownPath(t *testing.T) {
	ctx := serve(t, NewServer("127.0.0.1:0", NewPipelineHealth()), "/nope")
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
}

func TestSnapshotBeforeEvents(t *testing.T) {
	s := NewPipelineHealth().Snapshot()
	assert.Zero(t, s.Processed)
	assert.Empty(t, s.LastEvent)
}
