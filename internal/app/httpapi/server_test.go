package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopfund/backoffice/pkg/logger"
)

func TestServiceStartStop(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	svc := NewService("127.0.0.1:0", handler, time.Second, time.Second, logger.Discard())
	assert.Equal(t, "http", svc.Name())

	ctx := context.Background()
	require.NoError(t, svc.Start(ctx))

	resp, err := http.Get("http://" + svc.Addr() + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, svc.Stop(stopCtx))

	_, err = http.Get("http://" + svc.Addr() + "/")
	assert.Error(t, err)
}

func TestServiceStopBeforeStart(t *testing.T) {
	svc := NewService("127.0.0.1:0", http.NotFoundHandler(), 0, 0, nil)
	assert.NoError(t, svc.Stop(context.Background()))
}

func TestAuditLogKeepsNewest(t *testing.T) {
	log := NewAuditLog(2, nil)
	for _, path := range []string{"/a", "/b", "/c"} {
		log.add(AuditEntry{Path: path})
	}
	entries := log.List(0)
	require.Len(t, entries, 2)
	assert.Equal(t, "/b", entries[0].Path)
	assert.Equal(t, "/c", log.List(1)[0].Path)
}

func TestAuditLogWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	log := NewAuditLog(10, &buf)
	log.add(AuditEntry{Method: http.MethodPost, Path: "/api/cooperatives", Status: http.StatusCreated})
	log.add(AuditEntry{Method: http.MethodDelete, Path: "/api/members/1", Status: http.StatusNoContent})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var first AuditEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "/api/cooperatives", first.Path)
	assert.Nil(t, NewFileSink(""))
}
