package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"

	"github.com/weiawesome/focus-room/pkg/log"
)

func TestEmitOmitsEmptyFields(t *testing.T) {
	var buf bytes.Buffer
	ctx := log.WithLogger(context.Background(), zerolog.New(&buf))

	LogTarget(ctx, ActionRoomClose, "u1", "r1", "room closed")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatal(err)
	}
	if line[log.FieldLogType] != log.LogTypeAudit || line[FieldAction] != ActionRoomClose {
		t.Errorf("unexpected line: %v", line)
	}
	if line[log.FieldUserID] != "u1" || line[FieldTargetID] != "r1" {
		t.Errorf("actor/target missing: %v", line)
	}
	if _, ok := line[FieldDetail]; ok {
		t.Errorf("empty detail should be omitted: %v", line)
	}
}
