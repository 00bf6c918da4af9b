package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stdout)
		SetLevel("info")
	})
	return &buf
}

func TestFlowAndStageAttributes(t *testing.T) {
	buf := capture(t)

	Flow("acc", "f1").Info("flow applied", "type", "buy")
	Stage("tax_liquidation", "2025-03-06", "acc").Warn("stage failed")
	Stage("ts_sync", "2025-03-06", "").Info("stage done")

	out := buf.String()
	assert.Contains(t, out, `msg="flow applied" svc=fundledger account=acc flow=f1 type=buy`)
	assert.Contains(t, out, `msg="stage failed" svc=fundledger stage=tax_liquidation day=2025-03-06 account=acc`)
	assert.Contains(t, out, `msg="stage done" svc=fundledger stage=ts_sync day=2025-03-06`+"\n")
}

func TestSetLevel(t *testing.T) {
	buf := capture(t)

	SetLevel("warn")
	Infof("hidden %d", 1)
	Warnf("shown %d", 2)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown 2")

	SetLevel("bogus")
	Infof("visible again")
	assert.Contains(t, buf.String(), "visible again")
}
