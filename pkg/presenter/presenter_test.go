package presenter

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestPresenter() (*TerminalPresenter, *bytes.Buffer, *bytes.Buffer) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return NewWithOptions(out, errOut, ColorNever), out, errOut
}

func TestError(t *testing.T) {
	p, out, errOut := newTestPresenter()

	p.Error(errors.New("boom"), "loading config")
	assert.Empty(t, out.String())
	assert.Equal(t, "[ERROR] loading config: boom\n", errOut.String())

	errOut.Reset()
	p.Error(errors.New("boom"), "")
	assert.Equal(t, "[ERROR] boom\n", errOut.String())
}

func TestErrorNil(t *testing.T) {
	p, _, errOut := newTestPresenter()
	p.Error(nil, "anything")
	assert.Empty(t, errOut.String())
}

func TestSuccessWarningInfo(t *testing.T) {
	p, out, _ := newTestPresenter()

	p.Success("server started")
	p.Warning("mailbox empty")
	p.Info("polling")

	assert.Contains(t, out.String(), "[OK] server started")
	assert.Contains(t, out.String(), "[WARN] mailbox empty")
	assert.Contains(t, out.String(), "polling")
}

func TestSection(t *testing.T) {
	p, out, _ := newTestPresenter()
	p.Section("Claims")
	assert.Contains(t, out.String(), "Claims")
	assert.Contains(t, out.String(), "------")
}

func TestQuietSuppressesAllButErrors(t *testing.T) {
	p, out, errOut := newTestPresenter()
	p.SetQuiet(true)
	assert.True(t, p.IsQuiet())

	p.Success("ok")
	p.Warning("warn")
	p.Info("info")
	p.Section("section")
	assert.Empty(t, out.String())

	p.Error(errors.New("boom"), "")
	assert.NotEmpty(t, errOut.String())
}
