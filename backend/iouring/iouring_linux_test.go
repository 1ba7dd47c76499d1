//go:build linux

package iouring

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/uniyakcom/uring/core"
)

func newExecutor(t *testing.T) *Executor {
	t.Helper()
	if !IsSupported() {
		t.Skip("io_uring not available")
	}
	x, err := New(DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { x.Close() })
	return x
}

func TestReadWrite(t *testing.T) {
	x := newExecutor(t)
	f, err := os.Create(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)
	defer f.Close()
	fd := int(f.Fd())

	var op core.Op
	core.PrepWrite(&op, int32(fd), []byte("kernel ring"), 0, 1)
	require.Equal(t, int32(11), x.Execute(context.Background(), &core.Request{Op: &op, Fd: fd, Buf: op.Addr}))

	core.PrepFsync(&op, int32(fd), 2)
	require.Equal(t, int32(0), x.Execute(context.Background(), &core.Request{Op: &op, Fd: fd}))

	buf := make([]byte, 4)
	core.PrepRead(&op, int32(fd), buf, 7, 3)
	require.Equal(t, int32(4), x.Execute(context.Background(), &core.Request{Op: &op, Fd: fd, Buf: buf}))
	require.Equal(t, "ring", string(buf))
}

func TestUnsupportedOpcode(t *testing.T) {
	x := newExecutor(t)
	op := core.Op{Opcode: core.OpPollAdd}
	require.Equal(t, core.ResNotSupported, x.Execute(context.Background(), &core.Request{Op: &op}))
}
