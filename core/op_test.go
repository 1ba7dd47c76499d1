package core

import (
	"errors"
	"testing"
)

// TestCompletionAccessorsByValue 完成描述符按值存放（map / 切片副本）时访问器可直接调用
func TestCompletionAccessorsByValue(t *testing.T) {
	got := map[uint64]Completion{
		1: {Tag: 1, Res: 16, Flags: CQEMore | CQEBuffer | CQEFlags(7)<<CQEBufferShift},
		2: {Tag: 2, Res: ResCanceled},
		3: {Tag: 3, Res: ResBadResource},
	}

	if !got[1].More() {
		t.Error("tag 1: More() = false")
	}
	if bid, ok := got[1].BufferID(); !ok || bid != 7 {
		t.Errorf("tag 1: BufferID() = %d, %v", bid, ok)
	}
	if err := got[1].Err(); err != nil {
		t.Errorf("tag 1: Err() = %v", err)
	}

	if got[2].More() {
		t.Error("tag 2: More() = true")
	}
	if _, ok := got[2].BufferID(); ok {
		t.Error("tag 2: unexpected buffer id")
	}
	if !errors.Is(got[2].Err(), ErrPropagatedFailure) {
		t.Errorf("tag 2: Err() = %v", got[2].Err())
	}
	if !errors.Is(got[3].Err(), ErrInvalidResource) {
		t.Errorf("tag 3: Err() = %v", got[3].Err())
	}
}

func TestResultErrorExecution(t *testing.T) {
	err := ResultError(-28)
	var ee *ExecutionError
	if !errors.As(err, &ee) || ee.Res != -28 {
		t.Fatalf("ResultError(-28) = %#v", err)
	}
	if ResultError(0) != nil {
		t.Error("ResultError(0) != nil")
	}
}
