package status

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode_Class(t *testing.T) {
	tests := []struct {
		code Code
		want Class
	}{
		{OK, ClassOK},
		{InvalidArgs, ClassFatal},
		{NameTooLong, ClassFatal},
		{RuntimeFault, ClassRecoverable},
		{Yield, ClassTransition},
		{Restart, ClassTransition},
		{Hibernate, ClassTransition},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.Class())
		})
	}
}

func TestCode_CompatibleValues(t *testing.T) {
	assert.Equal(t, Code(43), InvalidMagic)
	assert.Equal(t, Code(46), UnexpectedEOF)
	assert.Equal(t, Code(60), InvalidCompEndMarker)
	assert.Equal(t, Code(253), Yield)
	assert.Equal(t, Code(254), Restart)
	assert.Equal(t, Code(255), Hibernate)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, OK, CodeOf(nil))
	assert.Equal(t, InvalidMagic, CodeOf(New(InvalidMagic, "loadApp", "bad magic")))

	wrapped := fmt.Errorf("boot: %w", New(InvalidSchema, "loadApp", ""))
	assert.Equal(t, InvalidSchema, CodeOf(wrapped))

	assert.Equal(t, CannotInitApp, CodeOf(errors.New("plain")))
}

func TestError_Is(t *testing.T) {
	err := fmt.Errorf("outer: %w", Errorf(InvalidVersion, "loadApp", "version %d", 9))

	assert.True(t, errors.Is(err, &Error{Code: InvalidVersion}))
	assert.False(t, errors.Is(err, &Error{Code: InvalidMagic}))
	assert.True(t, Is(err, InvalidVersion))
	assert.True(t, IsFatal(err))
	assert.False(t, IsRecoverable(err))
}

func TestError_Message(t *testing.T) {
	err := Wrap(CannotOpenFile, "loadFile", errors.New("no such file"))
	assert.Equal(t, "loadFile: cannotOpenFile (42): no such file", err.Error())
	assert.Equal(t, "nameTooLong (61)", New(NameTooLong, "", "").Error())
}

func TestResult_Code(t *testing.T) {
	assert.Equal(t, 0, Result{Kind: Stopped}.ExitCode())
	assert.Equal(t, 255, Result{Kind: Hibernated}.ExitCode())
	assert.Equal(t, 253, Result{Kind: Yielded}.ExitCode())
	assert.Equal(t, 254, Result{Kind: Restarting}.ExitCode())
	assert.Equal(t, 53, Fail(New(NoPlatformService, "start", "")).ExitCode())

	assert.True(t, Result{Kind: Yielded}.Resumable())
	assert.False(t, Result{Kind: Restarting}.Resumable())
}
