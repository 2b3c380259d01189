package fault

import (
	"context"
	"errors"
	"io"
	"testing"

	juju "github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestWrap(t *testing.T) {
	err := Wrap(ErrIO, io.ErrUnexpectedEOF, "read %s", "handshake")
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, "io error: read handshake: unexpected EOF", err.Error())
	assert.Nil(t, Wrap(ErrIO, nil, "ignored"))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, Success, Classify(nil))
	assert.Equal(t, Fatal, Classify(Parse("bad torrent")))
	assert.Equal(t, Fatal, Classify(context.Canceled))
	assert.Equal(t, Fatal, Classify(errors.New("unknown")))
	assert.Equal(t, Retryable, Classify(Protocol("unexpected message")))
	assert.Equal(t, Retryable, Classify(Timeout("read")))
	assert.Equal(t, Retryable, Classify(Integrity("piece 0")))
	assert.Equal(t, Retryable, Classify(Network("dial")))
	assert.Equal(t, Retryable, Classify(context.DeadlineExceeded))
}

func TestClassifyThroughTrace(t *testing.T) {
	err := juju.Trace(Protocol("bad frame"))
	assert.Equal(t, Retryable, Classify(err))
	err = juju.Annotatef(Parse("pieces"), "load %s", "a.torrent")
	assert.Equal(t, Fatal, Classify(err))
}
