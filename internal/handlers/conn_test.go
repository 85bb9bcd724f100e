package handlers

import (
	"testing"

	"github.com/jason-s-yu/parley/internal/payload"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

func TestConnSendOverflowMarksDead(t *testing.T) {
	logger, _ := test.NewNullLogger()
	c := newConn(2, logger)

	assert.True(t, c.Send(&payload.Message{}))
	assert.True(t, c.Send(&payload.Message{}))
	assert.False(t, c.Send(&payload.Message{}), "a full outbox reports the peer as gone")
	assert.True(t, c.overflowed())
}

func TestConnCloseIsIdempotent(t *testing.T) {
	logger, _ := test.NewNullLogger()
	c := newConn(4, logger)

	c.Close()
	c.Close()

	select {
	case <-c.Done():
	default:
		t.Fatal("Done should be closed")
	}
	assert.False(t, c.Send(&payload.Message{}))
	assert.False(t, c.overflowed())
}
