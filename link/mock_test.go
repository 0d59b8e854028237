package link_test

import (
	"context"
	"testing"

	gomock "go.uber.org/mock/gomock"

	"i4.energy/across/blelink/at"
	"i4.energy/across/blelink/link"
)

type MockSequenceBuilder struct {
	transport *link.MockTransport
	calls     []any
}

func NewMockSequence(transport *link.MockTransport) *MockSequenceBuilder {
	return &MockSequenceBuilder{
		transport: transport,
		calls:     []any{},
	}
}

// Reply expects one attempt of cmd answered with reply.
func (b *MockSequenceBuilder) Reply(cmd at.Command, reply string) *MockSequenceBuilder {
	req := []byte(cmd.Request())
	b.calls = append(b.calls,
		b.transport.EXPECT().Buffered().Return(0),
		b.transport.EXPECT().Write(req).Return(len(req), nil),
		b.transport.EXPECT().ReadTimeout(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
			return copy(p, reply), nil
		}),
		b.transport.EXPECT().Buffered().Return(0),
	)
	return b
}

// Ack expects one attempt of cmd answered with its expected reply.
func (b *MockSequenceBuilder) Ack(cmd at.Command) *MockSequenceBuilder {
	reply, _ := cmd.Reply()
	return b.Reply(cmd, reply)
}

// Silent expects one attempt of cmd that times out without a byte.
func (b *MockSequenceBuilder) Silent(cmd at.Command) *MockSequenceBuilder {
	req := []byte(cmd.Request())
	b.calls = append(b.calls,
		b.transport.EXPECT().Buffered().Return(0),
		b.transport.EXPECT().Write(req).Return(len(req), nil),
		b.transport.EXPECT().ReadTimeout(gomock.Any()).Return(0, nil),
		b.transport.EXPECT().Buffered().Return(0),
	)
	return b
}

// Fire expects cmd to be written without waiting for a reply.
func (b *MockSequenceBuilder) Fire(cmd at.Command) *MockSequenceBuilder {
	req := []byte(cmd.Request())
	b.calls = append(b.calls,
		b.transport.EXPECT().Buffered().Return(0),
		b.transport.EXPECT().Write(req).Return(len(req), nil),
	)
	return b
}

// Setup expects the whole setup script followed by the connect request.
func (b *MockSequenceBuilder) Setup(peer string) *MockSequenceBuilder {
	for _, cmd := range at.InitScript() {
		b.Ack(cmd)
	}
	return b.Fire(at.Connect(peer))
}

// Receive expects one non-blocking read of exactly the given size that
// yields data.
func (b *MockSequenceBuilder) Receive(size int, data string) *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().ReadAvailable(gomock.Len(size)).DoAndReturn(func(p []byte) (int, error) {
			return copy(p, data), nil
		}),
	)
	return b
}

func (b *MockSequenceBuilder) Build() []any {
	return b.calls
}

const testPeer = "D03972A5F1C2"

type staticDialer struct {
	transport link.Transport
}

func (d staticDialer) Dial(_ context.Context) (link.Transport, error) {
	return d.transport, nil
}

// newDriver builds a Driver on transport with no retry or settle delays.
func newDriver(t *testing.T, transport link.Transport) *link.Driver {
	t.Helper()

	config, err := link.NewConfigBuilder().
		WithDialer(staticDialer{transport}).
		WithPeerAddress(testPeer).
		WithRetryDelay(0).
		WithSettleDelay(0).
		Build()
	if err != nil {
		t.Fatalf("unexpected error from Build(): %v", err)
	}

	d, err := link.New(context.Background(), config)
	if err != nil {
		t.Fatalf("unexpected error from New(): %v", err)
	}
	return d
}
