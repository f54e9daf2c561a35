package transfer

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/pithecene-io/ferry/transport"
	"github.com/pithecene-io/ferry/types"
)

// LoopbackAddress is the listen address used by Loopback.
const LoopbackAddress = "127.0.0.1:0"

// LoopbackResult holds both reports of an in-process exchange.
type LoopbackResult struct {
	Send    *types.SendReport
	Receive *types.ReceiveReport
}

// Loopback runs sender and receiver in one process over a loopback TCP
// connection. The first role to fail cancels the other; its error is
// returned together with whatever each report recorded.
func Loopback(ctx context.Context, sender *Sender, receiver *Receiver) (*LoopbackResult, error) {
	ln, err := transport.Listen(ctx, LoopbackAddress)
	if err != nil {
		return nil, fail(ctx, types.RoleSender, StateListening, -1, nil, err)
	}
	addr := ln.Addr().String()

	result := &LoopbackResult{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		report, err := sender.Serve(gctx, ln)
		result.Send = report
		return err
	})
	g.Go(func() error {
		report, err := receiver.Run(gctx, addr)
		result.Receive = report
		return err
	})
	return result, g.Wait()
}
