package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/veltapay/chainfunnel/internal/chain"
	"github.com/veltapay/chainfunnel/internal/models"
)

// NodeNotAccessibleError means the chain node itself is unreachable or
// inconsistent. It aborts the whole run; the watermark stays untouched and
// the next timer tick retries.
type NodeNotAccessibleError struct {
	Chain models.Chain
	Err   error
}

func (e *NodeNotAccessibleError) Error() string {
	return fmt.Sprintf("node for %s not accessible: %v", e.Chain, e.Err)
}

func (e *NodeNotAccessibleError) Unwrap() error {
	return e.Err
}

// IsNodeNotAccessible reports whether err carries a run-aborting node fault.
func IsNodeNotAccessible(err error) bool {
	var nodeErr *NodeNotAccessibleError
	return errors.As(err, &nodeErr)
}

// nodeInSync verifies the node's blocks are within one of its headers and
// returns the current state. A lagging node aborts the run.
func nodeInSync(ctx context.Context, client chain.Client, chainName models.Chain) (chain.Info, error) {
	info, err := client.GetInfo(ctx)
	if err != nil {
		return chain.Info{}, &NodeNotAccessibleError{Chain: chainName, Err: err}
	}
	if info.Blocks < info.Headers-1 {
		return chain.Info{}, fmt.Errorf("node for %s not in sync by %d block(s)", chainName, info.Headers-info.Blocks)
	}
	return info, nil
}
