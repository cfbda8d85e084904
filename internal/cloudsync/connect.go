package cloudsync

import (
	"context"
	"errors"

	"efm-go/internal/efm"
	"efm-go/internal/pipeline"
)

// Cloud is the connection state of a pipeline that talks to the cloud.
// Contexts embed it to take part in ConnectToCloud and TestConnectToCloud.
type Cloud struct {
	Connect  efm.CloudConnector
	Settings *efm.Settings
	Ops      efm.CloudOps
}

// CloudState returns c. It lets embedding contexts satisfy Connectable.
func (c *Cloud) CloudState() *Cloud { return c }

// NeedsCloud reports whether the pipeline has remote work. Contexts override
// it to avoid connecting when everything is available locally.
func (c *Cloud) NeedsCloud() bool { return true }

// Connectable is implemented by every context embedding a *Cloud.
type Connectable interface {
	CloudState() *Cloud
	NeedsCloud() bool
}

// ConnectToCloud instantiates cloud ops from the settings. It is skipped when
// ops were injected up front or there is no remote work.
type ConnectToCloud[C Connectable] struct{}

func (ConnectToCloud[C]) Name() string { return "connect-to-cloud" }

func (ConnectToCloud[C]) ShouldExecute(c C) bool {
	return c.CloudState().Ops == nil && c.NeedsCloud()
}

func (ConnectToCloud[C]) Execute(ctx context.Context, c C) pipeline.Action {
	cl := c.CloudState()
	if cl.Connect == nil {
		return pipeline.Abort(efm.NewCloudSyncError("no cloud provider configured", nil))
	}
	ops, err := cl.Connect(ctx, cl.Settings)
	if err != nil {
		if errors.Is(err, efm.ErrSettings) || errors.Is(err, efm.ErrCloudSync) {
			return pipeline.Abort(err)
		}
		return pipeline.Abort(efm.NewCloudSyncError("connecting to cloud", err))
	}
	cl.Ops = ops
	return pipeline.Continue
}

// TestConnectToCloud verifies the ops can reach the remote store.
type TestConnectToCloud[C Connectable] struct{}

func (TestConnectToCloud[C]) Name() string { return "test-connect-to-cloud" }

func (TestConnectToCloud[C]) ShouldExecute(c C) bool {
	return c.CloudState().Ops != nil && c.NeedsCloud()
}

func (TestConnectToCloud[C]) Execute(ctx context.Context, c C) pipeline.Action {
	if err := c.CloudState().Ops.TestConnection(ctx); err != nil {
		if errors.Is(err, efm.ErrCloudSync) {
			return pipeline.Abort(err)
		}
		return pipeline.Abort(efm.NewCloudSyncError("testing cloud connection", err))
	}
	return pipeline.Continue
}
