package provider

import (
	"context"
	"image"
	"sync/atomic"

	"sylph/internal/landmark"
	"sylph/internal/vision"
)

// ImageSource yields raw video frames for remote inference. Implementations
// wrap whatever produces pixels: a capture device, a decoder, a test fake.
type ImageSource interface {
	Ready() bool
	Dimensions() (width, height int)
	Grab(ctx context.Context) (image.Image, error)
}

// Remote pairs an image source with the inference client, turning pixels
// into landmark frames on demand.
type Remote struct {
	images ImageSource
	client *Client
	seq    atomic.Uint64
}

func NewRemote(images ImageSource, client *Client) *Remote {
	return &Remote{images: images, client: client}
}

// Ready requires both live pixels and a healthy inference service. The
// health answer is cached, so this is cheap to call per tick.
func (r *Remote) Ready() bool {
	return r.images.Ready() && r.client.Healthy()
}

func (r *Remote) Dimensions() (int, int) {
	return r.images.Dimensions()
}

// Acquire grabs one image and runs it through inference.
func (r *Remote) Acquire(ctx context.Context) (*landmark.Frame, error) {
	m, err := r.images.Grab(ctx)
	if err != nil {
		return nil, err
	}
	return r.client.Detect(ctx, m, r.seq.Add(1))
}

var (
	_ vision.FrameSource = (*Remote)(nil)
	_ vision.FrameSource = (*Script)(nil)
	_ vision.FrameSource = (*Synthetic)(nil)
)
