package engine

import "errors"

var (
	ErrNoDecoder           = errors.New("no decoder for file suffix")
	ErrNoRenderer          = errors.New("no renderer attached")
	ErrDecoderOpenFailed   = errors.New("decoder open failed")
	ErrRendererSetupFailed = errors.New("renderer setup failed")
	ErrDecodeFailed        = errors.New("decode failed")
	ErrRenderFailed        = errors.New("render failed")
	ErrNotOpen             = errors.New("no stream open")
	ErrNotStopped          = errors.New("engine not stopped")
	ErrClosed              = errors.New("engine shut down")
)
