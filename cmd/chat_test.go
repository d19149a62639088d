package cmd

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/moorthiguru33/omegle-clone-sub000/internal/config"
	"github.com/moorthiguru33/omegle-clone-sub000/internal/media"
)

func TestMediaSourceSelection(t *testing.T) {
	src := mediaSource(&config.Config{VideoFile: "cam.ivf", UseDevice: true}, nil)
	assert.IsType(t, &media.FileSource{}, src)

	src = mediaSource(&config.Config{}, nil)
	assert.Equal(t, media.NoSource{}, src)
}

func TestCommandErrorUnwraps(t *testing.T) {
	err := newError("load profile", media.ErrDeviceBusy)
	assert.EqualError(t, err, "load profile: device busy")
	assert.True(t, errors.Is(err, media.ErrDeviceBusy))
}
