package config

import (
	stderrors "errors"

	"github.com/loom-dev/loom/internal/errors"
	"github.com/loom-dev/loom/pkg/target"
)

// Registry validates the configured targets and builds the immutable
// target registry for this project. Registry-level validation failures
// (duplicate names, colliding routes) come back as coded errors.
func (c *Config) Registry() (*target.Registry, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	apis := make([]target.Source, 0, len(c.APIs))
	for _, api := range c.APIs {
		apis = append(apis, target.Source{
			Name:        api.Name,
			Entry:       api.Entry,
			Route:       api.Route,
			Environment: api.Environment,
		})
	}

	reg, err := target.New(
		target.Source{Entry: c.Client.Entry, Environment: c.Client.Environment},
		target.Source{Entry: c.SSR.Entry, Environment: c.SSR.Environment},
		apis...,
	)
	if err != nil {
		return nil, codeTargetError(err)
	}
	return reg, nil
}

// codeTargetError maps registry sentinels onto the coded error space.
func codeTargetError(err error) error {
	code := "E109"
	switch {
	case stderrors.Is(err, target.ErrMissingEntry):
		code = "E108"
	case stderrors.Is(err, target.ErrDuplicateName):
		code = "E103"
	case stderrors.Is(err, target.ErrRouteCollision):
		code = "E104"
	case stderrors.Is(err, target.ErrBadRoute):
		code = "E107"
	}
	return errors.New(code).WithDetail(err.Error()).Wrap(err)
}
