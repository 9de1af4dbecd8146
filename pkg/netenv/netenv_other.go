//go:build !linux

package netenv

import (
	"context"
	"errors"
)

var errUnsupported = errors.New("network environments are only supported on linux")

type unsupportedProvisioner struct{}

func NewProvisioner() Provisioner {
	return &unsupportedProvisioner{}
}

func (p *unsupportedProvisioner) CreateNamespace(string) error         { return errUnsupported }
func (p *unsupportedProvisioner) DeleteNamespace(string) error         { return errUnsupported }
func (p *unsupportedProvisioner) CreateVethPair(string, string) error  { return errUnsupported }
func (p *unsupportedProvisioner) DeleteInterface(string) error         { return errUnsupported }
func (p *unsupportedProvisioner) MoveToNamespace(string, string) error { return errUnsupported }
func (p *unsupportedProvisioner) SetUp(string, string) error           { return errUnsupported }
func (p *unsupportedProvisioner) SetDown(string, string) error         { return errUnsupported }
func (p *unsupportedProvisioner) AssignAddress(_, _, _ string) error   { return errUnsupported }
func (p *unsupportedProvisioner) DisableDAD(string, string) error      { return errUnsupported }
func (p *unsupportedProvisioner) InterfaceInfo(string, string) (*Interface, error) {
	return nil, errUnsupported
}
func (p *unsupportedProvisioner) RunInNamespace(context.Context, string, []string) error {
	return errUnsupported
}
