package environment

import (
	"github.com/virtlab/netlab/pkg/netenv"
)

// Environment is a named, isolated virtual network test environment: a
// network namespace connected to the host by a veth pair, with an address
// prefix assigned to both ends.
type Environment struct {
	Name   string
	Prefix string
}

// Report describes the currently selected environment and the full registry
// listing. Current is empty when no environment is selected. Host and
// Namespace carry live interface state and are nil when the underlying
// interfaces are gone.
type Report struct {
	Current   string
	Prefix    string
	Host      *netenv.Interface
	Namespace *netenv.Interface
	Known     []string
}
