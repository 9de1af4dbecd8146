package environment

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/virtlab/netlab/pkg/config"
	"github.com/virtlab/netlab/pkg/netenv"
)

// Environment names double as the host-side veth interface name, so they are
// bound by the kernel interface name limit (IFNAMSIZ minus the terminator).
const maxNameLength = 15

type Service interface {
	// ResolveName picks the environment name for a create operation:
	// the explicit name when given, otherwise the current selection unless
	// generate is set, otherwise a generated <prefix>-<4 hex digits> name.
	ResolveName(explicit string, generate bool) (string, error)
	Create(ctx context.Context, name string, prefix string) (*Environment, error)
	// Get is a pure read and never moves the current selection.
	Get(ctx context.Context, name string) (*Environment, error)
	// SelectAndGet resolves the name against the current selection, reads
	// the record and makes it the current selection.
	SelectAndGet(ctx context.Context, explicit string) (*Environment, error)
	Destroy(ctx context.Context, explicit string) error
	Reset(ctx context.Context, explicit string) (*Environment, error)
	Status(ctx context.Context, explicit string) (*Report, error)
	Exec(ctx context.Context, explicit string, argv []string) error
}

type service struct {
	repository  Repository
	provisioner netenv.Provisioner
	config      *config.Config
	geteuid     func() int
}

func NewService(repository Repository, provisioner netenv.Provisioner, config *config.Config) Service {
	return &service{
		repository:  repository,
		provisioner: provisioner,
		config:      config,
		geteuid:     unix.Geteuid,
	}
}

func (s *service) ResolveName(explicit string, generate bool) (string, error) {
	name := explicit
	if name == "" && !generate {
		current, err := s.repository.Current()
		if err != nil {
			return "", err
		}
		name = current
	}
	if name == "" {
		suffix := make([]byte, 2)
		if _, err := rand.Read(suffix); err != nil {
			return "", fmt.Errorf("failed to generate environment name: %w", err)
		}
		name = fmt.Sprintf("%s-%s", s.config.NamePrefix, hex.EncodeToString(suffix))
	}
	if len(name) > maxNameLength {
		return "", fmt.Errorf("%w: %s", ErrNameTooLong, name)
	}
	return name, nil
}

func (s *service) Create(ctx context.Context, name string, prefix string) (*Environment, error) {
	if err := s.checkPrivilege(); err != nil {
		return nil, err
	}
	if len(name) > maxNameLength {
		return nil, fmt.Errorf("%w: %s", ErrNameTooLong, name)
	}

	if _, err := s.repository.Find(name); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	number, err := s.repository.NextNumber()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate environment number: %w", err)
	}
	hexNumber := strconv.FormatInt(number, 16)

	if prefix == "" {
		prefix = fmt.Sprintf("%s:%s::", s.config.SubnetBase, hexNumber)
	}
	peerName := "vp-" + hexNumber

	if err := s.provision(name, peerName, prefix); err != nil {
		s.rollback(name)
		return nil, fmt.Errorf("failed to provision environment %s: %w", name, err)
	}

	// The record is written only once provisioning has fully succeeded.
	env := &Environment{
		Name:   name,
		Prefix: prefix,
	}
	if err := s.repository.Create(env); err != nil {
		s.rollback(name)
		return nil, err
	}
	if err := s.repository.SetCurrent(name); err != nil {
		return nil, err
	}

	logrus.
		WithField("environment", name).
		WithField("prefix", prefix).
		WithField("number", hexNumber).
		Info("environment created")
	return env, nil
}

func (s *service) provision(name, peerName, prefix string) error {
	if err := s.provisioner.CreateNamespace(name); err != nil {
		return err
	}
	if err := s.provisioner.CreateVethPair(name, peerName); err != nil {
		return err
	}
	if err := s.provisioner.MoveToNamespace(peerName, name); err != nil {
		return err
	}
	if err := s.provisioner.SetUp("", name); err != nil {
		return err
	}
	if err := s.provisioner.SetUp(name, peerName); err != nil {
		return err
	}
	if err := s.provisioner.DisableDAD("", name); err != nil {
		return err
	}
	if err := s.provisioner.DisableDAD(name, peerName); err != nil {
		return err
	}
	if err := s.provisioner.AssignAddress("", name, s.cidr(prefix, "2")); err != nil {
		return err
	}
	if err := s.provisioner.AssignAddress(name, peerName, s.cidr(prefix, "1")); err != nil {
		return err
	}
	return nil
}

func (s *service) cidr(prefix, host string) string {
	return fmt.Sprintf("%s%s/%d", prefix, host, s.config.PrefixBits)
}

// rollback undoes whatever parts of a failed provisioning attempt exist.
// Rollback failures are logged, never propagated.
func (s *service) rollback(name string) {
	var result *multierror.Error
	if err := s.provisioner.DeleteInterface(name); err != nil {
		result = multierror.Append(result, err)
	}
	if err := s.provisioner.DeleteNamespace(name); err != nil {
		result = multierror.Append(result, err)
	}
	if err := s.repository.Delete(name); err != nil && !errors.Is(err, ErrNotFound) {
		result = multierror.Append(result, err)
	}
	if err := result.ErrorOrNil(); err != nil {
		logrus.
			WithError(err).
			WithField("environment", name).
			Error("failed to roll back partially provisioned environment")
	}
}

func (s *service) Get(_ context.Context, name string) (*Environment, error) {
	return s.repository.Find(name)
}

func (s *service) SelectAndGet(_ context.Context, explicit string) (*Environment, error) {
	name := explicit
	if name == "" {
		current, err := s.repository.Current()
		if err != nil {
			return nil, err
		}
		name = current
	}
	if name == "" {
		return nil, ErrNoEnvironmentSelected
	}

	env, err := s.repository.Find(name)
	if err != nil {
		return nil, err
	}
	if err := s.repository.SetCurrent(name); err != nil {
		return nil, err
	}
	return env, nil
}

func (s *service) Destroy(ctx context.Context, explicit string) error {
	if err := s.checkPrivilege(); err != nil {
		return err
	}

	env, err := s.SelectAndGet(ctx, explicit)
	if err != nil {
		return err
	}

	// OS teardown runs before the record is removed so a failed teardown
	// cannot leave an orphaned namespace with no bookkeeping. Teardown
	// failures are reported but never block state removal.
	var result *multierror.Error
	if err := s.provisioner.DeleteInterface(env.Name); err != nil {
		result = multierror.Append(result, err)
	}
	if err := s.provisioner.DeleteNamespace(env.Name); err != nil {
		result = multierror.Append(result, err)
	}
	if err := result.ErrorOrNil(); err != nil {
		logrus.
			WithError(err).
			WithField("environment", env.Name).
			Warn("environment teardown did not complete cleanly")
	}

	if err := s.repository.Delete(env.Name); err != nil {
		return err
	}

	current, err := s.repository.Current()
	if err != nil {
		return err
	}
	if current == env.Name {
		if err := s.repository.ClearCurrent(); err != nil {
			return err
		}
	}

	if err := s.repository.Compact(); err != nil {
		return err
	}

	logrus.
		WithField("environment", env.Name).
		Info("environment destroyed")
	return nil
}

func (s *service) Reset(ctx context.Context, explicit string) (*Environment, error) {
	env, err := s.SelectAndGet(ctx, explicit)
	if err != nil {
		return nil, err
	}
	if err := s.Destroy(ctx, env.Name); err != nil {
		return nil, err
	}
	return s.Create(ctx, env.Name, "")
}

func (s *service) Status(_ context.Context, explicit string) (*Report, error) {
	known, err := s.repository.FindAll()
	if err != nil {
		return nil, err
	}

	name := explicit
	if name == "" {
		if name, err = s.repository.Current(); err != nil {
			return nil, err
		}
	}

	report := &Report{Known: known}
	if name == "" {
		return report, nil
	}

	env, err := s.repository.Find(name)
	if err != nil {
		return nil, err
	}
	report.Current = env.Name
	report.Prefix = env.Prefix

	// Interface lookups are best effort: the report still lists the record
	// when the underlying interfaces are gone.
	host, err := s.provisioner.InterfaceInfo("", env.Name)
	if err != nil {
		logrus.
			WithError(err).
			WithField("environment", env.Name).
			Debug("failed to read host interface state")
	}
	report.Host = host

	peer, err := s.provisioner.InterfaceInfo(env.Name, "")
	if err != nil {
		logrus.
			WithError(err).
			WithField("environment", env.Name).
			Debug("failed to read namespace interface state")
	}
	report.Namespace = peer

	return report, nil
}

func (s *service) Exec(ctx context.Context, explicit string, argv []string) error {
	if err := s.checkPrivilege(); err != nil {
		return err
	}

	env, err := s.SelectAndGet(ctx, explicit)
	if err != nil {
		return err
	}
	if len(argv) == 0 {
		argv = []string{s.config.Shell}
	}
	return s.provisioner.RunInNamespace(ctx, env.Name, argv)
}

func (s *service) checkPrivilege() error {
	if s.geteuid() != 0 {
		return ErrPermission
	}
	return nil
}
