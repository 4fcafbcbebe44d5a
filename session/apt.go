package session

import (
	"context"
	"io/fs"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mensylisir/xmwave/cache"
	"github.com/mensylisir/xmwave/logger"
)

const (
	aptUpdateStamp    = "/var/lib/apt/periodic/update-success-stamp"
	aptStampFreshness = time.Hour
)

// packageListUpdated marks that the package lists are known to be fresh.
type packageListUpdated struct{}

// Apt manages packages on Debian-like hosts.
type Apt struct {
	s   *Session
	log *logrus.Entry
	now func() time.Time
}

func (s *Session) Apt() *Apt {
	return &Apt{s: s, log: logger.ForRecipe(s.log, "apt"), now: time.Now}
}

// UpdatePackageList runs apt-get update.
func (a *Apt) UpdatePackageList(ctx context.Context) error {
	if _, err := a.s.Command("apt-get", "update").WithLogger(a.log).Run(ctx); err != nil {
		return err
	}
	cache.Insert(a.s.cache, packageListUpdated{})
	return nil
}

// ensureFresh updates the package lists unless this session already did, or the
// periodic apt job succeeded within the last hour.
func (a *Apt) ensureFresh(ctx context.Context) error {
	if cache.Contains[packageListUpdated](a.s.cache) {
		return nil
	}
	fi, err := a.s.fs.Metadata(aptUpdateStamp)
	switch {
	case err == nil:
		if age := a.now().Sub(fi.ModTime()); age < aptStampFreshness {
			a.log.Debugf("package lists updated %s ago, skipping apt-get update", age.Round(time.Second))
			cache.Insert(a.s.cache, packageListUpdated{})
			return nil
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return err
	}
	return a.UpdatePackageList(ctx)
}

// IsPackageInstalled asks dpkg for the package status. A package dpkg knows in any
// state other than "installed" counts as not installed.
func (a *Apt) IsPackageInstalled(ctx context.Context, pkg string) (bool, error) {
	out, err := a.s.Command("dpkg-query", "--show", "--showformat=${db:Status-Status}", pkg).
		WithLogger(a.log).
		HideCommand().
		HideAllOutput().
		AllowFailure().
		Run(ctx)
	if err != nil {
		return false, err
	}
	switch out.ExitCode {
	case 0:
		return out.Stdout == "installed", nil
	case 1:
		return false, nil
	default:
		return false, errors.Errorf("dpkg-query failed for %s with exit code %d", pkg, out.ExitCode)
	}
}

// Install installs every package that is not installed yet.
func (a *Apt) Install(ctx context.Context, pkgs ...string) error {
	var missing []string
	for _, p := range pkgs {
		ok, err := a.IsPackageInstalled(ctx, p)
		if err != nil {
			return err
		}
		if !ok {
			missing = append(missing, p)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	if err := a.ensureFresh(ctx); err != nil {
		return err
	}
	_, err := a.s.Command("apt-get", "install", "--yes").Args(missing...).WithLogger(a.log).Run(ctx)
	return err
}

// UpgradeSystem runs a non-interactive dist-upgrade.
func (a *Apt) UpgradeSystem(ctx context.Context) error {
	if err := a.ensureFresh(ctx); err != nil {
		return err
	}
	_, err := a.s.RawCommand("DEBIAN_FRONTEND=noninteractive", "apt-get", "dist-upgrade", "--yes").
		WithLogger(a.log).
		Run(ctx)
	return err
}
