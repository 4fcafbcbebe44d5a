package session

import (
	"context"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/mensylisir/xmwave/common"
	"github.com/mensylisir/xmwave/file"
	"github.com/mensylisir/xmwave/logger"
	"github.com/mensylisir/xmwave/runner"
	"github.com/mensylisir/xmwave/util"
)

var rsyncFlags = []string{
	"--itemize-changes",
	"--recursive",
	"--links",
	"--perms",
	"--times",
	"--compress",
	"--delete",
}

// Upload copies localPaths into remoteDir with the local rsync binary. Files are
// replaced, and uploaded directories lose remote files that do not exist locally.
// With remoteUser set the remote rsync runs as that user through sudo.
//
// The transfer goes through the local ssh client, so its own configuration and
// known_hosts apply.
func (s *Session) Upload(ctx context.Context, localPaths []string, remoteDir, remoteUser string) error {
	fi, err := s.fs.Metadata(remoteDir)
	if err != nil {
		return errors.Wrapf(err, "failed to inspect upload destination %q", remoteDir)
	}
	if !fi.IsDir() {
		return errors.Errorf("upload destination %q is not a directory", remoteDir)
	}

	cmd, err := s.rsyncCommand(localPaths, remoteDir, remoteUser)
	if err != nil {
		return err
	}
	if err := s.Apt().Install(ctx, "rsync"); err != nil {
		return errors.Wrap(err, "failed to install rsync")
	}
	start := time.Now()
	if _, err := cmd.Run(ctx); err != nil {
		return err
	}
	logger.ForRecipe(s.log, "upload").Infof("uploaded %d path(s) to %s in %s", len(localPaths), remoteDir, util.Elapsed(start))
	return nil
}

func (s *Session) rsyncCommand(localPaths []string, remoteDir, remoteUser string) (runner.LocalCommand, error) {
	cmd := runner.NewLocalCommand("rsync").
		Args(rsyncFlags...).
		WithLogger(logger.ForRecipe(s.log, "upload")).
		HideCommand()

	if remoteUser != "" {
		if !common.SafeUserPattern.MatchString(remoteUser) {
			return cmd, errors.Wrapf(ErrUnsafeIdentifier, "unsafe user %q", remoteUser)
		}
		cmd = cmd.Args("--rsync-path", "sudo --user "+remoteUser+" rsync")
	}
	if s.port != 0 {
		cmd = cmd.Args("--rsh", "ssh -p "+strconv.Itoa(s.port))
	}

	for _, p := range localPaths {
		if !utf8.ValidString(p) {
			return cmd, errors.Errorf("local path %q is not valid UTF-8", p)
		}
		ok, err := file.PathExists(p)
		if err != nil {
			return cmd, errors.Wrapf(err, "failed to stat %s", p)
		}
		if !ok {
			return cmd, errors.Errorf("local path %s does not exist", p)
		}
	}
	// Paths starting with "-" would otherwise be read as options.
	cmd = cmd.Arg("--").Args(localPaths...)

	dest := s.destination
	if strings.Contains(dest, ":") {
		dest = "[" + dest + "]"
	}
	if s.user != "" {
		dest = s.user + "@" + dest
	}
	return cmd.Arg(dest + ":" + remoteDir), nil
}
