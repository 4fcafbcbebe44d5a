// Package main is the xmwave command line: run commands, upload files and manage a
// small nginx site on remote hosts over SSH.
package main

import (
	"context"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mensylisir/xmwave/common"
	"github.com/mensylisir/xmwave/config"
	"github.com/mensylisir/xmwave/logger"
	"github.com/mensylisir/xmwave/session"
	"github.com/mensylisir/xmwave/util"
)

// Global flags
var (
	configPath string
	logDir     string
	logLevel   string
	verbose    bool

	cfg *config.Config
)

const (
	siteRoot  = "/var/www"
	vhostPath = "/etc/nginx/sites-enabled/" + common.AppName + ".conf"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Log.Errorf("%v", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   common.AppName,
	Short: "Drive remote hosts over SSH",
	Long: `xmwave runs commands on remote hosts over a single SSH connection,
uploads files with rsync and sets up a static nginx site.

DEST is [user@]host or ssh://[user@]host[:port]; aliases from ~/.ssh/config work.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initRuntime,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Also write rotated log files to this directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging with caller information")

	uploadCmd.Flags().String("to", "", "Remote directory to upload into (required)")
	uploadCmd.Flags().String("as", "", "Remote user that owns the uploaded files")
	_ = uploadCmd.MarkFlagRequired("to")

	setupCmd.Flags().String("site", "", "Local directory with the site content (required)")
	setupCmd.Flags().String("vhost", "", "nginx server block template (required)")
	setupCmd.Flags().String("server-name", "", "server_name of the vhost, defaults to the destination host")
	setupCmd.Flags().String("owner", "", "Remote user that owns the site files, created when missing")
	_ = setupCmd.MarkFlagRequired("site")
	_ = setupCmd.MarkFlagRequired("vhost")

	rootCmd.AddCommand(execCmd, uploadCmd, setupCmd, startCmd, stopCmd)
}

// initRuntime loads the configuration and initializes the global logger. Flags win over the file.
func initRuntime(_ *cobra.Command, _ []string) error {
	var err error
	if configPath != "" {
		cfg, err = config.NewLoader(configPath).Load()
		if err != nil {
			return err
		}
	} else {
		cfg = config.Default()
	}

	level, err := logger.ParseLevel(util.FirstNonEmpty(logLevel, cfg.Log.Level))
	if err != nil {
		return err
	}
	return logger.InitGlobalLogger(util.FirstNonEmpty(logDir, cfg.Log.Dir), verbose || cfg.Log.Verbose, level)
}

func connect(ctx context.Context, dest string) (*session.Session, error) {
	sshCfg, err := cfg.SSHConfig()
	if err != nil {
		return nil, err
	}
	return session.FromConfig(ctx, sshCfg, dest)
}

// withSession connects to args[0], runs f and closes the session.
func withSession(f func(ctx context.Context, s *session.Session, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := connect(ctx, args[0])
		if err != nil {
			return err
		}
		defer func() {
			if err := s.Close(); err != nil {
				s.Logger().Warnf("failed to close session: %v", err)
			}
		}()
		return f(ctx, s, args[1:])
	}
}

var execCmd = &cobra.Command{
	Use:   "exec DEST -- COMMAND [ARG...]",
	Short: "Run a command on DEST and exit with its exit code",
	Args:  cobra.MinimumNArgs(2),
	RunE: withSession(func(ctx context.Context, s *session.Session, args []string) error {
		out, err := s.Command(args...).AllowFailure().Run(ctx)
		if err != nil {
			return err
		}
		if out.ExitCode != 0 {
			_ = s.Close()
			os.Exit(out.ExitCode)
		}
		return nil
	}),
}

var uploadCmd = &cobra.Command{
	Use:   "upload DEST LOCAL...",
	Short: "Upload local files and directories into a remote directory with rsync",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		to, _ := cmd.Flags().GetString("to")
		as, _ := cmd.Flags().GetString("as")
		return withSession(func(ctx context.Context, s *session.Session, locals []string) error {
			return s.Upload(ctx, locals, to, as)
		})(cmd, args)
	},
}

var setupCmd = &cobra.Command{
	Use:   "setup DEST",
	Short: "Install nginx and publish a static site",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		site, _ := cmd.Flags().GetString("site")
		vhost, _ := cmd.Flags().GetString("vhost")
		serverName, _ := cmd.Flags().GetString("server-name")
		owner, _ := cmd.Flags().GetString("owner")
		return withSession(func(ctx context.Context, s *session.Session, _ []string) error {
			return setupSite(ctx, s, siteOptions{
				site:       site,
				vhost:      vhost,
				serverName: util.FirstNonEmpty(serverName, s.Destination()),
				owner:      owner,
			})
		})(cmd, args)
	},
}

var startCmd = &cobra.Command{
	Use:   "start DEST",
	Short: "Start nginx",
	Args:  cobra.ExactArgs(1),
	RunE: withSession(func(ctx context.Context, s *session.Session, _ []string) error {
		_, err := s.Command("systemctl", "start", "nginx").Run(ctx)
		return err
	}),
}

var stopCmd = &cobra.Command{
	Use:   "stop DEST",
	Short: "Stop nginx",
	Args:  cobra.ExactArgs(1),
	RunE: withSession(func(ctx context.Context, s *session.Session, _ []string) error {
		_, err := s.Command("systemctl", "stop", "nginx").Run(ctx)
		return err
	}),
}

type siteOptions struct {
	site       string
	vhost      string
	serverName string
	owner      string
}

func setupSite(ctx context.Context, s *session.Session, opts siteOptions) error {
	start := time.Now()
	site, err := filepath.Abs(opts.site)
	if err != nil {
		return errors.Wrap(err, "failed to resolve site directory")
	}
	tmpl, err := os.ReadFile(opts.vhost)
	if err != nil {
		return errors.Wrap(err, "failed to read vhost template")
	}
	docRoot := path.Join(siteRoot, filepath.Base(site))
	conf, err := util.RenderString(string(tmpl), util.Data{
		"ServerName": opts.serverName,
		"Root":       docRoot,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to render %s", opts.vhost)
	}

	if err := s.Apt().Install(ctx, "nginx", "rsync"); err != nil {
		return err
	}
	defaultSite := "/etc/nginx/sites-enabled/default"
	exists, err := s.PathExists(ctx, defaultSite)
	if err != nil {
		return err
	}
	if exists {
		if err := s.FS().RemoveFile(defaultSite); err != nil {
			return err
		}
	}
	if err := s.FS().Write(vhostPath, []byte(conf)); err != nil {
		return err
	}

	if opts.owner != "" {
		if err := s.CreateUser(ctx, opts.owner); err != nil {
			return err
		}
		if err := s.FS().CreateDirAll(docRoot); err != nil {
			return err
		}
		if _, err := s.Command("chown", "--recursive", opts.owner+":", docRoot).Run(ctx); err != nil {
			return err
		}
	}
	if err := s.Upload(ctx, []string{site}, siteRoot, opts.owner); err != nil {
		return err
	}

	_, err = s.Command("systemctl", "reload-or-restart", "nginx").Run(ctx)
	if err == nil {
		s.Logger().Infof("site %s is served from %s (took %s)", opts.serverName, docRoot, util.Elapsed(start))
	}
	return err
}
