package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-vpn-auth-service/company"
	sqlitecompanyrepo "github.com/jrsteele09/go-vpn-auth-service/company/reposqlite"
	"github.com/jrsteele09/go-vpn-auth-service/directory"
	"github.com/jrsteele09/go-vpn-auth-service/internal/config"
	"github.com/jrsteele09/go-vpn-auth-service/mgmt"
	"github.com/jrsteele09/go-vpn-auth-service/server"
	"github.com/jrsteele09/go-vpn-auth-service/twofactor"
	sqlitecoderepo "github.com/jrsteele09/go-vpn-auth-service/twofactor/reposqlite"
	sqliteuserrepo "github.com/jrsteele09/go-vpn-auth-service/users/reposqlite"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const configFileName = "vpnauthd.toml"

func main() {
	args := os.Args[1:]
	command := "start"
	if len(args) > 0 {
		command = args[0]
		args = args[1:]
	}

	var err error
	switch command {
	case "start":
		err = start(args)
	case "status":
		err = status()
	case "stop":
		err = stop()
	default:
		err = fmt.Errorf("unknown command %q (expected start, status or stop)", command)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "vpnauthd: %s\n", err)
		os.Exit(1)
	}
}

func start(args []string) error {
	background := false
	for _, arg := range args {
		if arg == "--background" {
			background = true
		}
	}
	if background {
		return startBackground()
	}
	if err := run(); err != nil {
		return err
	}
	log.Info().Msg("server stopped")
	return nil
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.Load(filepath.Join(config.GetEnv("FOLDER", "./data"), configFileName))
	if err != nil {
		return err
	}
	setupLogging(c)
	displayAppname(c.GetAppName())

	if err := os.MkdirAll(c.GetDataFolder(), 0o755); err != nil {
		return errors.Wrap(err, "create data folder")
	}
	if err := writePidFile(pidPath(c)); err != nil {
		return err
	}
	defer os.Remove(pidPath(c))

	repos, closeRepos, err := openRepos(c)
	if err != nil {
		return err
	}
	defer closeRepos()

	supervisor := mgmt.NewSupervisor(
		mgmtConfig(c),
		directory.NewService(repos.Users),
		repos.TwoFactor,
	)

	httpServer := &http.Server{Addr: c.GetPort(), Handler: server.New(c, repos)}

	ctx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	errCh := make(chan error, 2)
	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- errors.Wrap(err, "ListenAndServe")
		}
	}()
	go func() {
		errCh <- supervisor.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		// Signal received. The supervisor drains in-flight validations on
		// its own; wait for it before tearing down the HTTP side.
		returnError = <-errCh
	case err := <-errCh:
		// The supervisor gave up (retries exhausted) or HTTP failed to bind.
		stopSignals()
		returnError = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && returnError == nil {
		returnError = errors.Wrap(err, "Shutdown")
	}
	return returnError
}

func openRepos(c config.Config) (server.Repos, func(), error) {
	userRepo, err := sqliteuserrepo.New(filepath.Join(c.GetDataFolder(), "users.db"))
	if err != nil {
		return server.Repos{}, nil, err
	}
	codeRepo, err := sqlitecoderepo.New(filepath.Join(c.GetDataFolder(), "codes.db"))
	if err != nil {
		_ = userRepo.Close()
		return server.Repos{}, nil, err
	}
	companyRepo, err := sqlitecompanyrepo.New(filepath.Join(c.GetDataFolder(), "companies.db"))
	if err != nil {
		_ = userRepo.Close()
		_ = codeRepo.Close()
		return server.Repos{}, nil, err
	}

	repos := server.Repos{
		Users:     userRepo,
		TwoFactor: twofactor.NewService(c.GetAppName(), codeRepo, twofactor.LogSender{}),
		Companies: company.NewService(companyRepo),
	}
	closeAll := func() {
		_ = companyRepo.Close()
		_ = codeRepo.Close()
		_ = userRepo.Close()
	}
	return repos, closeAll, nil
}

func mgmtConfig(c config.Config) mgmt.Config {
	return mgmt.Config{
		Host:              c.GetMgmtHost(),
		Port:              c.GetMgmtPort(),
		InitialBackoff:    c.GetInitialBackoff(),
		MaxBackoff:        c.GetMaxBackoff(),
		MaxRetries:        c.GetMaxRetries(),
		ValidationTimeout: c.GetValidationTimeout(),
		IdleSessionWindow: c.GetIdleSessionWindow(),
		PurgeInterval:     c.GetPurgeInterval(),
		Workers:           c.GetValidationWorkers(),
		DrainGrace:        c.GetDrainGrace(),
	}
}

func setupLogging(c config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}

// startBackground re-executes the daemon detached from the terminal,
// appending its output to a log file under the data folder.
func startBackground() error {
	c := config.New()
	if pid, err := readPid(pidPath(c)); err == nil {
		return fmt.Errorf("already running (pid %d)", pid)
	}
	if err := os.MkdirAll(c.GetDataFolder(), 0o755); err != nil {
		return errors.Wrap(err, "create data folder")
	}

	exe, err := os.Executable()
	if err != nil {
		return err
	}
	logFile, err := os.OpenFile(logPath(c), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrap(err, "open log file")
	}
	defer logFile.Close()

	child := exec.Command(exe, "start")
	child.Stdout = logFile
	child.Stderr = logFile
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := child.Start(); err != nil {
		return errors.Wrap(err, "start daemon")
	}
	fmt.Printf("started (pid %d)\n", child.Process.Pid)
	fmt.Printf("  log: %s\n", logPath(c))
	return nil
}

func status() error {
	c := config.New()
	pid, err := readPid(pidPath(c))
	if err != nil {
		fmt.Println("not running")
		return nil
	}
	fmt.Printf("running (pid %d)\n", pid)
	return nil
}

func stop() error {
	c := config.New()
	pid, err := readPid(pidPath(c))
	if err != nil {
		return errors.New("not running")
	}
	proc, _ := os.FindProcess(pid)
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return errors.Wrapf(err, "signal pid %d", pid)
	}
	fmt.Printf("stopped (pid %d)\n", pid)
	return nil
}

func pidPath(c config.Config) string {
	return filepath.Join(c.GetDataFolder(), "vpnauthd.pid")
}

func logPath(c config.Config) string {
	return filepath.Join(c.GetDataFolder(), "vpnauthd.log")
}

func writePidFile(path string) error {
	if pid, err := readPid(path); err == nil {
		return fmt.Errorf("already running (pid %d)", pid)
	}
	return errors.Wrap(os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644), "write pid file")
}

// readPid returns the PID from the file if that process is still alive.
// Stale files from unclean shutdowns are removed.
func readPid(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, err
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, err
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		os.Remove(path)
		return 0, errors.New("stale pid file")
	}
	return pid, nil
}
