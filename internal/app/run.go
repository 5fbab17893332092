package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"sftpush/pkg/config"
	"sftpush/pkg/logger"
)

// Version is stamped at build time with -ldflags "-X sftpush/internal/app.Version=...".
var Version = "dev"

// ExitError asks main to exit with Code without printing anything further.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// passwordFromPrompt is the password value that asks for it interactively.
const passwordFromPrompt = "-"

type Runner struct {
	stdout         io.Writer
	stderr         io.Writer
	cipher         config.Cipher
	connect        ConnectFunc
	promptPassword func() (string, error)
}

func NewRunner(stdout, stderr io.Writer) *Runner {
	r := &Runner{
		stdout:  stdout,
		stderr:  stderr,
		cipher:  config.AESCipher{},
		connect: Connect,
	}
	r.promptPassword = r.readPasswordFromTerminal
	return r
}

// Run is the whole command line program.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	return NewRunner(stdout, stderr).Run(ctx, args)
}

func (r *Runner) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(r.stderr, config.UsageHint)
		return &ExitError{Code: 1}
	}

	settings, err := config.ParseArgs(args)
	if err != nil {
		r.printSettingsError(err)
		return nil
	}
	if settings.Application.ShowHelp {
		config.Usage(r.stdout)
		return nil
	}

	log := logger.New(r.stdout)
	defer log.Close()
	log.Info("sftpush starting", map[string]any{"version": Version})

	settingsFile := settings.Application.SettingsFilePath
	settings, imported, err := config.ApplySettingsFile(settings, r.cipher)
	if err != nil {
		log.Error("settings file failed", err, map[string]any{"settings_file": settingsFile})
		return err
	}
	if settingsFile != "" {
		action := "saved settings file"
		if imported {
			action = "imported settings file"
		}
		log.Info(action, map[string]any{
			"settings_file": settingsFile,
			"encrypted":     settings.Application.SettingsKeyFilePath != "",
		})
	}

	if dir := settings.Application.LogDirectory; dir != "" {
		file, err := log.AddFileSink(dir)
		if err != nil {
			log.Error("failed to open log file", err, map[string]any{"log_directory": dir})
			return err
		}
		log.Info("logging to file", map[string]any{"log_file": file})
	}

	if settings.Connectivity.Password == passwordFromPrompt {
		password, err := r.promptPassword()
		if err != nil {
			log.Error("failed to read password", err, nil)
			return err
		}
		settings.Connectivity.Password = password
	}

	if err := settings.Validate(); err != nil {
		r.printSettingsError(err)
		return nil
	}

	if err := ExecuteWith(ctx, settings, log, r.connect); err != nil {
		log.Error("an error occurred", err, nil)
		return err
	}
	return nil
}

func (r *Runner) printSettingsError(err error) {
	fmt.Fprintf(r.stderr, "sftpush: %v\n", err)
	fmt.Fprintln(r.stderr, config.UsageHint)
}

func (r *Runner) readPasswordFromTerminal() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("password '-' needs an interactive terminal")
	}

	fmt.Fprint(r.stderr, "Password: ")
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(r.stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(password), nil
}
