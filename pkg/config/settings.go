package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/go-playground/validator/v10"
)

const (
	TransferUpload   = "u"
	TransferDownload = "d"

	BackendSFTP = "sftp"
	BackendS3   = "s3"

	DefaultPort            = 22
	DefaultNumberOfRetries = 3
)

// Settings is everything one invocation needs. It is built from the command line or
// imported from a settings file.
type Settings struct {
	Transfer     TransferSettings     `json:"transfer" mapstructure:"transfer"`
	Connectivity ConnectivitySettings `json:"connectivity" mapstructure:"connectivity"`
	Application  ApplicationSettings  `json:"application" mapstructure:"application"`
}

type TransferSettings struct {
	TransferType      string `json:"transfer_type" mapstructure:"transfer_type" validate:"oneof=u d"`
	Overwrite         bool   `json:"overwrite_existing" mapstructure:"overwrite_existing"`
	NumberOfRetries   int    `json:"number_of_retries" mapstructure:"number_of_retries" validate:"min=0,max=10"`
	SourcePath        string `json:"source_path" mapstructure:"source_path"`
	DestinationPath   string `json:"destination_path" mapstructure:"destination_path"`
	UploadPrefix      string `json:"upload_prefix,omitempty" mapstructure:"upload_prefix"`
	ComputeChecksum   bool   `json:"compute_checksum" mapstructure:"compute_checksum"`
	CompressDirectory bool   `json:"compress_directory" mapstructure:"compress_directory"`
}

type ConnectivitySettings struct {
	Backend        string      `json:"backend" mapstructure:"backend" validate:"oneof=sftp s3"`
	Host           string      `json:"host" mapstructure:"host"`
	Port           int         `json:"port" mapstructure:"port" validate:"min=1,max=65535"`
	Username       string      `json:"username" mapstructure:"username"`
	Password       string      `json:"password" mapstructure:"password"`
	PrivateKeyPath string      `json:"private_key_path,omitempty" mapstructure:"private_key_path"`
	TimeoutSeconds int         `json:"timeout_seconds,omitempty" mapstructure:"timeout_seconds" validate:"min=0,max=300"`
	S3             *S3Settings `json:"s3,omitempty" mapstructure:"s3"`
}

type S3Settings struct {
	Endpoint   string `json:"endpoint" mapstructure:"endpoint" validate:"omitempty,url"`
	Region     string `json:"region" mapstructure:"region"`
	Bucket     string `json:"bucket" mapstructure:"bucket" validate:"required"`
	AccessKey  string `json:"access_key" mapstructure:"access_key"`
	SecretKey  string `json:"secret_key" mapstructure:"secret_key"`
	MaxRetries int    `json:"max_retries,omitempty" mapstructure:"max_retries" validate:"min=0,max=10"`

	ReadTimeoutSeconds   int `json:"read_timeout_seconds,omitempty" mapstructure:"read_timeout_seconds" validate:"min=0,max=3600"`
	UploadTimeoutSeconds int `json:"upload_timeout_seconds,omitempty" mapstructure:"upload_timeout_seconds" validate:"min=0,max=86400"`
}

// ApplicationSettings holds process-level options. The settings file paths are never
// written into the settings file itself.
type ApplicationSettings struct {
	ShowHelp            bool   `json:"-" mapstructure:"-"`
	LogDirectory        string `json:"log_directory,omitempty" mapstructure:"log_directory"`
	SettingsFilePath    string `json:"-" mapstructure:"-"`
	SettingsKeyFilePath string `json:"-" mapstructure:"-"`
}

func DefaultSettings() *Settings {
	return &Settings{
		Transfer: TransferSettings{
			TransferType:    TransferUpload,
			NumberOfRetries: DefaultNumberOfRetries,
		},
		Connectivity: ConnectivitySettings{
			Backend: BackendSFTP,
			Port:    DefaultPort,
		},
	}
}

func (s *Settings) IsUpload() bool {
	return s.Transfer.TransferType == TransferUpload
}

type SettingsParsingError struct {
	Err error
}

func (e *SettingsParsingError) Error() string {
	return e.Err.Error()
}

func (e *SettingsParsingError) Unwrap() error {
	return e.Err
}

type SettingsValidationError struct {
	Err error
}

func (e *SettingsValidationError) Error() string {
	return "invalid settings: " + e.Err.Error()
}

func (e *SettingsValidationError) Unwrap() error {
	return e.Err
}

type option struct {
	short string
	long  string
	arg   string
	usage string
	bind  func(fs *flag.FlagSet, name, usage string)
}

func stringOption(p *string) func(*flag.FlagSet, string, string) {
	return func(fs *flag.FlagSet, name, usage string) { fs.StringVar(p, name, *p, usage) }
}

func intOption(p *int) func(*flag.FlagSet, string, string) {
	return func(fs *flag.FlagSet, name, usage string) { fs.IntVar(p, name, *p, usage) }
}

func switchOption(p *bool) func(*flag.FlagSet, string, string) {
	return func(fs *flag.FlagSet, name, usage string) { fs.BoolVar(p, name, *p, usage) }
}

func options(s *Settings) []option {
	return []option{
		{short: "tt", long: "transferType", arg: "type",
			usage: "transfer type: 'u' or 'upload', 'd' or 'download'",
			bind: func(fs *flag.FlagSet, name, usage string) {
				fs.Func(name, usage, func(v string) error {
					if v == "" {
						return errors.New("transfer type must not be empty")
					}
					s.Transfer.TransferType = strings.ToLower(v[:1])
					return nil
				})
			}},
		{long: "host", arg: "host", usage: "address of the sftp server", bind: stringOption(&s.Connectivity.Host)},
		{long: "port", arg: "port", usage: "port of the sftp server (default 22)", bind: intOption(&s.Connectivity.Port)},
		{short: "u", long: "username", arg: "name", usage: "account user name", bind: stringOption(&s.Connectivity.Username)},
		{short: "p", long: "password", arg: "password",
			usage: "account password, doubles as key passphrase; '-' prompts for it",
			bind:  stringOption(&s.Connectivity.Password)},
		{short: "sp", long: "sourcePath", arg: "path", usage: "local file or directory to transfer", bind: stringOption(&s.Transfer.SourcePath)},
		{short: "dp", long: "destinationPath", arg: "path",
			usage: "remote destination, '/' separated; missing directories are created",
			bind:  stringOption(&s.Transfer.DestinationPath)},
		{short: "ow", long: "overWriteExisting", usage: "overwrite remote files that are older or differ in size", bind: switchOption(&s.Transfer.Overwrite)},
		{short: "nr", long: "numberOfRetries", arg: "n", usage: "connection retries on network failures (default 3)", bind: intOption(&s.Transfer.NumberOfRetries)},
		{short: "pk", long: "privateKeyPath", arg: "path", usage: "private key used to authenticate", bind: stringOption(&s.Connectivity.PrivateKeyPath)},
		{short: "h", long: "help", usage: "show this message and exit", bind: switchOption(&s.Application.ShowHelp)},
		{long: "log", arg: "dir", usage: "directory for daily log files", bind: stringOption(&s.Application.LogDirectory)},
		{short: "cs", long: "checkSum", usage: "upload a SHA-256 checksum next to each file with a '.sha256' extension", bind: switchOption(&s.Transfer.ComputeChecksum)},
		{short: "cd", long: "compressDirectory", usage: "zip the source directory before uploading it", bind: switchOption(&s.Transfer.CompressDirectory)},
		{short: "up", long: "uploadPrefix", arg: "prefix",
			usage: "upload under a prefixed name and rename once complete",
			bind:  stringOption(&s.Transfer.UploadPrefix)},
		{short: "sf", long: "settingsFilePath", arg: "path",
			usage: "settings file; executed when it exists, otherwise written from the other options",
			bind:  stringOption(&s.Application.SettingsFilePath)},
		{short: "sfKey", long: "settingsKeyFilePath", arg: "path",
			usage: "key file encrypting the settings file; generated when missing",
			bind:  stringOption(&s.Application.SettingsKeyFilePath)},
		{long: "backend", arg: "type", usage: "remote backend: sftp or s3 (default sftp)", bind: stringOption(&s.Connectivity.Backend)},
	}
}

// ParseArgs builds settings from command line arguments. Every option is accepted under
// its short and long name, as "-name value" or "--name=value".
func ParseArgs(args []string) (*Settings, error) {
	s := DefaultSettings()

	fs := flag.NewFlagSet("sftpush", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	for _, opt := range options(s) {
		if opt.short != "" {
			opt.bind(fs, opt.short, opt.usage)
		}
		opt.bind(fs, opt.long, opt.usage)
	}

	if err := fs.Parse(args); err != nil {
		return nil, &SettingsParsingError{Err: err}
	}
	if fs.NArg() > 0 {
		return nil, &SettingsParsingError{Err: fmt.Errorf("unexpected argument %q", fs.Arg(0))}
	}
	return s, nil
}

func Usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: sftpush [OPTIONS]")
	fmt.Fprintln(w, "Transfer files via sftp.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, opt := range options(DefaultSettings()) {
		names := "--" + opt.long
		if opt.short != "" {
			names = "-" + opt.short + ", " + names
		}
		if opt.arg != "" {
			names += "=" + opt.arg
		}
		fmt.Fprintf(tw, "  %s\t%s\n", names, opt.usage)
	}
	_ = tw.Flush()
}

// UsageHint is printed after argument errors.
const UsageHint = "Try `sftpush --help' for more information."

func (s *Settings) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(s); err != nil {
		return &SettingsValidationError{Err: err}
	}

	if s.IsUpload() {
		if strings.TrimSpace(s.Transfer.SourcePath) == "" {
			return &SettingsValidationError{Err: errors.New("source path is required for uploads")}
		}
		if _, err := os.Stat(s.Transfer.SourcePath); err != nil {
			return &SettingsValidationError{Err: fmt.Errorf("source path %q does not exist", s.Transfer.SourcePath)}
		}
		if strings.Contains(s.Transfer.DestinationPath, `\`) {
			return &SettingsValidationError{Err: fmt.Errorf(
				"destination path %q must use '/' separators when uploading", s.Transfer.DestinationPath)}
		}
	}

	if s.Application.SettingsKeyFilePath != "" && strings.TrimSpace(s.Application.SettingsFilePath) == "" {
		return &SettingsValidationError{Err: errors.New("a settings key file was given without a settings file path")}
	}

	if s.Connectivity.Backend == BackendS3 && s.Connectivity.S3 == nil {
		return &SettingsValidationError{Err: errors.New("s3 settings are required when the backend is s3")}
	}
	return nil
}
