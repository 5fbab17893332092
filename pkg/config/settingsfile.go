package config

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/viper"
	"sigs.k8s.io/yaml"
)

const (
	settingsEnvPrefix = "SFTPUSH"
	settingsKeyLength = 8
	settingsFileMode  = 0o600
)

// settingsFormat picks yaml for .yaml and .yml files and json for everything else.
func settingsFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

// SaveSettingsFile writes s to its settings file path. With a key file path the content is
// encrypted, and a new key is generated when the key file does not exist yet.
func SaveSettingsFile(s *Settings, cipher Cipher) error {
	path := s.Application.SettingsFilePath
	if path == "" {
		return errors.New("settings file path is empty")
	}

	var (
		data []byte
		err  error
	)
	if settingsFormat(path) == "yaml" {
		data, err = yaml.Marshal(s)
	} else {
		data, err = json.MarshalIndent(s, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if keyPath := s.Application.SettingsKeyFilePath; keyPath != "" {
		key, err := loadOrCreateKey(keyPath)
		if err != nil {
			return err
		}
		sealed, err := cipher.Encrypt(data, key)
		if err != nil {
			return fmt.Errorf("encrypt settings: %w", err)
		}
		data = []byte(base64.StdEncoding.EncodeToString(sealed))
	}

	if err := os.WriteFile(path, data, settingsFileMode); err != nil {
		return fmt.Errorf("write settings file: %w", err)
	}
	return nil
}

// LoadSettingsFile reads a settings file written by SaveSettingsFile. Environment variables
// prefixed with SFTPUSH_ override file values, e.g. SFTPUSH_CONNECTIVITY_PASSWORD.
func LoadSettingsFile(path, keyPath string, cipher Cipher) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings file: %w", err)
	}

	if keyPath != "" {
		key, err := readKey(keyPath)
		if err != nil {
			return nil, err
		}
		sealed, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, fmt.Errorf("decode settings file: %w", err)
		}
		if data, err = cipher.Decrypt(sealed, key); err != nil {
			return nil, fmt.Errorf("decrypt settings file: %w", err)
		}
	}

	v := viper.New()
	setSettingsDefaults(v)
	v.SetConfigType(settingsFormat(path))
	v.SetEnvPrefix(settingsEnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	return &s, nil
}

func setSettingsDefaults(v *viper.Viper) {
	v.SetDefault("transfer.transfer_type", TransferUpload)
	v.SetDefault("transfer.number_of_retries", DefaultNumberOfRetries)
	v.SetDefault("transfer.overwrite_existing", false)
	v.SetDefault("transfer.source_path", "")
	v.SetDefault("transfer.destination_path", "")
	v.SetDefault("transfer.upload_prefix", "")
	v.SetDefault("transfer.compute_checksum", false)
	v.SetDefault("transfer.compress_directory", false)

	v.SetDefault("connectivity.backend", BackendSFTP)
	v.SetDefault("connectivity.host", "")
	v.SetDefault("connectivity.port", DefaultPort)
	v.SetDefault("connectivity.username", "")
	v.SetDefault("connectivity.password", "")
	v.SetDefault("connectivity.private_key_path", "")
	v.SetDefault("connectivity.timeout_seconds", 0)

	v.SetDefault("application.log_directory", "")
}

// ApplySettingsFile imports the settings file named in s when it exists, keeping the file
// and key paths of s. Otherwise it saves s to that path. The bool reports an import.
func ApplySettingsFile(s *Settings, cipher Cipher) (*Settings, bool, error) {
	path := s.Application.SettingsFilePath
	if strings.TrimSpace(path) == "" {
		return s, false, nil
	}

	if _, err := os.Stat(path); err == nil {
		imported, err := LoadSettingsFile(path, s.Application.SettingsKeyFilePath, cipher)
		if err != nil {
			return nil, false, err
		}
		imported.Application.SettingsFilePath = s.Application.SettingsFilePath
		imported.Application.SettingsKeyFilePath = s.Application.SettingsKeyFilePath
		return imported, true, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, false, fmt.Errorf("stat settings file: %w", err)
	}

	if err := SaveSettingsFile(s, cipher); err != nil {
		return nil, false, err
	}
	return s, false, nil
}

// GenerateSettingsKey returns a new 8 character key.
func GenerateSettingsKey() string {
	return uuid.New().String()[:settingsKeyLength]
}

func loadOrCreateKey(keyPath string) (string, error) {
	key, err := readKey(keyPath)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	key = GenerateSettingsKey()
	if err := os.WriteFile(keyPath, []byte(key), settingsFileMode); err != nil {
		return "", fmt.Errorf("write settings key file: %w", err)
	}
	return key, nil
}

func readKey(keyPath string) (string, error) {
	data, err := os.ReadFile(keyPath)
	if err != nil {
		return "", fmt.Errorf("read settings key file: %w", err)
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", fmt.Errorf("settings key file %s is empty", keyPath)
	}
	return key, nil
}
