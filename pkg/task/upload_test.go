package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalUploadPayload(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    UploadPayload
		wantErr string
	}{
		{
			name: "with key",
			data: `{"settings_file_path":"/etc/sftpush/job.json","settings_key_file_path":"/etc/sftpush/job.key"}`,
			want: UploadPayload{SettingsFilePath: "/etc/sftpush/job.json", SettingsKeyFilePath: "/etc/sftpush/job.key"},
		},
		{
			name: "without key",
			data: `{"settings_file_path":"/etc/sftpush/job.yaml"}`,
			want: UploadPayload{SettingsFilePath: "/etc/sftpush/job.yaml"},
		},
		{name: "missing settings file", data: `{}`, wantErr: "settings_file_path is required"},
		{name: "invalid json", data: `{`, wantErr: "unmarshal payload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UnmarshalUploadPayload([]byte(tt.data))
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUploadPayloadMarshalOmitsEmptyKey(t *testing.T) {
	data, err := UploadPayload{SettingsFilePath: "/job.json"}.Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, `{"settings_file_path":"/job.json"}`, string(data))
}
