package config

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateBirthday(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name     string
		raw      RawParams
		wantErr  error
		birthday uint64
	}{
		{
			name:    "seed without birthday",
			raw:     RawParams{Seed: "abandon abandon", DataDir: dir},
			wantErr: ErrMissingBirthday,
		},
		{
			name:     "seed with birthday",
			raw:      RawParams{Seed: "abandon abandon", Birthday: "600000", DataDir: dir},
			birthday: 600000,
		},
		{
			name:     "no seed defaults birthday to zero",
			raw:      RawParams{DataDir: dir},
			birthday: 0,
		},
		{
			name:    "negative birthday",
			raw:     RawParams{Birthday: "-5", DataDir: dir},
			wantErr: ErrInvalidBirthday,
		},
		{
			name:    "non numeric birthday",
			raw:     RawParams{Seed: "abandon", Birthday: "yesterday", DataDir: dir},
			wantErr: ErrInvalidBirthday,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Validate(tt.raw)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				require.Nil(t, cfg)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.birthday, cfg.Birthday)
		})
	}
}

func TestValidateServer(t *testing.T) {
	dir := t.TempDir()

	bad := []string{
		"nope",
		"127.0.0.1:9067",
		"http://127.0.0.1",
		"http://:9067",
		"http://host:notaport",
		"http://host:70000",
	}
	for _, s := range bad {
		t.Run(s, func(t *testing.T) {
			_, err := Validate(RawParams{Server: s, DataDir: dir})
			require.ErrorIs(t, err, ErrMalformedServer)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			require.Equal(t, s, verr.Value)
			require.Contains(t, err.Error(), "You provided: "+s)
		})
	}

	cfg, err := Validate(RawParams{Server: "https://lightd.example.com:443", DataDir: dir})
	require.NoError(t, err)
	require.Equal(t, "https", cfg.Server.Scheme)
	require.Equal(t, "lightd.example.com", cfg.Server.Hostname())
	require.Equal(t, "443", cfg.Server.Port())
}

func TestValidateDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Validate(RawParams{DataDir: dir})
	require.NoError(t, err)
	require.Equal(t, DefaultServer, cfg.Server.String())
	require.Equal(t, filepath.Join(dir, DefaultWalletName), cfg.WalletPath())
	require.Equal(t, filepath.Join(dir, DefaultLogName), cfg.LogPath())
	require.True(t, cfg.SyncOnStart)
	require.Empty(t, cfg.Seed)

	cfg, err = Validate(RawParams{DataDir: dir, WalletName: "w.dat", LogName: "l.log", NoSync: true})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "w.dat"), cfg.WalletPath())
	require.Equal(t, filepath.Join(dir, "l.log"), cfg.LogPath())
	require.False(t, cfg.SyncOnStart)
}

func TestValidateAppDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Validate(RawParams{AppDir: "mywallet"})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".mywallet"), cfg.DataDir)
	require.Equal(t, "mywallet", cfg.AppDir)

	cfg, err = Validate(RawParams{})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, "."+DefaultAppDir), cfg.DataDir)
	require.Equal(t, DefaultAppDir, cfg.AppDir)

	// An explicit data directory still records the app directory
	dir := t.TempDir()
	cfg, err = Validate(RawParams{DataDir: dir, AppDir: "mywallet"})
	require.NoError(t, err)
	require.Equal(t, dir, cfg.DataDir)
	require.Equal(t, "mywallet", cfg.AppDir)
}

func TestMissingBirthdayMessage(t *testing.T) {
	_, err := Validate(RawParams{Seed: "word", DataDir: t.TempDir()})
	require.Error(t, err)
	require.Contains(t, err.Error(), "--birthday")
}
