package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/joluben/sigsim/internal/model"
	"github.com/joluben/sigsim/internal/simerrors"
)

// FTPConfig mirrors models/target.py's FTPConfig. UseSFTP dispatches
// between the FTP and SFTP clients inside a single connector, matching
// ftp_connector.py's single-class-two-protocols design (SUPPLEMENTED
// FEATURES #5).
type FTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Path     string `mapstructure:"path"`
	UseSFTP  bool   `mapstructure:"use_sftp"`
}

func decodeFTPConfig(raw map[string]any) (FTPConfig, error) {
	cfg := FTPConfig{Port: 21, Path: "/"}
	if err := decodeInto(raw, &cfg); err != nil {
		return FTPConfig{}, err
	}
	for _, f := range []string{"host", "username", "password"} {
		if err := requireField(raw, f); err != nil {
			return FTPConfig{}, err
		}
	}
	if cfg.UseSFTP && cfg.Port == 21 {
		cfg.Port = 22
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return FTPConfig{}, simerrors.New(simerrors.ConfigInvalid, "ftp port must be between 1 and 65535")
	}
	return cfg, nil
}

// FTP is the Connector that uploads each payload as a JSON file, over
// either plain FTP (jlaffaye/ftp) or SFTP (pkg/sftp over golang.org/x/crypto/ssh).
type FTP struct {
	cfg FTPConfig

	ftpConn  *ftp.ServerConn
	sshConn  *ssh.Client
	sftpConn *sftp.Client
}

func NewFTP(cfg FTPConfig) *FTP {
	return &FTP{cfg: cfg}
}

func (f *FTP) Kind() model.TargetKind { return model.TargetFTP }

func (f *FTP) Connect(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", f.cfg.Host, f.cfg.Port)
	if f.cfg.UseSFTP {
		sshCfg := &ssh.ClientConfig{
			User:            f.cfg.Username,
			Auth:            []ssh.AuthMethod{ssh.Password(f.cfg.Password)},
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
			Timeout:         10 * time.Second,
		}
		sshConn, err := ssh.Dial("tcp", addr, sshCfg)
		if err != nil {
			return simerrors.Wrap(simerrors.ConnectionFailed, "sftp ssh dial failed", err)
		}
		sftpConn, err := sftp.NewClient(sshConn)
		if err != nil {
			_ = sshConn.Close()
			return simerrors.Wrap(simerrors.ConnectionFailed, "sftp client init failed", err)
		}
		f.sshConn = sshConn
		f.sftpConn = sftpConn
		return nil
	}

	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(10*time.Second))
	if err != nil {
		return simerrors.Wrap(simerrors.ConnectionFailed, "ftp dial failed", err)
	}
	if err := conn.Login(f.cfg.Username, f.cfg.Password); err != nil {
		return simerrors.Wrap(simerrors.ConnectionFailed, "ftp login failed", err)
	}
	f.ftpConn = conn
	return nil
}

func (f *FTP) Send(ctx context.Context, payload model.Payload) error {
	if f.ftpConn == nil && f.sftpConn == nil {
		if err := f.Connect(ctx); err != nil {
			return err
		}
	}

	body, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return simerrors.Wrap(simerrors.SendFailed, "failed to marshal ftp payload", err)
	}
	now := time.Now().UTC()
	filename := fmt.Sprintf("payload_%s_%06d.json", now.Format("20060102_150405"), now.Nanosecond()/1000)
	remotePath := path.Join(f.cfg.Path, filename)

	if f.cfg.UseSFTP {
		if err := f.sftpConn.MkdirAll(f.cfg.Path); err != nil {
			// directory may already exist or we may lack permission; both
			// are tolerated the same way ftp_connector.py swallows them.
			_ = err
		}
		out, err := f.sftpConn.Create(remotePath)
		if err != nil {
			return simerrors.Wrap(simerrors.SendFailed, "sftp create failed", err)
		}
		defer out.Close()
		if _, err := out.Write(body); err != nil {
			return simerrors.Wrap(simerrors.SendFailed, "sftp write failed", err)
		}
		return nil
	}

	if err := f.ftpConn.MakeDir(f.cfg.Path); err != nil {
		_ = err
	}
	if err := f.ftpConn.Stor(remotePath, bytes.NewReader(body)); err != nil {
		return simerrors.Wrap(simerrors.SendFailed, "ftp upload failed", err)
	}
	return nil
}

func (f *FTP) Disconnect(ctx context.Context) error {
	if f.sftpConn != nil {
		_ = f.sftpConn.Close()
		f.sftpConn = nil
	}
	if f.sshConn != nil {
		_ = f.sshConn.Close()
		f.sshConn = nil
	}
	if f.ftpConn != nil {
		err := f.ftpConn.Quit()
		f.ftpConn = nil
		return err
	}
	return nil
}
