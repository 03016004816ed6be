package repo

import (
	"fmt"
	"os"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	gogitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"golang.org/x/crypto/ssh"
)

// Credentials for the pool repository. Pool files are pulled, never pushed,
// so read-only deploy tokens or deploy keys are enough.
const (
	envHTTPToken     = "KEYGATE_GIT_HTTP_TOKEN"
	envHTTPUser      = "KEYGATE_GIT_HTTP_USER"
	envHTTPPassword  = "KEYGATE_GIT_HTTP_PASSWORD"
	envSSHKeyPath    = "KEYGATE_GIT_SSH_KEY_PATH"
	envSSHKey        = "KEYGATE_GIT_SSH_KEY"
	envSSHUser       = "KEYGATE_GIT_SSH_USER"
	envSSHPassphrase = "KEYGATE_GIT_SSH_PASSPHRASE"
	envSSHKnownHosts = "KEYGATE_GIT_SSH_KNOWN_HOSTS"
)

// AuthFromEnv builds git credentials for syncing pool files. A token or HTTP
// user wins over an SSH key; nothing set means the pool repository is public.
// SSH host keys are pinned when a known_hosts file is configured.
func AuthFromEnv() (transport.AuthMethod, error) {
	if token := os.Getenv(envHTTPToken); token != "" {
		return &http.BasicAuth{Username: getEnv(envHTTPUser, "oauth2"), Password: token}, nil
	}
	if user := os.Getenv(envHTTPUser); user != "" {
		return &http.BasicAuth{Username: user, Password: os.Getenv(envHTTPPassword)}, nil
	}

	keyPath, key := os.Getenv(envSSHKeyPath), os.Getenv(envSSHKey)
	if keyPath == "" && key == "" {
		return nil, nil
	}
	auth, err := sshKeys(getEnv(envSSHUser, "git"), keyPath, key, os.Getenv(envSSHPassphrase))
	if err != nil {
		return nil, err
	}

	auth.HostKeyCallback = ssh.InsecureIgnoreHostKey()
	if knownHosts := os.Getenv(envSSHKnownHosts); knownHosts != "" {
		cb, err := gogitssh.NewKnownHostsCallback(knownHosts)
		if err != nil {
			return nil, fmt.Errorf("pool repo known hosts: %w", err)
		}
		auth.HostKeyCallback = cb
	}
	return auth, nil
}

// sshKeys loads the deploy key from keyPath, or from the inline PEM in key.
func sshKeys(user, keyPath, key, passphrase string) (*gogitssh.PublicKeys, error) {
	var (
		auth *gogitssh.PublicKeys
		err  error
	)
	if keyPath != "" {
		auth, err = gogitssh.NewPublicKeysFromFile(user, keyPath, passphrase)
	} else {
		auth, err = gogitssh.NewPublicKeys(user, []byte(key), passphrase)
	}
	if err != nil {
		return nil, fmt.Errorf("pool repo ssh key: %w", err)
	}
	return auth, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
