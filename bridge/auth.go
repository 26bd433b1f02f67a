package bridge

import (
	"golang.org/x/crypto/ssh"
)

// authMethods assembles the SSH authentication methods for a fresh
// transport session: password when configured, otherwise the parsed
// private key material.
func authMethods(cfg ConnectionConfig) ([]ssh.AuthMethod, error) {
	methods := make([]ssh.AuthMethod, 0, 1)

	if cfg.Password != "" {
		methods = append(methods, ssh.Password(cfg.Password))
	}

	if cfg.PrivateKey != "" {
		signer, err := ssh.ParsePrivateKey([]byte(cfg.PrivateKey))
		if err != nil {
			return nil, wrapKeyParseError(err, "failed to parse private key")
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if len(methods) == 0 {
		return nil, newAuthError("No authentication method available (require password or private key)")
	}

	return methods, nil
}
