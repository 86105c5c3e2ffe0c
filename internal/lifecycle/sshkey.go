package lifecycle

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"

	"golang.org/x/crypto/ssh"
)

// generateSSHKeypair creates a fresh Ed25519 keypair and renders it as
// an OpenSSH authorized-key line plus a PEM-encoded private key.
func generateSSHKeypair() (publicKey, privateKey string, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generating ed25519 key: %w", err)
	}

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return "", "", fmt.Errorf("converting public key: %w", err)
	}

	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		return "", "", fmt.Errorf("marshaling private key: %w", err)
	}

	return string(ssh.MarshalAuthorizedKey(sshPub)), string(pem.EncodeToMemory(block)), nil
}
