package cli

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// PassphraseEnvVar lets non-interactive runs supply the credential store
// passphrase.
const PassphraseEnvVar = "BIZKEEPER_PASSPHRASE"

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// GetPassword prints prompt to w and reads a secret from the terminal
// without echo. The caller should wipe the result when done.
func GetPassword(w io.Writer, prompt string) ([]byte, error) {
	if _, err := fmt.Fprint(w, prompt+": "); err != nil {
		return nil, err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}
	return pw, nil
}

// ReadPassphrase returns the credential store passphrase from
// $BIZKEEPER_PASSPHRASE, or asks for it on the terminal. An empty
// passphrase is rejected.
func ReadPassphrase(w io.Writer) ([]byte, error) {
	if p := os.Getenv(PassphraseEnvVar); p != "" {
		return []byte(p), nil
	}
	pw, err := GetPassword(w, "Enter passphrase")
	if err != nil {
		return nil, err
	}
	if len(pw) == 0 {
		return nil, ErrEmptyPassphrase
	}
	return pw, nil
}
